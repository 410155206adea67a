package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/example/tunestore/internal/api/middleware"
	"github.com/example/tunestore/internal/apperr"
	"github.com/example/tunestore/internal/auth"
	"github.com/example/tunestore/internal/domain/cart"
	"github.com/example/tunestore/internal/domain/catalog"
	"github.com/example/tunestore/internal/domain/order"
	"github.com/example/tunestore/internal/domain/ticket"
	"github.com/example/tunestore/internal/pagination"
)

type Handlers struct {
	catalog *catalog.Service
	carts   *cart.Service
	orders  *order.Service
	tickets *ticket.Service
}

func NewHandlers(catalogService *catalog.Service, cartService *cart.Service, orderService *order.Service, ticketService *ticket.Service) *Handlers {
	return &Handlers{
		catalog: catalogService,
		carts:   cartService,
		orders:  orderService,
		tickets: ticketService,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Catalog Handlers

func (h *Handlers) GetTrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	track, err := h.catalog.GetTrack(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, track)
}

func (h *Handlers) ListTracks(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	tracks, err := h.catalog.ListTracks(r.Context(), page)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tracks)
}

// Helper functions

var errMalformedBody = errors.New("request body is not valid JSON")

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError maps an error's kind onto a status code. Unexpected errors are
// logged and reported with an opaque message.
func respondError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	message := err.Error()
	if kind == apperr.Unexpected {
		log.Printf("[API] internal error: %v", err)
		message = "internal server error"
	}
	respondJSON(w, status, errorResponse{Error: message, Kind: kind.String()})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict, apperr.InvalidStateTransition:
		return http.StatusConflict
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.ValidationFailure:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the request body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation(errMalformedBody.Error(), err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.ValidationFailure, "invalid "+name+": "+strconv.Quote(raw))
	}
	return id, nil
}

// pageRequest reads the zero-based page and size query parameters.
func pageRequest(r *http.Request) (pagination.Request, error) {
	req := pagination.Request{Page: 0, Size: pagination.DefaultSize}
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, apperr.Validation("invalid page", err)
		}
		req.Page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, apperr.Validation("invalid size", err)
		}
		req.Size = n
	}
	return req, req.Validate()
}

func caller(r *http.Request) *auth.Claims {
	claims, _ := middleware.GetUserFromContext(r.Context())
	return claims
}
