package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/example/tunestore/internal/api/middleware"
	"github.com/example/tunestore/internal/domain/cart"
	"github.com/example/tunestore/internal/validation"
)

type AddToCartRequest struct {
	TrackID int64 `json:"track_id" validate:"gt=0"`
}

type CartResponse struct {
	*cart.Cart
	Total decimal.Decimal `json:"total"`
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.GetOrCreateCart(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CartResponse{Cart: c, Total: c.Total()})
}

func (h *Handlers) GetCartTotal(w http.ResponseWriter, r *http.Request) {
	total, err := h.carts.GetTotal(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]decimal.Decimal{"total": total})
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req AddToCartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(w, err)
		return
	}

	item, err := h.carts.AddToCart(r.Context(), middleware.GetUserID(r.Context()), req.TrackID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, "itemID")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.carts.RemoveItem(r.Context(), middleware.GetUserID(r.Context()), itemID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.ClearCart(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
