package api

import (
	"net/http"

	"github.com/example/tunestore/internal/api/middleware"
	"github.com/example/tunestore/internal/domain/order"
	"github.com/example/tunestore/internal/validation"
)

type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.PlaceOrder(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	orders, err := h.orders.ListOrders(r.Context(), middleware.GetUserID(r.Context()), page)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	claims := caller(r)
	if o.CustomerID != claims.UserID && !claims.IsStaff() {
		respondError(w, order.ErrOrderForbidden)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	var req CancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(w, err)
		return
	}

	o, err := h.orders.CancelOrder(r.Context(), id, middleware.GetUserID(r.Context()), req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// UpdateOrderStatus is mounted behind RequireStaff.
func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	var req UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(w, err)
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		respondError(w, err)
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), id, status)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
