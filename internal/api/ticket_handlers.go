package api

import (
	"net/http"
	"strconv"

	"github.com/example/tunestore/internal/apperr"
	"github.com/example/tunestore/internal/domain/ticket"
	"github.com/example/tunestore/internal/validation"
)

type CreateTicketRequest struct {
	OrderID  *int64          `json:"order_id,omitempty"`
	Subject  string          `json:"subject"`
	Message  string          `json:"message"`
	Priority ticket.Priority `json:"priority,omitempty"`
}

type ReplyRequest struct {
	Content string `json:"content" validate:"notblank"`
}

type CloseTicketRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handlers) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	t, err := h.tickets.CreateTicket(r.Context(), ticket.NewTicket{
		CustomerID: caller(r).UserID,
		OrderID:    req.OrderID,
		Subject:    req.Subject,
		Message:    req.Message,
		Priority:   req.Priority,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

// GetTickets lists every ticket for staff. Customers only ever see their own.
func (h *Handlers) GetTickets(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	claims := caller(r)
	filter := ticket.Filter{Status: ticket.Status(r.URL.Query().Get("status"))}
	if !claims.IsStaff() {
		filter.CustomerID = claims.UserID
	} else if v := r.URL.Query().Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, apperr.Validation("invalid customer_id", err))
			return
		}
		filter.CustomerID = id
	}

	tickets, err := h.tickets.ListTickets(r.Context(), filter, page)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tickets)
}

func (h *Handlers) GetTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizedTicket(w, r)
	if !ok {
		return
	}
	t, err := h.tickets.GetTicket(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// ReplyToTicket records the message as a staff reply or a customer message
// depending on the caller's role.
func (h *Handlers) ReplyToTicket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	var req ReplyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(w, err)
		return
	}

	claims := caller(r)
	var m *ticket.Message
	if claims.IsStaff() {
		m, err = h.tickets.AddStaffReply(r.Context(), id, claims.UserID, req.Content)
	} else {
		m, err = h.tickets.AddCustomerMessage(r.Context(), id, claims.UserID, req.Content)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

// AssignTicket assigns the ticket to the calling staff member.
func (h *Handlers) AssignTicket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	t, err := h.tickets.AssignTicket(r.Context(), id, caller(r).UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *Handlers) SetTicketStatus(w http.ResponseWriter, r *http.Request) {
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

	t, err := h.tickets.SetStatus(r.Context(), id, ticket.Status(req.Status))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *Handlers) CloseTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizedTicket(w, r)
	if !ok {
		return
	}
	var req CloseTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(w, err)
		return
	}

	t, err := h.tickets.CloseTicket(r.Context(), id, req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *Handlers) ReopenTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizedTicket(w, r)
	if !ok {
		return
	}
	t, err := h.tickets.ReopenTicket(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// authorizedTicket parses the ticket id and lets staff or the owning
// customer through. On failure the error response has already been written.
func (h *Handlers) authorizedTicket(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return 0, false
	}
	claims := caller(r)
	if claims.IsStaff() {
		return id, true
	}
	allowed, err := h.tickets.CanCustomerViewTicket(r.Context(), id, claims.Username)
	if err != nil {
		respondError(w, err)
		return 0, false
	}
	if !allowed {
		respondError(w, ticket.ErrTicketForbidden)
		return 0, false
	}
	return id, true
}
