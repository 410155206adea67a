package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/tunestore/internal/apperr"
	"github.com/example/tunestore/internal/pagination"
)

// Status values are case-sensitive.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusUrgent     Status = "URGENT"
	StatusClosed     Status = "CLOSED"
	StatusResolved   Status = "RESOLVED"
)

var Statuses = []Status{StatusOpen, StatusInProgress, StatusUrgent, StatusClosed, StatusResolved}

// Priority is only consulted when a ticket is created.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

var (
	ErrTicketNotFound    = apperr.New(apperr.NotFound, "ticket not found")
	ErrTicketForbidden   = apperr.New(apperr.Forbidden, "ticket belongs to another customer")
	ErrUnknownStatus     = apperr.New(apperr.ValidationFailure, "unknown ticket status")
	ErrInvalidAuthor     = apperr.New(apperr.ValidationFailure, "message author must be a customer or a staff member")
	ErrEmptyMessage      = apperr.New(apperr.ValidationFailure, "message content is required")
	ErrInvalidTransition = apperr.New(apperr.InvalidStateTransition, "invalid ticket status transition")
	ErrConcurrentUpdate  = apperr.New(apperr.Conflict, "ticket was modified concurrently")

	ErrNotClosed = fmt.Errorf("%w: only closed tickets can be reopened", ErrInvalidTransition)
	ErrUseReopen = fmt.Errorf("%w: closed tickets are reopened with the reopen operation", ErrInvalidTransition)
)

// validTransitions covers SetStatus. Reopening a closed ticket goes
// through Reopen instead.
var validTransitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusUrgent, StatusClosed},
	StatusInProgress: {StatusUrgent, StatusResolved, StatusClosed},
	StatusUrgent:     {StatusInProgress, StatusResolved, StatusClosed},
	StatusResolved:   {StatusInProgress, StatusClosed},
	StatusClosed:     {},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

type AuthorKind string

const (
	AuthorCustomer AuthorKind = "CUSTOMER"
	AuthorStaff    AuthorKind = "STAFF"
)

// Author identifies who wrote a message: exactly one customer or exactly one
// staff member. The zero value is not a valid author.
type Author struct {
	kind AuthorKind
	id   int64
}

func CustomerAuthor(customerID int64) Author { return Author{kind: AuthorCustomer, id: customerID} }
func StaffAuthor(staffID int64) Author       { return Author{kind: AuthorStaff, id: staffID} }

// NewAuthor rebuilds an author from its stored form.
func NewAuthor(kind AuthorKind, id int64) (Author, error) {
	if id <= 0 {
		return Author{}, ErrInvalidAuthor
	}
	switch kind {
	case AuthorCustomer:
		return CustomerAuthor(id), nil
	case AuthorStaff:
		return StaffAuthor(id), nil
	default:
		return Author{}, fmt.Errorf("%w: kind %q", ErrInvalidAuthor, kind)
	}
}

func (a Author) Kind() AuthorKind { return a.kind }
func (a Author) ID() int64        { return a.id }

func (a Author) Valid() bool {
	return (a.kind == AuthorCustomer || a.kind == AuthorStaff) && a.id > 0
}

func (a Author) String() string { return fmt.Sprintf("%s#%d", a.kind, a.id) }

type authorJSON struct {
	Kind AuthorKind `json:"kind"`
	ID   int64      `json:"id"`
}

func (a Author) MarshalJSON() ([]byte, error) {
	return json.Marshal(authorJSON{Kind: a.kind, ID: a.id})
}

func (a *Author) UnmarshalJSON(data []byte) error {
	var raw authorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewAuthor(raw.Kind, raw.ID)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

type Message struct {
	ID        int64     `json:"id"`
	TicketID  int64     `json:"ticket_id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Ticket struct {
	ID              int64      `json:"id"`
	CustomerID      int64      `json:"customer_id"`
	OrderID         *int64     `json:"order_id,omitempty"`
	AssignedStaffID *int64     `json:"assigned_staff_id,omitempty"`
	Subject         string     `json:"subject"`
	Status          Status     `json:"status"`
	CloseReason     string     `json:"close_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	Messages        []Message  `json:"messages,omitempty"`
}

func (t *Ticket) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[t.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionTo applies a status change. Requesting the current status is a
// no-op, so closing twice keeps the first ClosedAt.
func (t *Ticket) TransitionTo(target Status, at time.Time) error {
	if _, ok := validTransitions[target]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, target)
	}
	if target == t.Status {
		return nil
	}
	if !t.CanTransitionTo(target) {
		if t.Status == StatusClosed && target == StatusOpen {
			return ErrUseReopen
		}
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, t.Status, target)
	}
	t.Status = target
	t.UpdatedAt = at
	if target == StatusClosed && t.ClosedAt == nil {
		closed := at
		t.ClosedAt = &closed
	}
	return nil
}

// Close moves the ticket to CLOSED. The reason is recorded on the first close only.
func (t *Ticket) Close(reason string, at time.Time) error {
	wasClosed := t.Status == StatusClosed
	if err := t.TransitionTo(StatusClosed, at); err != nil {
		return err
	}
	if !wasClosed && reason != "" {
		t.CloseReason = reason
	}
	return nil
}

// Reopen returns a closed ticket to OPEN. ClosedAt is kept as history.
func (t *Ticket) Reopen(at time.Time) error {
	if t.Status != StatusClosed {
		return ErrNotClosed
	}
	t.Status = StatusOpen
	t.UpdatedAt = at
	return nil
}

// Assign sets the assignee. OPEN and URGENT tickets start being worked on,
// so they move to IN_PROGRESS.
func (t *Ticket) Assign(staffID int64, at time.Time) {
	id := staffID
	t.AssignedStaffID = &id
	t.UpdatedAt = at
	if t.Status == StatusOpen || t.Status == StatusUrgent {
		t.Status = StatusInProgress
	}
}

// Filter narrows ListTickets. Zero values match everything.
type Filter struct {
	Status     Status
	CustomerID int64
}

func (f Filter) Matches(t *Ticket) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.CustomerID != 0 && t.CustomerID != f.CustomerID {
		return false
	}
	return true
}

// Repository persists tickets.
//
// Create stores the ticket and its first message as one unit. Update loads
// the ticket under a lock or version check, applies mutate and writes the
// header back; the returned ticket carries no messages. List returns headers
// only, newest first.
type Repository interface {
	Create(ctx context.Context, t *Ticket, first Message) (*Ticket, error)
	Get(ctx context.Context, id int64) (*Ticket, error)
	AppendMessage(ctx context.Context, ticketID int64, m Message) (*Message, error)
	Update(ctx context.Context, id int64, mutate func(t *Ticket) error) (*Ticket, error)
	List(ctx context.Context, filter Filter, page pagination.Request) (pagination.Page[Ticket], error)
}

// Notifier is told about committed ticket changes that concern the customer.
type Notifier interface {
	TicketReplied(ctx context.Context, t *Ticket, m *Message)
	TicketStatusChanged(ctx context.Context, t *Ticket, previous Status)
}
