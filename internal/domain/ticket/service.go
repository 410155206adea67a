package ticket

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/example/tunestore/internal/domain/identity"
	"github.com/example/tunestore/internal/domain/order"
	"github.com/example/tunestore/internal/pagination"
	"github.com/example/tunestore/internal/validation"
)

// OrderLookup resolves the optional order reference on a new ticket.
type OrderLookup interface {
	GetOrder(ctx context.Context, orderID int64) (*order.Order, error)
}

// NewTicket is the input to CreateTicket.
type NewTicket struct {
	CustomerID int64    `json:"customer_id" validate:"gt=0"`
	OrderID    *int64   `json:"order_id,omitempty" validate:"omitempty,gt=0"`
	Subject    string   `json:"subject" validate:"notblank,singleline,max=200"`
	Message    string   `json:"message" validate:"notblank,max=10000"`
	Priority   Priority `json:"priority,omitempty" validate:"omitempty,oneof=LOW NORMAL HIGH"`
}

type Service struct {
	repo     Repository
	orders   OrderLookup
	people   identity.Directory
	notifier Notifier
	nowFunc  func() time.Time
}

func NewService(repo Repository, orders OrderLookup, people identity.Directory, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		orders:   orders,
		people:   people,
		notifier: notifier,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.nowFunc = now
	return s
}

// CreateTicket opens a ticket with the customer's first message. A HIGH
// priority ticket starts out URGENT.
func (s *Service) CreateTicket(ctx context.Context, in NewTicket) (*Ticket, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	if in.OrderID != nil && s.orders != nil {
		o, err := s.orders.GetOrder(ctx, *in.OrderID)
		if err != nil {
			return nil, err
		}
		if o.CustomerID != in.CustomerID {
			return nil, order.ErrOrderForbidden
		}
	}

	now := s.nowFunc()
	status := StatusOpen
	if in.Priority == PriorityHigh {
		status = StatusUrgent
	}
	t := &Ticket{
		CustomerID: in.CustomerID,
		OrderID:    in.OrderID,
		Subject:    in.Subject,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	first := Message{
		Author:    CustomerAuthor(in.CustomerID),
		Content:   in.Message,
		CreatedAt: now,
	}

	created, err := s.repo.Create(ctx, t, first)
	if err != nil {
		return nil, err
	}
	log.Printf("[Ticket] Customer %d opened ticket %d (%s)", in.CustomerID, created.ID, created.Status)
	return created, nil
}

// Reply appends a message. It never changes the ticket status; replying to
// a closed ticket does not reopen it.
func (s *Service) Reply(ctx context.Context, ticketID int64, author Author, content string) (*Message, error) {
	if !author.Valid() {
		return nil, ErrInvalidAuthor
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	t, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if author.Kind() == AuthorCustomer && author.ID() != t.CustomerID {
		return nil, ErrTicketForbidden
	}

	m, err := s.repo.AppendMessage(ctx, ticketID, Message{
		Author:    author,
		Content:   content,
		CreatedAt: s.nowFunc(),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Ticket] %s replied on ticket %d", author, ticketID)
	if author.Kind() == AuthorStaff && s.notifier != nil {
		s.notifier.TicketReplied(ctx, t, m)
	}
	return m, nil
}

func (s *Service) AddCustomerMessage(ctx context.Context, ticketID, customerID int64, content string) (*Message, error) {
	return s.Reply(ctx, ticketID, CustomerAuthor(customerID), content)
}

func (s *Service) AddStaffReply(ctx context.Context, ticketID, staffID int64, content string) (*Message, error) {
	return s.Reply(ctx, ticketID, StaffAuthor(staffID), content)
}

// AssignTicket sets the assignee. See Ticket.Assign for the status side effect.
func (s *Service) AssignTicket(ctx context.Context, ticketID, staffID int64) (*Ticket, error) {
	if staffID <= 0 {
		return nil, ErrInvalidAuthor
	}
	return s.update(ctx, ticketID, func(t *Ticket, now time.Time) error {
		t.Assign(staffID, now)
		return nil
	})
}

func (s *Service) SetStatus(ctx context.Context, ticketID int64, status Status) (*Ticket, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	return s.update(ctx, ticketID, func(t *Ticket, now time.Time) error {
		return t.TransitionTo(status, now)
	})
}

// CloseTicket is idempotent: closing a closed ticket keeps the original ClosedAt.
func (s *Service) CloseTicket(ctx context.Context, ticketID int64, reason string) (*Ticket, error) {
	reason = strings.TrimSpace(reason)
	return s.update(ctx, ticketID, func(t *Ticket, now time.Time) error {
		return t.Close(reason, now)
	})
}

func (s *Service) ReopenTicket(ctx context.Context, ticketID int64) (*Ticket, error) {
	return s.update(ctx, ticketID, func(t *Ticket, now time.Time) error {
		return t.Reopen(now)
	})
}

func (s *Service) GetTicket(ctx context.Context, ticketID int64) (*Ticket, error) {
	return s.repo.Get(ctx, ticketID)
}

func (s *Service) ListTickets(ctx context.Context, filter Filter, page pagination.Request) (pagination.Page[Ticket], error) {
	if filter.Status != "" {
		if _, err := ParseStatus(string(filter.Status)); err != nil {
			return pagination.Page[Ticket]{}, err
		}
	}
	if err := page.Validate(); err != nil {
		return pagination.Page[Ticket]{}, err
	}
	return s.repo.List(ctx, filter, page)
}

// CanCustomerViewTicket reports whether username owns the ticket. It only
// answers the question; callers decide what to do with the answer.
func (s *Service) CanCustomerViewTicket(ctx context.Context, ticketID int64, username string) (bool, error) {
	t, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return false, err
	}
	p, err := s.people.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, identity.ErrPersonNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.ID == t.CustomerID, nil
}

func (s *Service) update(ctx context.Context, ticketID int64, apply func(t *Ticket, now time.Time) error) (*Ticket, error) {
	var previous Status
	t, err := s.repo.Update(ctx, ticketID, func(t *Ticket) error {
		previous = t.Status
		return apply(t, s.nowFunc())
	})
	if err != nil {
		return nil, err
	}
	if t.Status != previous {
		log.Printf("[Ticket] Ticket %d moved %s -> %s", ticketID, previous, t.Status)
		if s.notifier != nil {
			s.notifier.TicketStatusChanged(ctx, t, previous)
		}
	}
	return t, nil
}
