package memory

import (
	"context"
	"sort"

	"github.com/example/tunestore/internal/domain/ticket"
	"github.com/example/tunestore/internal/pagination"
)

type (
	ticketRow  = ticket.Ticket
	messageRow = ticket.Message
)

func copyTicket(t ticket.Ticket) *ticket.Ticket {
	if t.OrderID != nil {
		v := *t.OrderID
		t.OrderID = &v
	}
	if t.AssignedStaffID != nil {
		v := *t.AssignedStaffID
		t.AssignedStaffID = &v
	}
	if t.ClosedAt != nil {
		v := *t.ClosedAt
		t.ClosedAt = &v
	}
	t.Messages = nil
	return &t
}

// Tickets is the ticket.Repository view of the store.
type Tickets struct{ s *Store }

func (s *Store) Tickets() *Tickets { return &Tickets{s: s} }

func (r *Tickets) Create(ctx context.Context, t *ticket.Ticket, first ticket.Message) (*ticket.Ticket, error) {
	if !first.Author.Valid() {
		return nil, ticket.ErrInvalidAuthor
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row := copyTicket(*t)
	row.ID = r.s.nextID("tickets")
	first.ID = r.s.nextID("ticket_messages")
	first.TicketID = row.ID
	r.s.tickets[row.ID] = *row
	r.s.messages[row.ID] = []messageRow{first}

	out := copyTicket(*row)
	out.Messages = []ticket.Message{first}
	return out, nil
}

func (r *Tickets) Get(ctx context.Context, id int64) (*ticket.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, ticket.ErrTicketNotFound
	}
	out := copyTicket(t)
	out.Messages = append([]ticket.Message(nil), r.s.messages[id]...)
	return out, nil
}

func (r *Tickets) AppendMessage(ctx context.Context, ticketID int64, m ticket.Message) (*ticket.Message, error) {
	if !m.Author.Valid() {
		return nil, ticket.ErrInvalidAuthor
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tickets[ticketID]; !ok {
		return nil, ticket.ErrTicketNotFound
	}
	m.ID = r.s.nextID("ticket_messages")
	m.TicketID = ticketID
	r.s.messages[ticketID] = append(r.s.messages[ticketID], m)
	return &m, nil
}

func (r *Tickets) Update(ctx context.Context, id int64, mutate func(t *ticket.Ticket) error) (*ticket.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.tickets[id]
	if !ok {
		return nil, ticket.ErrTicketNotFound
	}
	next := copyTicket(current)
	if err := mutate(next); err != nil {
		return nil, err
	}
	r.s.tickets[id] = *copyTicket(*next)
	return next, nil
}

func (r *Tickets) List(ctx context.Context, filter ticket.Filter, page pagination.Request) (pagination.Page[ticket.Ticket], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []ticket.Ticket
	for _, t := range r.s.tickets {
		if filter.Matches(&t) {
			all = append(all, *copyTicket(t))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return pagination.Slice(all, page), nil
}

var _ ticket.Repository = (*Tickets)(nil)
