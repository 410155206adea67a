package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/tunestore/internal/domain/ticket"
	"github.com/example/tunestore/internal/pagination"
)

// TicketStore implements ticket.Repository on PostgreSQL.
type TicketStore struct {
	db *sql.DB
}

func NewTicketStore(db *sql.DB) *TicketStore {
	return &TicketStore{db: db}
}

const ticketColumns = `id, customer_id, order_id, assigned_staff_id, subject, status, close_reason, created_at, updated_at, closed_at`

func scanTicket(row interface{ Scan(...any) error }) (*ticket.Ticket, error) {
	var (
		t                ticket.Ticket
		orderID, staffID sql.NullInt64
		closedAt         sql.NullTime
	)
	err := row.Scan(&t.ID, &t.CustomerID, &orderID, &staffID, &t.Subject, &t.Status,
		&t.CloseReason, &t.CreatedAt, &t.UpdatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	t.OrderID = int64Ptr(orderID)
	t.AssignedStaffID = int64Ptr(staffID)
	t.ClosedAt = timePtr(closedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func insertMessage(ctx context.Context, q queryer, ticketID int64, m ticket.Message) (*ticket.Message, error) {
	if !m.Author.Valid() {
		return nil, ticket.ErrInvalidAuthor
	}
	m.TicketID = ticketID
	err := q.QueryRowContext(ctx,
		`INSERT INTO ticket_messages (ticket_id, author_kind, author_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		ticketID, string(m.Author.Kind()), m.Author.ID(), m.Content, m.CreatedAt).Scan(&m.ID)
	if isForeignKeyViolation(err) {
		return nil, ticket.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("insert ticket message: %w", err)
	}
	return &m, nil
}

func (s *TicketStore) Create(ctx context.Context, t *ticket.Ticket, first ticket.Message) (*ticket.Ticket, error) {
	out := *t
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO tickets (customer_id, order_id, assigned_staff_id, subject, status, close_reason, created_at, updated_at, closed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
			t.CustomerID, nullInt64(t.OrderID), nullInt64(t.AssignedStaffID), t.Subject, string(t.Status),
			t.CloseReason, t.CreatedAt, t.UpdatedAt, nullTime(t.ClosedAt)).Scan(&out.ID)
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		m, err := insertMessage(ctx, tx, out.ID, first)
		if err != nil {
			return err
		}
		out.Messages = []ticket.Message{*m}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *TicketStore) Get(ctx context.Context, id int64) (*ticket.Ticket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ticket.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_kind, author_id, content, created_at FROM ticket_messages
		 WHERE ticket_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("load ticket messages: %w", err)
	}
	defer rows.Close()

	t.Messages = []ticket.Message{}
	for rows.Next() {
		var (
			m        ticket.Message
			kind     string
			authorID int64
		)
		if err := rows.Scan(&m.ID, &kind, &authorID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket message: %w", err)
		}
		if m.Author, err = ticket.NewAuthor(ticket.AuthorKind(kind), authorID); err != nil {
			return nil, fmt.Errorf("message %d: %w", m.ID, err)
		}
		m.TicketID = id
		m.CreatedAt = m.CreatedAt.UTC()
		t.Messages = append(t.Messages, m)
	}
	return t, rows.Err()
}

func (s *TicketStore) AppendMessage(ctx context.Context, ticketID int64, m ticket.Message) (*ticket.Message, error) {
	return insertMessage(ctx, s.db, ticketID, m)
}

// Update locks the ticket row and writes the header back guarded by the
// status mutate saw.
func (s *TicketStore) Update(ctx context.Context, id int64, mutate func(t *ticket.Ticket) error) (*ticket.Ticket, error) {
	var out *ticket.Ticket
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := scanTicket(tx.QueryRowContext(ctx,
			`SELECT `+ticketColumns+` FROM tickets WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ticket.ErrTicketNotFound
		}
		if err != nil {
			return fmt.Errorf("lock ticket %d: %w", id, err)
		}

		prev := t.Status
		if err := mutate(t); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE tickets SET assigned_staff_id = $1, status = $2, close_reason = $3, updated_at = $4, closed_at = $5
			 WHERE id = $6 AND status = $7`,
			nullInt64(t.AssignedStaffID), string(t.Status), t.CloseReason, t.UpdatedAt, nullTime(t.ClosedAt),
			id, string(prev))
		if err != nil {
			return fmt.Errorf("update ticket %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ticket.ErrConcurrentUpdate
		}
		t.Messages = nil
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *TicketStore) List(ctx context.Context, filter ticket.Filter, page pagination.Request) (pagination.Page[ticket.Ticket], error) {
	out := pagination.Page[ticket.Ticket]{Items: []ticket.Ticket{}, Page: page.Page, Size: page.Size}

	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CustomerID != 0 {
		args = append(args, filter.CustomerID)
		conds = append(conds, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`+where, args...).Scan(&out.Total); err != nil {
		return out, fmt.Errorf("count tickets: %w", err)
	}

	args = append(args, page.Size, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM tickets%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		ticketColumns, where, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return out, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return out, fmt.Errorf("scan ticket: %w", err)
		}
		out.Items = append(out.Items, *t)
	}
	return out, rows.Err()
}

var _ ticket.Repository = (*TicketStore)(nil)
