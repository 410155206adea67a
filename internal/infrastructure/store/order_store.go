package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/tunestore/internal/domain/order"
	"github.com/example/tunestore/internal/pagination"
	"github.com/lib/pq"
)

// OrderStore implements order.Repository on PostgreSQL.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

const orderColumns = `id, customer_id, status, total, cancel_reason, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*order.Order, error) {
	var o order.Order
	if err := row.Scan(&o.ID, &o.CustomerID, &o.Status, &o.Total, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	o.Items = []order.Item{}
	return &o, nil
}

// Checkout holds the cart row lock for the whole transaction, so a second
// concurrent checkout of the same cart sees it already emptied.
func (s *OrderStore) Checkout(ctx context.Context, customerID int64, build func(lines []order.CartLine) (*order.Order, error)) (*order.Order, error) {
	var out *order.Order
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var cartID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM carts WHERE customer_id = $1 FOR UPDATE`, customerID).Scan(&cartID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock cart: %w", err)
		}

		var lines []order.CartLine
		if err == nil {
			lines, err = loadCartLines(ctx, tx, cartID)
			if err != nil {
				return err
			}
		}

		o, err := build(lines)
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (customer_id, status, total, cancel_reason, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			o.CustomerID, string(o.Status), o.Total, o.CancelReason, o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, it := range o.Items {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, position, track_id, title, artist_name, unit_price, quantity)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				o.ID, it.Position, it.TrackID, it.Title, it.ArtistName, it.UnitPrice, it.Quantity)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		ids := make([]int64, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.CartItemID)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
			return fmt.Errorf("empty cart: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func loadCartLines(ctx context.Context, tx *sql.Tx, cartID int64) ([]order.CartLine, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT ci.id, ci.track_id, t.title, a.name, ci.unit_price, ci.quantity, t.deleted_at IS NULL
		 FROM cart_items ci
		 JOIN tracks t ON t.id = ci.track_id
		 JOIN artists a ON a.id = t.artist_id
		 WHERE ci.cart_id = $1 ORDER BY ci.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	defer rows.Close()

	var lines []order.CartLine
	for rows.Next() {
		var l order.CartLine
		if err := rows.Scan(&l.CartItemID, &l.TrackID, &l.Title, &l.ArtistName, &l.UnitPrice, &l.Quantity, &l.Available); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *OrderStore) Get(ctx context.Context, id int64) (*order.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	if err := attachItems(ctx, s.db, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderStore) ListByCustomer(ctx context.Context, customerID int64, page pagination.Request) (pagination.Page[order.Order], error) {
	out := pagination.Page[order.Order]{Items: []order.Order{}, Page: page.Page, Size: page.Size}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE customer_id = $1`, customerID).Scan(&out.Total); err != nil {
		return out, fmt.Errorf("count orders: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		customerID, page.Size, page.Offset())
	if err != nil {
		return out, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return out, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	if err := attachItems(ctx, s.db, orders); err != nil {
		return out, err
	}
	for _, o := range orders {
		out.Items = append(out.Items, *o)
	}
	return out, nil
}

// attachItems loads the line items of all given orders in one query.
func attachItems(ctx context.Context, q queryer, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[int64]*order.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT order_id, position, track_id, title, artist_name, unit_price, quantity
		 FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID int64
			it      order.Item
		)
		if err := rows.Scan(&orderID, &it.Position, &it.TrackID, &it.Title, &it.ArtistName, &it.UnitPrice, &it.Quantity); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

// Update locks the order row, applies mutate and writes the new status back
// guarded by the status mutate saw.
func (s *OrderStore) Update(ctx context.Context, id int64, mutate func(o *order.Order) error) (*order.Order, error) {
	var out *order.Order
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		o, err := scanOrder(tx.QueryRowContext(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return order.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order %d: %w", id, err)
		}
		if err := attachItems(ctx, tx, []*order.Order{o}); err != nil {
			return err
		}

		prev := o.Status
		if err := mutate(o); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, cancel_reason = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
			string(o.Status), o.CancelReason, o.UpdatedAt, id, string(prev))
		if err != nil {
			return fmt.Errorf("update order %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return order.ErrConcurrentUpdate
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ order.Repository = (*OrderStore)(nil)
