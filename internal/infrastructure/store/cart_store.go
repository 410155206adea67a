package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/tunestore/internal/domain/cart"
)

// CartStore implements cart.Repository on PostgreSQL.
type CartStore struct {
	db *sql.DB
}

func NewCartStore(db *sql.DB) *CartStore {
	return &CartStore{db: db}
}

// ensureCart creates the customer's cart row if it does not exist yet.
func ensureCart(ctx context.Context, q queryer, customerID int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO carts (customer_id) VALUES ($1) ON CONFLICT (customer_id) DO NOTHING`, customerID)
	if err != nil {
		return fmt.Errorf("ensure cart: %w", err)
	}
	return nil
}

func (s *CartStore) GetOrCreate(ctx context.Context, customerID int64) (*cart.Cart, error) {
	if err := ensureCart(ctx, s.db, customerID); err != nil {
		return nil, err
	}

	c := &cart.Cart{CustomerID: customerID, Items: []cart.Item{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM carts WHERE customer_id = $1`, customerID).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, track_id, unit_price, quantity, added_at FROM cart_items WHERE cart_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		it := cart.Item{CartID: c.ID, CustomerID: customerID}
		if err := rows.Scan(&it.ID, &it.TrackID, &it.UnitPrice, &it.Quantity, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		it.AddedAt = it.AddedAt.UTC()
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// AddItem locks the cart row so the ownership and duplicate checks cannot
// interleave with a checkout or another add for the same customer.
func (s *CartStore) AddItem(ctx context.Context, customerID int64, item cart.NewItem) (*cart.Item, error) {
	var out *cart.Item
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := ensureCart(ctx, tx, customerID); err != nil {
			return err
		}
		var cartID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM carts WHERE customer_id = $1 FOR UPDATE`, customerID).Scan(&cartID); err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}

		owned, err := ownsTrack(ctx, tx, customerID, item.TrackID)
		if err != nil {
			return err
		}
		if owned {
			return cart.ErrTrackAlreadyOwned
		}

		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM cart_items WHERE cart_id = $1 AND track_id = $2)`,
			cartID, item.TrackID).Scan(&exists); err != nil {
			return fmt.Errorf("check cart: %w", err)
		}
		if exists {
			return cart.ErrTrackAlreadyInCart
		}

		it := cart.Item{CartID: cartID, CustomerID: customerID, TrackID: item.TrackID, UnitPrice: item.UnitPrice}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO cart_items (cart_id, track_id, unit_price, quantity) VALUES ($1, $2, $3, 1)
			 RETURNING id, quantity, added_at`,
			cartID, item.TrackID, item.UnitPrice).Scan(&it.ID, &it.Quantity, &it.AddedAt)
		if isUniqueViolation(err) {
			return cart.ErrTrackAlreadyInCart
		}
		if err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
		it.AddedAt = it.AddedAt.UTC()
		out = &it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ownsTrack reports whether a non-cancelled order of the customer contains the track.
func ownsTrack(ctx context.Context, q queryer, customerID, trackID int64) (bool, error) {
	var owned bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM order_items oi JOIN orders o ON o.id = oi.order_id
			WHERE o.customer_id = $1 AND oi.track_id = $2 AND o.status <> 'CANCELLED')`,
		customerID, trackID).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("check ownership: %w", err)
	}
	return owned, nil
}

func (s *CartStore) GetItem(ctx context.Context, itemID int64) (*cart.Item, error) {
	var it cart.Item
	err := s.db.QueryRowContext(ctx,
		`SELECT ci.id, ci.cart_id, c.customer_id, ci.track_id, ci.unit_price, ci.quantity, ci.added_at
		 FROM cart_items ci JOIN carts c ON c.id = ci.cart_id WHERE ci.id = $1`, itemID).
		Scan(&it.ID, &it.CartID, &it.CustomerID, &it.TrackID, &it.UnitPrice, &it.Quantity, &it.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cart.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cart item %d: %w", itemID, err)
	}
	it.AddedAt = it.AddedAt.UTC()
	return &it, nil
}

func (s *CartStore) DeleteItem(ctx context.Context, itemID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item %d: %w", itemID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

func (s *CartStore) Clear(ctx context.Context, customerID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = (SELECT id FROM carts WHERE customer_id = $1)`, customerID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

var _ cart.Repository = (*CartStore)(nil)
