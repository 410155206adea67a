package memory

import (
	"context"
	"sort"

	"github.com/example/tunestore/internal/domain/cart"
	"github.com/example/tunestore/internal/domain/order"
)

type cartItemRow = cart.Item

// Carts is the cart.Repository view of the store.
type Carts struct{ s *Store }

func (s *Store) Carts() *Carts { return &Carts{s: s} }

func (s *Store) cartFor(customerID int64) *cartRow {
	c, ok := s.carts[customerID]
	if !ok {
		c = &cartRow{id: s.nextID("carts"), customerID: customerID, createdAt: s.nowFunc()}
		s.carts[customerID] = c
	}
	return c
}

func (s *Store) itemsOf(cartID int64) []cart.Item {
	var items []cart.Item
	for _, it := range s.cartItems {
		if it.CartID == cartID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// owns reports whether a non-cancelled order of the customer contains the track.
func (s *Store) owns(customerID, trackID int64) bool {
	for _, o := range s.orders {
		if o.CustomerID != customerID || o.Status == order.StatusCancelled {
			continue
		}
		for _, it := range o.Items {
			if it.TrackID == trackID {
				return true
			}
		}
	}
	return false
}

func (r *Carts) GetOrCreate(ctx context.Context, customerID int64) (*cart.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.cartFor(customerID)
	return &cart.Cart{
		ID:         c.id,
		CustomerID: c.customerID,
		Items:      r.s.itemsOf(c.id),
		CreatedAt:  c.createdAt,
	}, nil
}

func (r *Carts) AddItem(ctx context.Context, customerID int64, item cart.NewItem) (*cart.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.cartFor(customerID)
	if r.s.owns(customerID, item.TrackID) {
		return nil, cart.ErrTrackAlreadyOwned
	}
	for _, it := range r.s.itemsOf(c.id) {
		if it.TrackID == item.TrackID {
			return nil, cart.ErrTrackAlreadyInCart
		}
	}
	row := cart.Item{
		ID:         r.s.nextID("cart_items"),
		CartID:     c.id,
		CustomerID: customerID,
		TrackID:    item.TrackID,
		UnitPrice:  item.UnitPrice,
		Quantity:   1,
		AddedAt:    r.s.nowFunc(),
	}
	r.s.cartItems[row.ID] = row
	return &row, nil
}

func (r *Carts) GetItem(ctx context.Context, itemID int64) (*cart.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.cartItems[itemID]
	if !ok {
		return nil, cart.ErrItemNotFound
	}
	return &it, nil
}

func (r *Carts) DeleteItem(ctx context.Context, itemID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.cartItems[itemID]; !ok {
		return cart.ErrItemNotFound
	}
	delete(r.s.cartItems, itemID)
	return nil
}

func (r *Carts) Clear(ctx context.Context, customerID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[customerID]
	if !ok {
		return nil
	}
	for id, it := range r.s.cartItems {
		if it.CartID == c.id {
			delete(r.s.cartItems, id)
		}
	}
	return nil
}

var _ cart.Repository = (*Carts)(nil)
