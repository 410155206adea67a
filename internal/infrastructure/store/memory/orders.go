package memory

import (
	"context"
	"sort"

	"github.com/example/tunestore/internal/domain/order"
	"github.com/example/tunestore/internal/pagination"
)

type orderRow = order.Order

func copyOrder(o order.Order) *order.Order {
	o.Items = append([]order.Item(nil), o.Items...)
	return &o
}

// Orders is the order.Repository view of the store.
type Orders struct{ s *Store }

func (s *Store) Orders() *Orders { return &Orders{s: s} }

func (r *Orders) Checkout(ctx context.Context, customerID int64, build func(lines []order.CartLine) (*order.Order, error)) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var lines []order.CartLine
	if c, ok := r.s.carts[customerID]; ok {
		for _, it := range r.s.itemsOf(c.id) {
			line := order.CartLine{
				CartItemID: it.ID,
				TrackID:    it.TrackID,
				UnitPrice:  it.UnitPrice,
				Quantity:   it.Quantity,
			}
			if t, ok := r.s.tracks[it.TrackID]; ok {
				line.Title = t.Title
				line.ArtistName = t.ArtistName
				line.Available = t.DeletedAt == nil
			}
			lines = append(lines, line)
		}
	}

	o, err := build(lines)
	if err != nil {
		return nil, err
	}
	o.ID = r.s.nextID("orders")
	r.s.orders[o.ID] = *copyOrder(*o)
	for _, line := range lines {
		delete(r.s.cartItems, line.CartItemID)
	}
	return copyOrder(*o), nil
}

func (r *Orders) Get(ctx context.Context, id int64) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (r *Orders) ListByCustomer(ctx context.Context, customerID int64, page pagination.Request) (pagination.Page[order.Order], error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []order.Order
	for _, o := range r.s.orders {
		if o.CustomerID == customerID {
			all = append(all, *copyOrder(o))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return pagination.Slice(all, page), nil
}

func (r *Orders) Update(ctx context.Context, id int64, mutate func(o *order.Order) error) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	next := copyOrder(current)
	if err := mutate(next); err != nil {
		return nil, err
	}
	r.s.orders[id] = *copyOrder(*next)
	return next, nil
}

var _ order.Repository = (*Orders)(nil)
