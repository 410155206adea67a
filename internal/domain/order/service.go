package order

import (
	"context"
	"log"
	"time"

	"github.com/example/tunestore/internal/pagination"
)

type Service struct {
	repo     Repository
	notifier Notifier
	nowFunc  func() time.Time
}

func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.nowFunc = now
	return s
}

// PlaceOrder turns the customer's cart into a PENDING order and empties the
// cart atomically. The receipt is sent after commit.
func (s *Service) PlaceOrder(ctx context.Context, customerID int64) (*Order, error) {
	if customerID <= 0 {
		return nil, ErrInvalidCustomer
	}

	o, err := s.repo.Checkout(ctx, customerID, func(lines []CartLine) (*Order, error) {
		return newOrder(customerID, lines, s.nowFunc())
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Order] Placed order %d for customer %d: %d items, total %s",
		o.ID, customerID, len(o.Items), o.Total.StringFixed(2))
	if s.notifier != nil {
		s.notifier.OrderPlaced(ctx, o)
	}
	return o, nil
}

// CancelOrder cancels an order on behalf of its owner. Ownership is checked
// against the stored customer id.
func (s *Service) CancelOrder(ctx context.Context, orderID, customerID int64, reason string) (*Order, error) {
	var previous Status
	o, err := s.repo.Update(ctx, orderID, func(o *Order) error {
		if o.CustomerID != customerID {
			return ErrOrderForbidden
		}
		previous = o.Status
		if err := o.TransitionTo(StatusCancelled, s.nowFunc()); err != nil {
			return err
		}
		o.CancelReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Order] Customer %d cancelled order %d (was %s)", customerID, orderID, previous)
	s.notifyStatus(ctx, o, previous)
	return o, nil
}

// UpdateOrderStatus is the staff operation. Authorization happens at the boundary.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, target Status) (*Order, error) {
	if _, err := ParseStatus(string(target)); err != nil {
		return nil, err
	}

	var previous Status
	o, err := s.repo.Update(ctx, orderID, func(o *Order) error {
		previous = o.Status
		return o.TransitionTo(target, s.nowFunc())
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Order] Order %d moved %s -> %s", orderID, previous, target)
	s.notifyStatus(ctx, o, previous)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	return s.repo.Get(ctx, orderID)
}

func (s *Service) ListOrders(ctx context.Context, customerID int64, page pagination.Request) (pagination.Page[Order], error) {
	if customerID <= 0 {
		return pagination.Page[Order]{}, ErrInvalidCustomer
	}
	if err := page.Validate(); err != nil {
		return pagination.Page[Order]{}, err
	}
	return s.repo.ListByCustomer(ctx, customerID, page)
}

func (s *Service) notifyStatus(ctx context.Context, o *Order, previous Status) {
	if s.notifier != nil {
		s.notifier.OrderStatusChanged(ctx, o, previous)
	}
}
