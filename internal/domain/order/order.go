package order

import (
	"context"
	"fmt"
	"time"

	"github.com/example/tunestore/internal/apperr"
	"github.com/example/tunestore/internal/pagination"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses lists every order status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}

var (
	ErrInvalidCustomer   = apperr.New(apperr.ValidationFailure, "customer id must be positive")
	ErrUnknownStatus     = apperr.New(apperr.ValidationFailure, "unknown order status")
	ErrOrderNotFound     = apperr.New(apperr.NotFound, "order not found")
	ErrOrderForbidden    = apperr.New(apperr.Forbidden, "order belongs to another customer")
	ErrCartEmpty         = apperr.New(apperr.Conflict, "cart is empty")
	ErrTrackUnavailable  = apperr.New(apperr.NotFound, "track in cart is no longer available")
	ErrInvalidTransition = apperr.New(apperr.InvalidStateTransition, "invalid order status transition")
	ErrConcurrentUpdate  = apperr.New(apperr.Conflict, "order was modified concurrently")

	ErrOrderCancelled = fmt.Errorf("%w: order is already cancelled", ErrInvalidTransition)
	ErrOrderDelivered = fmt.Errorf("%w: order has already been delivered", ErrInvalidTransition)
	ErrOrderShipped   = fmt.Errorf("%w: cannot cancel shipped order", ErrInvalidTransition)
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {}, // terminal state
	StatusCancelled:  {}, // terminal state
}

// ParseStatus accepts the exact upper-case status names.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Item is a purchase-time copy of a cart line. It never changes after the
// order is created.
type Item struct {
	Position   int             `json:"position"`
	TrackID    int64           `json:"track_id"`
	Title      string          `json:"title"`
	ArtistName string          `json:"artist_name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID           int64           `json:"id"`
	CustomerID   int64           `json:"customer_id"`
	Status       Status          `json:"status"`
	Total        decimal.Decimal `json:"total"`
	Items        []Item          `json:"items"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	case o.Status == StatusDelivered:
		return ErrOrderDelivered
	case o.Status == StatusShipped && target == StatusCancelled:
		return ErrOrderShipped
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, target)
	}
}

// TransitionTo moves the order to target if the legality table allows it.
func (o *Order) TransitionTo(target Status, at time.Time) error {
	if !o.CanTransitionTo(target) {
		return o.transitionError(target)
	}
	o.Status = target
	o.UpdatedAt = at
	return nil
}

// CartLine is a cart item joined with its current catalog entry, as read
// inside the checkout transaction.
type CartLine struct {
	CartItemID int64
	TrackID    int64
	Title      string
	ArtistName string
	UnitPrice  decimal.Decimal
	Quantity   int
	Available  bool
}

// newOrder snapshots cart lines into a PENDING order. The unit price comes
// from the cart line, not the live catalog.
func newOrder(customerID int64, lines []CartLine, now time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrCartEmpty
	}
	o := &Order{
		CustomerID: customerID,
		Status:     StatusPending,
		Total:      decimal.Zero,
		Items:      make([]Item, 0, len(lines)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, line := range lines {
		if !line.Available {
			return nil, fmt.Errorf("%w: track %d", ErrTrackUnavailable, line.TrackID)
		}
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		item := Item{
			Position:   i + 1,
			TrackID:    line.TrackID,
			Title:      line.Title,
			ArtistName: line.ArtistName,
			UnitPrice:  line.UnitPrice,
			Quantity:   qty,
		}
		o.Items = append(o.Items, item)
		o.Total = o.Total.Add(item.Subtotal())
	}
	return o, nil
}

// Repository persists orders.
//
// Checkout runs build against the customer's locked cart lines and, if build
// succeeds, stores the order and empties the cart in the same transaction.
// Update loads the order under a row lock, applies mutate and writes the
// result only if the status is still the one mutate saw.
type Repository interface {
	Checkout(ctx context.Context, customerID int64, build func(lines []CartLine) (*Order, error)) (*Order, error)
	Get(ctx context.Context, id int64) (*Order, error)
	ListByCustomer(ctx context.Context, customerID int64, page pagination.Request) (pagination.Page[Order], error)
	Update(ctx context.Context, id int64, mutate func(o *Order) error) (*Order, error)
}

// Notifier is told about committed order changes. Implementations must not
// block the caller on delivery failures.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order)
	OrderStatusChanged(ctx context.Context, o *Order, previous Status)
}
