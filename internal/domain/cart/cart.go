package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/tunestore/internal/apperr"
)

var (
	ErrInvalidCustomer    = apperr.New(apperr.ValidationFailure, "customer id must be positive")
	ErrTrackAlreadyInCart = apperr.New(apperr.Conflict, "track is already in the cart")
	ErrTrackAlreadyOwned  = apperr.New(apperr.Conflict, "track has already been purchased")
	ErrItemNotFound       = apperr.New(apperr.NotFound, "cart item not found")
	ErrItemForbidden      = apperr.New(apperr.Forbidden, "cart item belongs to another customer")
)

// Item is a cart line. Digital goods are never bought twice, so Quantity is always 1.
type Item struct {
	ID         int64           `json:"id"`
	CartID     int64           `json:"cart_id"`
	CustomerID int64           `json:"customer_id"`
	TrackID    int64           `json:"track_id"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	AddedAt    time.Time       `json:"added_at"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Items      []Item    `json:"items"`
	CreatedAt  time.Time `json:"created_at"`
}

// Total is the sum of line subtotals; zero for an empty cart.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c *Cart) clone() *Cart {
	out := *c
	out.Items = append([]Item(nil), c.Items...)
	return &out
}

// NewItem is what AddItem persists. The price is frozen at add time.
type NewItem struct {
	TrackID   int64
	UnitPrice decimal.Decimal
}

// Repository persists carts. AddItem must run the ownership check, the
// duplicate check and the insert as one atomic unit per customer, returning
// ErrTrackAlreadyOwned or ErrTrackAlreadyInCart.
type Repository interface {
	GetOrCreate(ctx context.Context, customerID int64) (*Cart, error)
	AddItem(ctx context.Context, customerID int64, item NewItem) (*Item, error)
	GetItem(ctx context.Context, itemID int64) (*Item, error)
	DeleteItem(ctx context.Context, itemID int64) error
	Clear(ctx context.Context, customerID int64) error
}
