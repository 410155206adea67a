package cart

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/example/tunestore/internal/domain/catalog"
)

// TrackLookup is the part of the catalog the cart needs.
type TrackLookup interface {
	GetTrack(ctx context.Context, id int64) (*catalog.Track, error)
}

type Service struct {
	repo    Repository
	catalog TrackLookup
	loads   singleflight.Group
}

func NewService(repo Repository, tracks TrackLookup) *Service {
	return &Service{repo: repo, catalog: tracks}
}

// GetOrCreateCart returns the customer's cart, creating an empty one on first access.
func (s *Service) GetOrCreateCart(ctx context.Context, customerID int64) (*Cart, error) {
	if customerID <= 0 {
		return nil, ErrInvalidCustomer
	}
	// The shared load outlives any single caller; each caller only stops
	// waiting on its own cancellation.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(strconv.FormatInt(customerID, 10), func() (any, error) {
		return s.repo.GetOrCreate(loadCtx, customerID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// callers sharing a flight must not share the slice
		return res.Val.(*Cart).clone(), nil
	}
}

func (s *Service) AddToCart(ctx context.Context, customerID, trackID int64) (*Item, error) {
	if customerID <= 0 {
		return nil, ErrInvalidCustomer
	}
	track, err := s.catalog.GetTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if track.Price.IsNegative() {
		return nil, catalog.ErrNegativePrice
	}

	item, err := s.repo.AddItem(ctx, customerID, NewItem{TrackID: track.ID, UnitPrice: track.Price})
	if err != nil {
		return nil, fmt.Errorf("add track %d: %w", trackID, err)
	}
	log.Printf("[Cart] Customer %d added track %d at %s", customerID, trackID, item.UnitPrice.StringFixed(2))
	return item, nil
}

func (s *Service) RemoveItem(ctx context.Context, customerID, itemID int64) error {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.CustomerID != customerID {
		return ErrItemForbidden
	}
	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	log.Printf("[Cart] Customer %d removed item %d", customerID, itemID)
	return nil
}

// ClearCart removes every line. Clearing an empty cart is a no-op.
func (s *Service) ClearCart(ctx context.Context, customerID int64) error {
	if customerID <= 0 {
		return ErrInvalidCustomer
	}
	return s.repo.Clear(ctx, customerID)
}

// GetTotal sums the cart's lines. An empty cart totals zero.
func (s *Service) GetTotal(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	c, err := s.GetOrCreateCart(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Total(), nil
}
