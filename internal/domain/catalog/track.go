package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/tunestore/internal/apperr"
	"github.com/example/tunestore/internal/pagination"
)

var (
	ErrTrackNotFound = apperr.New(apperr.NotFound, "track not found")
	ErrNegativePrice = apperr.New(apperr.ValidationFailure, "track price must not be negative")
)

// Track is a purchasable music item. Price is fixed-point.
type Track struct {
	ID         int64           `json:"id"`
	Title      string          `json:"title"`
	ArtistID   int64           `json:"artist_id"`
	ArtistName string          `json:"artist_name"`
	Price      decimal.Decimal `json:"price"`
	Genres     []string        `json:"genres"`
	CreatedAt  time.Time       `json:"created_at"`
	DeletedAt  *time.Time      `json:"deleted_at,omitempty"`
}

// Available reports whether the track can still be sold.
func (t *Track) Available() bool { return t.DeletedAt == nil }

// Reader is the lookup side of the catalog store.
type Reader interface {
	GetTrack(ctx context.Context, id int64) (*Track, error)
	ListTracks(ctx context.Context, page pagination.Request) (pagination.Page[Track], error)
}

type Service struct {
	reader Reader
}

func NewService(reader Reader) *Service {
	return &Service{reader: reader}
}

// GetTrack returns a sellable track. Soft-deleted tracks are reported as not found.
func (s *Service) GetTrack(ctx context.Context, id int64) (*Track, error) {
	t, err := s.reader.GetTrack(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Available() {
		return nil, ErrTrackNotFound
	}
	if t.Price.IsNegative() {
		return nil, ErrNegativePrice
	}
	return t, nil
}

func (s *Service) ListTracks(ctx context.Context, page pagination.Request) (pagination.Page[Track], error) {
	if err := page.Validate(); err != nil {
		return pagination.Page[Track]{}, err
	}
	return s.reader.ListTracks(ctx, page)
}
