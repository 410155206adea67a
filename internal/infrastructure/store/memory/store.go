// Package memory is an in-process implementation of every storefront
// repository. A single mutex guards all collections, so each repository call
// is atomic in the same way a database transaction is.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/tunestore/internal/domain/catalog"
	"github.com/example/tunestore/internal/domain/identity"
	"github.com/example/tunestore/internal/pagination"
)

type cartRow struct {
	id         int64
	customerID int64
	createdAt  time.Time
}

type Store struct {
	mu  sync.Mutex
	seq map[string]int64

	tracks    map[int64]catalog.Track
	people    map[int64]identity.Person
	carts     map[int64]*cartRow // customer id -> cart
	cartItems map[int64]cartItemRow
	orders    map[int64]orderRow
	tickets   map[int64]ticketRow
	messages  map[int64][]messageRow // ticket id -> messages

	nowFunc func() time.Time
}

func New() *Store {
	return &Store{
		seq:       make(map[string]int64),
		tracks:    make(map[int64]catalog.Track),
		people:    make(map[int64]identity.Person),
		carts:     make(map[int64]*cartRow),
		cartItems: make(map[int64]cartItemRow),
		orders:    make(map[int64]orderRow),
		tickets:   make(map[int64]ticketRow),
		messages:  make(map[int64][]messageRow),
		nowFunc:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// PutTrack inserts or replaces a catalog entry.
func (s *Store) PutTrack(t catalog.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Genres = append([]string(nil), t.Genres...)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.nowFunc()
	}
	s.tracks[t.ID] = t
}

// SoftDeleteTrack marks a track as no longer sellable.
func (s *Store) SoftDeleteTrack(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[id]; ok {
		at := s.nowFunc()
		t.DeletedAt = &at
		s.tracks[id] = t
	}
}

func (s *Store) PutPerson(p identity.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people[p.ID] = p
}

// Catalog

func (s *Store) GetTrack(ctx context.Context, id int64) (*catalog.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return nil, catalog.ErrTrackNotFound
	}
	t.Genres = append([]string(nil), t.Genres...)
	return &t, nil
}

func (s *Store) ListTracks(ctx context.Context, page pagination.Request) (pagination.Page[catalog.Track], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]catalog.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if t.DeletedAt == nil {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return pagination.Slice(all, page), nil
}

// Identity directory

func (s *Store) ByID(ctx context.Context, id int64) (*identity.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.people[id]
	if !ok {
		return nil, identity.ErrPersonNotFound
	}
	return &p, nil
}

func (s *Store) ByUsername(ctx context.Context, username string) (*identity.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.people {
		if p.Username == username {
			p := p
			return &p, nil
		}
	}
	return nil, identity.ErrPersonNotFound
}

var (
	_ catalog.Reader     = (*Store)(nil)
	_ identity.Directory = (*Store)(nil)
)
