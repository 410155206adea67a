package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/tunestore/internal/domain/catalog"
	"github.com/example/tunestore/internal/domain/identity"
	"github.com/example/tunestore/internal/pagination"
	"github.com/lib/pq"
)

// CatalogStore reads tracks joined with their artist.
type CatalogStore struct {
	db *sql.DB
}

func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

const trackColumns = `t.id, t.title, t.artist_id, a.name, t.price, t.genres, t.created_at, t.deleted_at`

func scanTrack(row interface{ Scan(...any) error }) (*catalog.Track, error) {
	var (
		t       catalog.Track
		deleted sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Title, &t.ArtistID, &t.ArtistName, &t.Price, pq.Array(&t.Genres), &t.CreatedAt, &deleted); err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.DeletedAt = timePtr(deleted)
	return &t, nil
}

func (s *CatalogStore) GetTrack(ctx context.Context, id int64) (*catalog.Track, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+trackColumns+` FROM tracks t JOIN artists a ON a.id = t.artist_id WHERE t.id = $1`, id)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track %d: %w", id, err)
	}
	return t, nil
}

func (s *CatalogStore) ListTracks(ctx context.Context, page pagination.Request) (pagination.Page[catalog.Track], error) {
	out := pagination.Page[catalog.Track]{Items: []catalog.Track{}, Page: page.Page, Size: page.Size}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks WHERE deleted_at IS NULL`).Scan(&out.Total); err != nil {
		return out, fmt.Errorf("count tracks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks t JOIN artists a ON a.id = t.artist_id
		 WHERE t.deleted_at IS NULL ORDER BY t.id LIMIT $1 OFFSET $2`, page.Size, page.Offset())
	if err != nil {
		return out, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return out, fmt.Errorf("scan track: %w", err)
		}
		out.Items = append(out.Items, *t)
	}
	return out, rows.Err()
}

// UpsertArtist is used by the bootstrap seeding step.
func (s *CatalogStore) UpsertArtist(ctx context.Context, id int64, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artists (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, id, name)
	if err != nil {
		return fmt.Errorf("upsert artist %d: %w", id, err)
	}
	return nil
}

// UpsertTrack is used by the bootstrap seeding step. Existing order lines
// keep their snapshot regardless of what is written here.
func (s *CatalogStore) UpsertTrack(ctx context.Context, t catalog.Track) error {
	if t.Price.IsNegative() {
		return catalog.ErrNegativePrice
	}
	genres := t.Genres
	if genres == nil {
		genres = []string{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracks (id, artist_id, title, price, genres, deleted_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET artist_id = EXCLUDED.artist_id, title = EXCLUDED.title,
		   price = EXCLUDED.price, genres = EXCLUDED.genres, deleted_at = EXCLUDED.deleted_at`,
		t.ID, t.ArtistID, t.Title, t.Price, pq.Array(genres), nullTime(t.DeletedAt))
	if err != nil {
		return fmt.Errorf("upsert track %d: %w", t.ID, err)
	}
	return nil
}

// ResetSequences moves the id sequences past explicitly seeded ids.
func (s *CatalogStore) ResetSequences(ctx context.Context) error {
	for _, table := range []string{"artists", "tracks", "users"} {
		q := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)`, table, table)
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("reset %s sequence: %w", table, err)
		}
	}
	return nil
}

// UserDirectory implements identity.Directory over the users mirror table.
type UserDirectory struct {
	db *sql.DB
}

func NewUserDirectory(db *sql.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (d *UserDirectory) ByID(ctx context.Context, id int64) (*identity.Person, error) {
	return d.get(ctx, `SELECT id, username, email, role FROM users WHERE id = $1`, id)
}

func (d *UserDirectory) ByUsername(ctx context.Context, username string) (*identity.Person, error) {
	return d.get(ctx, `SELECT id, username, email, role FROM users WHERE username = $1`, username)
}

func (d *UserDirectory) get(ctx context.Context, query string, arg any) (*identity.Person, error) {
	var p identity.Person
	err := d.db.QueryRowContext(ctx, query, arg).Scan(&p.ID, &p.Username, &p.Email, &p.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &p, nil
}

// Upsert mirrors a user record from the user service.
func (d *UserDirectory) Upsert(ctx context.Context, p identity.Person) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, role) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, email = EXCLUDED.email, role = EXCLUDED.role`,
		p.ID, p.Username, p.Email, string(p.Role))
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", p.ID, err)
	}
	return nil
}

var (
	_ catalog.Reader     = (*CatalogStore)(nil)
	_ identity.Directory = (*UserDirectory)(nil)
)
