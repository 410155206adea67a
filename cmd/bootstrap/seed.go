package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/example/tunestore/internal/domain/catalog"
	"github.com/example/tunestore/internal/domain/identity"
)

type seedArtist struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

type seedTrack struct {
	ID       int64    `yaml:"id"`
	Title    string   `yaml:"title"`
	ArtistID int64    `yaml:"artist_id"`
	Price    string   `yaml:"price"`
	Genres   []string `yaml:"genres"`
	Deleted  bool     `yaml:"deleted"`
}

type seedUser struct {
	ID       int64  `yaml:"id"`
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Role     string `yaml:"role"`
}

// Seed is the YAML file cmd/bootstrap loads into a fresh database.
type Seed struct {
	Artists []seedArtist `yaml:"artists"`
	Tracks  []seedTrack  `yaml:"tracks"`
	Users   []seedUser   `yaml:"users"`
}

type catalogWriter interface {
	UpsertArtist(ctx context.Context, id int64, name string) error
	UpsertTrack(ctx context.Context, t catalog.Track) error
	ResetSequences(ctx context.Context) error
}

type userWriter interface {
	Upsert(ctx context.Context, p identity.Person) error
}

func loadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return parseSeed(data)
}

func parseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Seed) validate() error {
	var errs []error
	artists := make(map[int64]bool, len(s.Artists))
	for _, a := range s.Artists {
		if a.ID <= 0 || a.Name == "" {
			errs = append(errs, fmt.Errorf("artist %d: id and name are required", a.ID))
		}
		artists[a.ID] = true
	}
	for _, t := range s.Tracks {
		if t.ID <= 0 || t.Title == "" {
			errs = append(errs, fmt.Errorf("track %d: id and title are required", t.ID))
		}
		if !artists[t.ArtistID] {
			errs = append(errs, fmt.Errorf("track %d: unknown artist %d", t.ID, t.ArtistID))
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			errs = append(errs, fmt.Errorf("track %d: invalid price %q", t.ID, t.Price))
		} else if price.IsNegative() {
			errs = append(errs, fmt.Errorf("track %d: %w", t.ID, catalog.ErrNegativePrice))
		}
	}
	for _, u := range s.Users {
		if u.ID <= 0 || u.Username == "" || u.Email == "" {
			errs = append(errs, fmt.Errorf("user %d: id, username and email are required", u.ID))
		}
		switch identity.Role(u.Role) {
		case identity.RoleCustomer, identity.RoleArtist, identity.RoleStaff, identity.RoleAdmin:
		default:
			errs = append(errs, fmt.Errorf("user %d: unknown role %q", u.ID, u.Role))
		}
	}
	return errors.Join(errs...)
}

// Apply upserts everything in the seed. Running it twice is harmless.
func (s *Seed) Apply(ctx context.Context, cat catalogWriter, users userWriter, now time.Time) error {
	for _, a := range s.Artists {
		if err := cat.UpsertArtist(ctx, a.ID, a.Name); err != nil {
			return err
		}
	}
	for _, t := range s.Tracks {
		track := catalog.Track{
			ID:       t.ID,
			Title:    t.Title,
			ArtistID: t.ArtistID,
			Price:    decimal.RequireFromString(t.Price),
			Genres:   t.Genres,
		}
		if t.Deleted {
			deletedAt := now
			track.DeletedAt = &deletedAt
		}
		if err := cat.UpsertTrack(ctx, track); err != nil {
			return err
		}
	}
	for _, u := range s.Users {
		p := identity.Person{ID: u.ID, Username: u.Username, Email: u.Email, Role: identity.Role(u.Role)}
		if err := users.Upsert(ctx, p); err != nil {
			return err
		}
	}
	return cat.ResetSequences(ctx)
}
