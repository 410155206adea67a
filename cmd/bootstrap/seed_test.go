package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tunestore/internal/domain/catalog"
	"github.com/example/tunestore/internal/domain/identity"
)

const validSeed = `
artists:
  - id: 1
    name: Nina
tracks:
  - id: 10
    title: Blue
    artist_id: 1
    price: "9.99"
    genres: [jazz, soul]
  - id: 11
    title: Retired
    artist_id: 1
    price: "1.00"
    deleted: true
users:
  - id: 100
    username: alice
    email: alice@example.com
    role: customer
  - id: 200
    username: sam
    email: sam@example.com
    role: staff
`

type recordingWriter struct {
	artists []int64
	tracks  []catalog.Track
	people  []identity.Person
	resets  int
	failOn  int64
}

func (w *recordingWriter) UpsertArtist(ctx context.Context, id int64, name string) error {
	w.artists = append(w.artists, id)
	return nil
}

func (w *recordingWriter) UpsertTrack(ctx context.Context, t catalog.Track) error {
	if t.ID == w.failOn {
		return errors.New("db down")
	}
	w.tracks = append(w.tracks, t)
	return nil
}

func (w *recordingWriter) ResetSequences(ctx context.Context) error {
	w.resets++
	return nil
}

func (w *recordingWriter) Upsert(ctx context.Context, p identity.Person) error {
	w.people = append(w.people, p)
	return nil
}

// ============================================
// Seed Parsing Tests
// ============================================

func TestParseSeed_Valid(t *testing.T) {
	seed, err := parseSeed([]byte(validSeed))

	require.NoError(t, err)
	assert.Len(t, seed.Artists, 1)
	assert.Len(t, seed.Tracks, 2)
	assert.Equal(t, []string{"jazz", "soul"}, seed.Tracks[0].Genres)
	assert.Equal(t, "staff", seed.Users[1].Role)
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "artists: [", "parse seed file"},
		{"unknown artist", "tracks:\n  - {id: 1, title: x, artist_id: 9, price: \"1\"}", "unknown artist 9"},
		{"negative price", "artists: [{id: 1, name: a}]\ntracks:\n  - {id: 1, title: x, artist_id: 1, price: \"-1\"}", "must not be negative"},
		{"bad price", "artists: [{id: 1, name: a}]\ntracks:\n  - {id: 1, title: x, artist_id: 1, price: abc}", "invalid price"},
		{"unknown role", "users:\n  - {id: 1, username: u, email: u@x, role: root}", "unknown role"},
		{"missing username", "users:\n  - {id: 1, email: u@x, role: customer}", "username"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeed([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

// ============================================
// Seed Apply Tests
// ============================================

func TestSeed_Apply(t *testing.T) {
	seed, err := parseSeed([]byte(validSeed))
	require.NoError(t, err)
	w := &recordingWriter{}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, seed.Apply(context.Background(), w, w, now))

	assert.Equal(t, []int64{1}, w.artists)
	require.Len(t, w.tracks, 2)
	assert.Equal(t, "9.99", w.tracks[0].Price.StringFixed(2))
	assert.Nil(t, w.tracks[0].DeletedAt)
	require.NotNil(t, w.tracks[1].DeletedAt)
	assert.Equal(t, now, *w.tracks[1].DeletedAt)
	assert.Equal(t, identity.RoleStaff, w.people[1].Role)
	assert.Equal(t, 1, w.resets)
}

func TestSeed_Apply_StopsOnError(t *testing.T) {
	seed, err := parseSeed([]byte(validSeed))
	require.NoError(t, err)
	w := &recordingWriter{failOn: 10}

	err = seed.Apply(context.Background(), w, w, time.Now())

	assert.ErrorContains(t, err, "db down")
	assert.Empty(t, w.people)
	assert.Zero(t, w.resets)
}
