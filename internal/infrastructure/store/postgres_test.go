package store

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/example/tunestore/internal/apperr"
	"github.com/example/tunestore/internal/domain/cart"
	"github.com/example/tunestore/internal/domain/catalog"
	"github.com/example/tunestore/internal/domain/identity"
	"github.com/example/tunestore/internal/domain/order"
	"github.com/example/tunestore/internal/domain/ticket"
	"github.com/example/tunestore/internal/pagination"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := ConnectPostgres(connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db))
	// second run is a no-op
	require.NoError(t, RunMigrations(db))
	return db
}

func seedCatalog(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	catalogStore := NewCatalogStore(db)
	require.NoError(t, catalogStore.UpsertArtist(ctx, 1, "Nina"))
	require.NoError(t, catalogStore.UpsertTrack(ctx, catalog.Track{ID: 10, ArtistID: 1, Title: "Blue", Price: decimal.RequireFromString("9.99"), Genres: []string{"jazz"}}))
	require.NoError(t, catalogStore.UpsertTrack(ctx, catalog.Track{ID: 11, ArtistID: 1, Title: "Green", Price: decimal.RequireFromString("5.00")}))
	require.NoError(t, catalogStore.ResetSequences(ctx))

	users := NewUserDirectory(db)
	require.NoError(t, users.Upsert(ctx, identity.Person{ID: 100, Username: "alice", Email: "alice@example.com", Role: identity.RoleCustomer}))
	require.NoError(t, users.Upsert(ctx, identity.Person{ID: 200, Username: "sam", Email: "sam@example.com", Role: identity.RoleStaff}))
}

// ============================================
// Catalog and directory
// ============================================

func TestPostgres_Catalog(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()
	catalogStore := NewCatalogStore(db)

	track, err := catalogStore.GetTrack(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "Blue", track.Title)
	assert.Equal(t, "Nina", track.ArtistName)
	assert.True(t, decimal.RequireFromString("9.99").Equal(track.Price))
	assert.Equal(t, []string{"jazz"}, track.Genres)

	_, err = catalogStore.GetTrack(ctx, 999)
	assert.ErrorIs(t, err, catalog.ErrTrackNotFound)

	page, err := catalogStore.ListTracks(ctx, pagination.Request{Page: 0, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 1)

	p, err := NewUserDirectory(db).ByUsername(ctx, "sam")
	require.NoError(t, err)
	assert.True(t, p.Role.IsStaff())

	_, err = NewUserDirectory(db).ByID(ctx, 404)
	assert.ErrorIs(t, err, identity.ErrPersonNotFound)
}

// ============================================
// Cart and checkout
// ============================================

func TestPostgres_CartAndCheckout(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()
	carts := NewCartStore(db)
	orders := NewOrderStore(db)
	svc := order.NewService(orders, nil)

	_, err := carts.AddItem(ctx, 100, cart.NewItem{TrackID: 10, UnitPrice: decimal.RequireFromString("9.99")})
	require.NoError(t, err)
	_, err = carts.AddItem(ctx, 100, cart.NewItem{TrackID: 10, UnitPrice: decimal.RequireFromString("9.99")})
	assert.ErrorIs(t, err, cart.ErrTrackAlreadyInCart)

	c, err := carts.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)

	placed, err := svc.PlaceOrder(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, placed.Status)
	assert.True(t, decimal.RequireFromString("9.99").Equal(placed.Total))

	c, err = carts.GetOrCreate(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	_, err = carts.AddItem(ctx, 100, cart.NewItem{TrackID: 10, UnitPrice: decimal.RequireFromString("9.99")})
	assert.ErrorIs(t, err, cart.ErrTrackAlreadyOwned)

	_, err = svc.CancelOrder(ctx, placed.ID, 100, "changed my mind")
	require.NoError(t, err)

	// cancelling gives the track back
	_, err = carts.AddItem(ctx, 100, cart.NewItem{TrackID: 10, UnitPrice: decimal.RequireFromString("9.99")})
	assert.NoError(t, err)

	got, err := orders.Get(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, "changed my mind", got.CancelReason)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Blue", got.Items[0].Title)
}

func TestPostgres_ConcurrentCheckout(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()
	carts := NewCartStore(db)
	svc := order.NewService(NewOrderStore(db), nil)

	_, err := carts.AddItem(ctx, 100, cart.NewItem{TrackID: 10, UnitPrice: decimal.RequireFromString("9.99")})
	require.NoError(t, err)
	_, err = carts.AddItem(ctx, 100, cart.NewItem{TrackID: 11, UnitPrice: decimal.RequireFromString("5.00")})
	require.NoError(t, err)

	const workers = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		placed  int
		emptied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(ctx, 100)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				placed++
			case apperr.Is(err, apperr.Conflict):
				emptied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, placed)
	assert.Equal(t, workers-1, emptied)
}

// ============================================
// Tickets
// ============================================

func TestPostgres_Tickets(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()
	tickets := NewTicketStore(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	created, err := tickets.Create(ctx, &ticket.Ticket{
		CustomerID: 100,
		Subject:    "Download fails",
		Status:     ticket.StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, ticket.Message{Author: ticket.CustomerAuthor(100), Content: "it stops at 50%", CreatedAt: now})
	require.NoError(t, err)
	require.Len(t, created.Messages, 1)

	_, err = tickets.AppendMessage(ctx, created.ID, ticket.Message{Author: ticket.StaffAuthor(200), Content: "looking", CreatedAt: now.Add(time.Second)})
	require.NoError(t, err)
	_, err = tickets.AppendMessage(ctx, 999, ticket.Message{Author: ticket.StaffAuthor(200), Content: "lost", CreatedAt: now})
	assert.ErrorIs(t, err, ticket.ErrTicketNotFound)

	updated, err := tickets.Update(ctx, created.ID, func(tk *ticket.Ticket) error {
		return tk.Close("fixed", now.Add(2*time.Second))
	})
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusClosed, updated.Status)
	require.NotNil(t, updated.ClosedAt)

	got, err := tickets.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, ticket.AuthorCustomer, got.Messages[0].Author.Kind())
	assert.Equal(t, ticket.AuthorStaff, got.Messages[1].Author.Kind())
	assert.Equal(t, "fixed", got.CloseReason)

	page, err := tickets.List(ctx, ticket.Filter{Status: ticket.StatusClosed, CustomerID: 100}, pagination.Request{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = tickets.List(ctx, ticket.Filter{Status: ticket.StatusOpen}, pagination.Request{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Items)
}
