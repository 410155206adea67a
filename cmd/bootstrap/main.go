// Command bootstrap prepares a storefront database: it applies migrations,
// loads the seed catalog and users, and can print a token for local testing.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/tunestore/internal/auth"
	"github.com/example/tunestore/internal/config"
	"github.com/example/tunestore/internal/infrastructure/store"
)

func main() {
	var seedPath, devUser string
	cfg, err := config.Load("bootstrap", os.Args[1:], func(fs *pflag.FlagSet) {
		fs.StringVar(&seedPath, "seed", "seed.yaml", "YAML file with artists, tracks and users")
		fs.StringVar(&devUser, "dev-token", "", "print an access token for this username after seeding")
	})
	if err != nil {
		log.Fatalf("[Bootstrap] Invalid configuration: %v", err)
	}
	if cfg.Store != "postgres" {
		log.Fatalf("[Bootstrap] Nothing to bootstrap for the %s store", cfg.Store)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[Bootstrap] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	if err := store.RunMigrations(db); err != nil {
		log.Fatalf("[Bootstrap] %v", err)
	}

	seed, err := loadSeed(seedPath)
	if err != nil {
		log.Fatalf("[Bootstrap] %v", err)
	}
	users := store.NewUserDirectory(db)
	if err := seed.Apply(ctx, store.NewCatalogStore(db), users, time.Now().UTC()); err != nil {
		log.Fatalf("[Bootstrap] Seeding failed: %v", err)
	}
	log.Printf("[Bootstrap] Seeded %d artists, %d tracks, %d users", len(seed.Artists), len(seed.Tracks), len(seed.Users))

	if devUser == "" {
		return
	}
	p, err := users.ByUsername(ctx, devUser)
	if err != nil {
		log.Fatalf("[Bootstrap] Dev token: %v", err)
	}
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	token, expiresAt, err := jwtService.GenerateAccessToken(p.ID, p.Username, string(p.Role))
	if err != nil {
		log.Fatalf("[Bootstrap] Dev token: %v", err)
	}
	log.Printf("[Bootstrap] Token for %s expires at %s", p.Username, expiresAt.Format(time.RFC3339))
	fmt.Println(token)
}
