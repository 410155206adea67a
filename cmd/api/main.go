package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/tunestore/internal/api"
	"github.com/example/tunestore/internal/auth"
	"github.com/example/tunestore/internal/config"
	"github.com/example/tunestore/internal/domain/cart"
	"github.com/example/tunestore/internal/domain/catalog"
	"github.com/example/tunestore/internal/domain/identity"
	"github.com/example/tunestore/internal/domain/order"
	"github.com/example/tunestore/internal/domain/ticket"
	"github.com/example/tunestore/internal/email"
	"github.com/example/tunestore/internal/infrastructure/aws"
	"github.com/example/tunestore/internal/infrastructure/kafka"
	"github.com/example/tunestore/internal/infrastructure/store"
	"github.com/example/tunestore/internal/infrastructure/store/dynamo"
	"github.com/example/tunestore/internal/infrastructure/store/memory"
	"github.com/example/tunestore/internal/notification"
)

// notifyWorkers bounds the mail deliveries running behind request handlers.
const notifyWorkers = 16

// repositories is the storage the services are built on.
type repositories struct {
	tracks  catalog.Reader
	people  identity.Directory
	carts   cart.Repository
	orders  order.Repository
	tickets ticket.Repository
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load("api", os.Args[1:], nil)
	if err != nil {
		log.Fatalf("[API] Invalid configuration: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] Tunestore - Storefront API")
	log.Println("[API] ========================================")
	log.Printf("[API] Store: %s", cfg.Store)
	log.Printf("[API] Tickets: %s", cfg.TicketStore)
	log.Printf("[API] Notifications: %s", cfg.NotifySink)

	var clients *aws.Clients
	if cfg.TicketStore == "dynamodb" || cfg.NotifySink == "sqs" {
		clients, err = aws.NewClients(ctx, cfg.AWSRegion)
		if err != nil {
			log.Fatalf("[API] Failed to load AWS config: %v", err)
		}
		log.Printf("[API] AWS region: %s", cfg.AWSRegion)
	}

	repos, db, err := openRepositories(cfg, clients)
	if err != nil {
		log.Fatalf("[API] %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	sender, closeSender, err := newSender(cfg, clients)
	if err != nil {
		log.Fatalf("[API] %v", err)
	}
	defer closeSender()

	// Initialize domain services
	dispatcher := notification.NewDispatcher(repos.people, sender, notification.WithAsyncDelivery(notifyWorkers))
	defer dispatcher.Close()
	catalogSvc := catalog.NewService(repos.tracks)
	cartSvc := cart.NewService(repos.carts, catalogSvc)
	orderSvc := order.NewService(repos.orders, dispatcher)
	ticketSvc := ticket.NewService(repos.tickets, orderSvc, repos.people, dispatcher)

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)

	handlers := api.NewHandlers(catalogSvc, cartSvc, orderSvc, ticketSvc)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handlers, jwtService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Println("[API] ========================================")
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		log.Println("[API] ========================================")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] Shutdown error: %v", err)
	}
}

// openRepositories returns the configured stores. The returned *sql.DB is nil
// for the in-memory store.
func openRepositories(cfg *config.Config, clients *aws.Clients) (*repositories, *sql.DB, error) {
	var repos repositories
	var db *sql.DB

	switch cfg.Store {
	case "memory":
		st := memory.New()
		repos = repositories{tracks: st, people: st, carts: st.Carts(), orders: st.Orders(), tickets: st.Tickets()}
		log.Println("[API] Using in-memory store (data is lost on exit)")
	default:
		var err error
		db, err = store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		log.Println("[API] Connected to PostgreSQL")
		repos = repositories{
			tracks:  store.NewCatalogStore(db),
			people:  store.NewUserDirectory(db),
			carts:   store.NewCartStore(db),
			orders:  store.NewOrderStore(db),
			tickets: store.NewTicketStore(db),
		}
	}

	if cfg.TicketStore == "dynamodb" {
		repos.tickets = dynamo.NewTicketStore(clients.DynamoDB, cfg.DynamoTicketsTable)
		log.Printf("[API] Tickets stored in DynamoDB table %s", cfg.DynamoTicketsTable)
	}
	return &repos, db, nil
}

// newSender builds the notification sink. The returned func releases
// whatever the sink holds open.
func newSender(cfg *config.Config, clients *aws.Clients) (notification.Sender, func(), error) {
	noop := func() {}
	switch cfg.NotifySink {
	case "smtp":
		log.Printf("[API] SMTP: %s:%s", cfg.SMTP.Host, cfg.SMTP.Port)
		return email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From), noop, nil
	case "kafka":
		log.Printf("[API] Kafka: %v (topic %s)", cfg.Kafka.Brokers, cfg.Kafka.Topic)
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		return notification.NewKafkaSender(producer), func() { producer.Close() }, nil
	case "sqs":
		log.Printf("[API] SQS queue: %s", cfg.SQSQueueURL)
		return notification.NewSQSSender(clients.SQS, cfg.SQSQueueURL), noop, nil
	case "log":
		return notification.LogSender{}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown notification sink %q", cfg.NotifySink)
	}
}
