package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/example/tunestore/internal/api/middleware"
	"github.com/example/tunestore/internal/auth"
)

func NewRouter(handlers *Handlers, jwtService *auth.JWTService) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", handlers.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService))

		// Catalog
		r.Get("/tracks", handlers.ListTracks)
		r.Get("/tracks/{id}", handlers.GetTrack)

		// Cart
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", handlers.GetCart)
			r.Delete("/", handlers.ClearCart)
			r.Get("/total", handlers.GetCartTotal)
			r.Post("/items", handlers.AddToCart)
			r.Delete("/items/{itemID}", handlers.RemoveFromCart)
		})

		// Orders
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", handlers.GetOrders)
			r.Post("/", handlers.PlaceOrder)
			r.Get("/{id}", handlers.GetOrder)
			r.Post("/{id}/cancel", handlers.CancelOrder)
			r.With(middleware.RequireStaff).Put("/{id}/status", handlers.UpdateOrderStatus)
		})

		// Tickets
		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", handlers.GetTickets)
			r.Post("/", handlers.CreateTicket)
			r.Get("/{id}", handlers.GetTicket)
			r.Post("/{id}/messages", handlers.ReplyToTicket)
			r.Post("/{id}/close", handlers.CloseTicket)
			r.Post("/{id}/reopen", handlers.ReopenTicket)
			r.With(middleware.RequireStaff).Post("/{id}/assign", handlers.AssignTicket)
			r.With(middleware.RequireStaff).Put("/{id}/status", handlers.SetTicketStatus)
		})
	})

	return r
}
