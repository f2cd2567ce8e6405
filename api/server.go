/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/products/*      Product registry, lots, withdrawals, journal
  /api/entries/*       Lot edits addressed by entry id
  /api/outputs/*       Withdrawal edits addressed by output id
  /api/transactions    Global journal reads
  /api/scenarios/*     Demo datasets

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
			r.Post("/{id}/revalue", h.RevalueProduct)
			r.Get("/{id}/entries", h.ListEntries)
			r.Post("/{id}/entries", h.CreateEntry)
			r.Get("/{id}/outputs", h.ListOutputs)
			r.Post("/{id}/outputs", h.CreateOutput)
			r.Get("/{id}/transactions", h.ListProductTransactions)
		})

		// Lot routes
		r.Route("/entries", func(r chi.Router) {
			r.Put("/{id}", h.UpdateEntry)
			r.Delete("/{id}", h.DeleteEntry)
		})

		// Withdrawal routes
		r.Route("/outputs", func(r chi.Router) {
			r.Put("/{id}", h.UpdateOutput)
			r.Put("/{id}/quantity", h.ChangeOutputQuantity)
			r.Delete("/{id}", h.DeleteOutput)
			r.Get("/{id}/lines", h.ListOutputLines)
		})

		// Journal routes
		r.Get("/transactions", h.ListTransactions)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
