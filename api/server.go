/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/products/*   Catalog and per-product ledger history
  /api/orders/*     Checkout, fulfillment operations, packing reads
  /api/movements/*  Ledger entry lookup and reversal
  /api/stock/*      Supplier receipts
  /api/scenarios/*  Demo data loaders (development only)

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
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
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
			r.Get("/low-stock", h.LowStock)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Get("/{id}/movements", h.ProductMovements)
		})

		// Order routes
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.CreateOrder)
			r.Get("/{code}", h.GetOrder)
			r.Get("/{code}/movements", h.OrderMovements)
			r.Post("/{code}/deduct", h.DeductForOrder)
			r.Post("/{code}/manual-deduct", h.ManualEarlyDeduct)
			r.Post("/{code}/deliver", h.RecordPartialDelivery)
			r.Post("/{code}/cancel", h.CancelOrder)
			r.Post("/{code}/complete-packing", h.CompletePacking)
			r.Get("/{code}/delivered", h.DeliveredQuantities)
			r.Get("/{code}/remaining", h.RemainingQuantities)
		})

		// Movement routes
		r.Route("/movements", func(r chi.Router) {
			r.Get("/{id}", h.GetMovement)
			r.Post("/{id}/reverse", h.ReverseMovement)
		})

		// Stock routes
		r.Route("/stock", func(r chi.Router) {
			r.Post("/receive", h.ReceiveStock)
		})

		// Demo scenario routes (development only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
