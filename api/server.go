/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/contracts/*   Contracts, rates, availability
  /api/quotes        Quote phase
  /api/bookings/*    Commit, read, cancel
  /api/pools/*       Ledger dashboard
  /api/admin/*       Reconciliation
  /api/scenarios/*   Demo data
  /api/reset         Database reset (dev only)
  /healthz           Liveness probe

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes the router; the zero value allows the local dashboard.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", h.ListContracts)
			r.Post("/", h.CreateContract)
			r.Get("/{id}", h.GetContract)
			r.Get("/{id}/rates", h.ListRates)
			r.Post("/{id}/rates", h.CreateRate)
			r.Get("/{id}/availability", h.GetAvailability)
		})

		r.Post("/quotes", h.CreateQuote)

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.ListBookings)
			r.Post("/", h.CommitBooking)
			r.Get("/{id}", h.GetBooking)
			r.Delete("/{id}", h.CancelBooking)
		})

		r.Route("/pools", func(r chi.Router) {
			r.Get("/", h.ListPools)
			r.Post("/", h.CreatePool)
			r.Get("/{key}", h.GetPool)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reconcile", h.Reconcile)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
