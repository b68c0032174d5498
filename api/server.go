/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for internal tooling

ROUTE GROUPS:
  /api/grants       Grant lot creation
  /api/usage        Deductions and reversals
  /api/employees/*  Per-employee balances, history, recommendations
  /api/balances/*   Cohort aggregation
  /api/compliance   Obligation classification
  /api/statutory/*  Statutory grant lookup
  /api/admin/*      Expiration sweep
  /api/audit/*      Audit chain listing and verification

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
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/grants", h.CreateGrant)

		r.Route("/usage", func(r chi.Router) {
			r.Post("/", h.CreateUsage)
			r.Post("/revert", h.RevertUsage)
		})

		r.Route("/employees", func(r chi.Router) {
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/breakdown", h.GetBreakdown)
			r.Get("/{id}/usage", h.GetUsageHistory)
			r.Get("/{id}/recommendation", h.GetRecommendation)
		})

		r.Post("/balances/cohort", h.GetCohortBalance)
		r.Get("/compliance", h.GetCompliance)
		r.Get("/statutory/grant", h.GetStatutoryGrant)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/events", h.ListAuditEvents)
			r.Get("/verify", h.VerifyAuditTrail)
		})
	})

	return r
}
