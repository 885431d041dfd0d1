/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters/histograms
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/plans, /api/payment-methods   Public catalog
  /api/me/*                          Acting-user operations (X-User-ID)
  /api/admin/*                       Moderation and ops (X-Admin-ID)
  /metrics                           Prometheus scrape endpoint
  /healthz                           Liveness probe

SECURITY NOTE:
  No authentication middleware. Identity comes from trusted upstream
  headers; front this service with a gateway before exposing it.

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

	"github.com/warp/invest-ledger/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-Admin-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Public catalog
		r.Get("/plans", h.ListPlans)
		r.Get("/payment-methods", h.ListPaymentMethods)

		// Acting-user routes
		r.Route("/me", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Get("/transactions", h.GetTransactions)

			r.Route("/investments", func(r chi.Router) {
				r.Get("/", h.ListInvestments)
				r.Post("/", h.OpenInvestment)
				r.Get("/{id}", h.GetInvestment)
				r.Get("/{id}/schedule", h.GetSchedule)
				r.Post("/{id}/claim", h.ClaimRoi)
				r.Post("/{id}/mature", h.MatureInvestment)
			})

			r.Route("/deposits", func(r chi.Router) {
				r.Get("/", h.ListDeposits)
				r.Post("/", h.SubmitDeposit)
			})

			r.Route("/withdrawals", func(r chi.Router) {
				r.Get("/", h.ListWithdrawals)
				r.Post("/", h.RequestWithdrawal)
				r.Get("/eligibility", h.WithdrawalEligibility)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/plans", h.CreatePlan)

			r.Route("/deposits", func(r chi.Router) {
				r.Get("/pending", h.ListPendingDeposits)
				r.Post("/{id}/confirm", h.ConfirmDeposit)
				r.Post("/{id}/reject", h.RejectDeposit)
			})

			r.Route("/withdrawals", func(r chi.Router) {
				r.Get("/pending", h.ListPendingWithdrawals)
				r.Post("/{id}/approve", h.ApproveWithdrawal)
				r.Post("/{id}/reject", h.RejectWithdrawal)
			})

			r.Post("/adjustments", h.CreateAdjustment)
			r.Get("/users/{id}/reconcile", h.Reconcile)
			r.Post("/mature-eligible", h.MatureEligible)
			r.Get("/audit", h.ListAudit)
			r.Post("/seed", h.LoadSeed)
		})
	})

	// Operational endpoints
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
