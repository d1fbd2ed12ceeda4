/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

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
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/transactions", h.GetUserTransactions)
			r.Delete("/{id}", h.DeactivateUser)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/{date}", h.GetSession)
			r.Post("/{date}/join", h.JoinSession)
			r.Post("/{date}/leave", h.LeaveSession)
			r.Post("/{id}/select-buyers", h.SelectBuyers)
			r.Post("/{id}/settle", h.SettleSession)
		})

		r.Route("/menus", func(r chi.Router) {
			r.Post("/", h.CreateMenu)
			r.Post("/{id}/orders", h.PlaceOrder)
			r.Post("/{id}/lock", h.LockMenu)
			r.Post("/{id}/settle", h.SettleMenu)
		})

		r.Route("/reimbursements", func(r chi.Router) {
			r.Get("/pending", h.ListPendingReimbursements)
			r.Get("/{id}", h.GetReimbursement)
			r.Post("/{id}/transfer", h.TransferReimbursement)
			r.Post("/{id}/confirm", h.ConfirmReimbursement)
		})

		r.Route("/deposits", func(r chi.Router) {
			r.Post("/", h.CreateDeposit)
			r.Post("/{id}/approve", h.ApproveDeposit)
			r.Post("/{id}/reject", h.RejectDeposit)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjustments", h.CreateAdjustment)
		})
	})

	// Operational endpoints
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
