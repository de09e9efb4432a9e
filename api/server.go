/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to
  handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/customers/*     Customer management and per-customer history
  /api/points/*        Burn, expire, global history
  /api/transactions/*  Purchase recording and management
  /api/dashboard       Aggregate summary
  /api/seed            Demo data (dev only)
  /metrics             Prometheus scrape endpoint
  /healthz             Liveness + Redis reachability

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		// Customer routes
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/", h.CreateCustomer)
			r.Get("/{id}", h.GetCustomer)
			r.Put("/{id}", h.UpdateCustomer)
			r.Delete("/{id}", h.DeleteCustomer)
			r.Get("/{id}/history", h.GetCustomerHistory)
		})

		// Points routes
		r.Route("/points", func(r chi.Router) {
			r.Post("/burn", h.BurnPoints)
			r.Post("/expire", h.ExpirePoints)
			r.Get("/history", h.ListHistory)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.RecordTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})

		// Dashboard
		r.Get("/dashboard", h.GetDashboard)

		// Demo data (dev only)
		r.Post("/seed", h.Seed)
	})

	// Observability
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.Health)

	// Landing page for curious operators
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Loyalty Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Loyalty Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/customers">/api/customers</a> - List customers</li>
<li><a href="/api/transactions">/api/transactions</a> - List transactions</li>
<li><a href="/api/points/history">/api/points/history</a> - Points ledger</li>
<li><a href="/api/dashboard">/api/dashboard</a> - Summary</li>
<li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
</ul>
</body>
</html>`))
	})

	return r
}

// Health reports liveness. Redis being down degrades caching but not
// correctness, so it reports as a warning field, never a 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "cache": "ok"}
	if h.Cache == nil {
		resp["cache"] = "disabled"
	} else if err := h.Cache.Health(r.Context()); err != nil {
		resp["cache"] = "unreachable"
	}
	writeJSON(w, http.StatusOK, resp)
}
