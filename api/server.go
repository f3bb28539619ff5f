/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Metrics:    Prometheus request counter and latency (optional)
  4. Logger:     zerolog request log; handlers get it via zerolog.Ctx
  5. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/calculators/*    Selectable calculator types
  /api/adjustables/*    Adjustables and their ledger operations
  /api/adjustments/*    Recompute
  /api/targets/*        Adjustments per target
  /metrics              Prometheus scrape endpoint (optional)
  /healthz              Liveness

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/warp/adjustment-engine/obs"
)

// RouterConfig carries the router's ambient dependencies.
type RouterConfig struct {
	Logger         zerolog.Logger
	AllowedOrigins []string

	// Gatherer backs /metrics. Nil leaves the endpoint unmounted.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware)
	r.Use(obs.RequestLogger{Logger: cfg.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/calculators", h.ListCalculators)

		r.Route("/adjustables", func(r chi.Router) {
			r.Get("/", h.ListAdjustables)
			r.Post("/", h.CreateAdjustable)
			r.Get("/{id}", h.GetAdjustable)
			r.Delete("/{id}", h.DeleteAdjustable)
			r.Put("/{id}/calculator", h.SetCalculator)
			r.Post("/{id}/adjustments", h.CreateAdjustment)
			r.Post("/{id}/reversals", h.ReverseAdjustment)
		})

		r.Post("/adjustments/{id}/recompute", h.RecomputeAdjustment)
		r.Get("/targets/{type}/{id}/adjustments", h.ListTargetAdjustments)
	})

	return r
}
