package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/metrics"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// NewRouter mounts the API under /api next to /metrics and /healthz.
func NewRouter(handler *Handler, m *metrics.ServerMetrics, metricsHandler http.Handler, health HealthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Instrument(m))
	r.Use(middleware.Recoverer)
	r.Use(EnableCORS)

	r.Handle("/metrics", metricsHandler)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(RequirePrincipal)
		handler.RegisterRoutes(api)
	})
	return r
}
