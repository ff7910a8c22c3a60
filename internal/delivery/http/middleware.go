package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/metrics"
)

// Headers set by the upstream gateway once it has authenticated the caller.
const (
	HeaderUserEmail  = "X-User-Email"
	HeaderUserDomain = "X-User-Domain"
	HeaderUserRole   = "X-User-Role"
)

type principalKey struct{}

// RequirePrincipal rejects requests that carry no usable identity.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := entity.Principal{
			Email:  r.Header.Get(HeaderUserEmail),
			Domain: r.Header.Get(HeaderUserDomain),
			Role:   entity.Role(r.Header.Get(HeaderUserRole)),
		}
		switch {
		case p.Email == "" || p.Domain == "":
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing user identity headers")
			return
		case p.Role != entity.RoleUser && p.Role != entity.RoleTenant && p.Role != entity.RoleAdmin:
			writeError(w, http.StatusUnauthorized, "unauthenticated", "unknown role")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func principal(r *http.Request) entity.Principal {
	p, _ := r.Context().Value(principalKey{}).(entity.Principal)
	return p
}

// EnableCORS is a middleware to allow the storefront frontend to connect.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Email, X-User-Domain, X-User-Role")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Instrument records request count and latency per route pattern, and logs
// each request.
func Instrument(m *metrics.ServerMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = r.Method + " " + rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
			m.LatencyMS.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
			slog.InfoContext(r.Context(), "HTTP request",
				"request_id", middleware.GetReqID(r.Context()),
				"route", route,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}
