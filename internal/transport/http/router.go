// Package httptransport assembles the HTTP surface: shared middleware, the
// public routes and the authenticated domain routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"healthtrack/internal/platform/metrics"
	"healthtrack/pkg/platform/httputil"
	authmw "healthtrack/pkg/platform/middleware/auth"
	"healthtrack/pkg/platform/middleware/device"
	"healthtrack/pkg/platform/middleware/metadata"
	request "healthtrack/pkg/platform/middleware/request"
	"healthtrack/pkg/platform/middleware/requesttime"
)

// PublicRoutes are mounted without authentication.
type PublicRoutes interface {
	RegisterPublic(r chi.Router)
}

// Routes are mounted behind bearer authentication.
type Routes interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the router needs.
type Deps struct {
	Logger         *slog.Logger
	Validator      authmw.JWTValidator
	Metrics        *metrics.Metrics
	// MetricsHandler serves /metrics. Nil disables the endpoint.
	MetricsHandler http.Handler
	// AuthRateLimit wraps the public credential routes. Nil disables it.
	AuthRateLimit  func(http.Handler) http.Handler
	Public         []PublicRoutes
	Protected      []Routes
	Health         map[string]HealthCheck
}

// NewRouter wires the middleware chain and every route.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(deps.Logger))
	r.Use(request.Logger(deps.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/healthz", healthHandler(deps.Health))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Group(func(r chi.Router) {
		if deps.AuthRateLimit != nil {
			r.Use(deps.AuthRateLimit)
		}
		for _, routes := range deps.Public {
			routes.RegisterPublic(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(deps.Validator, deps.Logger))
		for _, routes := range deps.Protected {
			routes.Register(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = "unavailable"
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}
