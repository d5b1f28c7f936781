package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "healthtrack/internal/jwt_token"
	"healthtrack/internal/platform/metrics"
	rlmiddleware "healthtrack/internal/ratelimit/middleware"
	"healthtrack/internal/ratelimit/store/bucket"
	id "healthtrack/pkg/domain"
	"healthtrack/pkg/platform/httputil"
	request "healthtrack/pkg/platform/middleware/request"
	"healthtrack/pkg/requestcontext"
	"healthtrack/pkg/testutil"
)

type publicStub struct{}

func (publicStub) RegisterPublic(r chi.Router) {
	r.Post("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"ok": "true"})
	})
}

type protectedStub struct{}

func (protectedStub) Register(r chi.Router) {
	r.Get("/me/role", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"principal_id": requestcontext.PrincipalID(r.Context()).String(),
		})
	})
}

func newTestRouter(t *testing.T, health map[string]HealthCheck) (http.Handler, *jwttoken.JWTService) {
	t.Helper()
	jwt := jwttoken.NewJWTService("test-signing-key", "healthtrack", "healthtrack-api")
	reg := prometheus.NewRegistry()
	router := NewRouter(Deps{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Validator:      jwttoken.NewJWTServiceAdapter(jwt),
		Metrics:        metrics.NewWithRegistry(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Public:         []PublicRoutes{publicStub{}},
		Protected:      []Routes{protectedStub{}},
		Health:         health,
	})
	return router, jwt
}

func TestRouter(t *testing.T) {
	t.Run("public routes need no token", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/auth/login"))
		testutil.AssertStatusOK(t, rr)
	})

	t.Run("protected routes reject a missing token", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/me/role"))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("protected routes see the token subject", func(t *testing.T) {
		router, jwt := newTestRouter(t, nil)
		principal := id.NewPrincipalID()
		token, _, err := jwt.GenerateAccessToken(principal, time.Minute)
		require.NoError(t, err)

		req := testutil.NewRequest(t, http.MethodGet, "/me/role")
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "principal_id", principal.String())
	})

	t.Run("request id is echoed", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)
		req := testutil.NewRequest(t, http.MethodGet, "/healthz")
		req.Header.Set(request.HeaderRequestID, "req-123")
		rr := testutil.DoRequest(router, req)
		assert.Equal(t, "req-123", rr.Header().Get(request.HeaderRequestID))
	})

	t.Run("failing dependency degrades health", func(t *testing.T) {
		router, _ := newTestRouter(t, map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("down") },
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))

		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		testutil.AssertJSONContains(t, rr, "database", "ok")
		testutil.AssertJSONContains(t, rr, "redis", "unavailable")
	})

	t.Run("metrics endpoint is served", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)
		_ = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
		testutil.AssertStatusOK(t, rr)
		assert.Contains(t, rr.Body.String(), "healthtrack_http_requests_total")
	})

	t.Run("public routes pass through the auth rate limit", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		limiter := rlmiddleware.New(bucket.NewInMemoryBucketStore(), 1, time.Minute, logger)
		router := NewRouter(Deps{
			Logger:        logger,
			Validator:     jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService("k", "i", "a")),
			AuthRateLimit: limiter.RateLimitAuth,
			Public:        []PublicRoutes{publicStub{}},
		})

		testutil.AssertStatusOK(t, testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/auth/login")))
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/auth/login"))
		testutil.AssertStatus(t, rr, http.StatusTooManyRequests)

		rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatusOK(t, rr)
	})

	t.Run("unknown route is a json 404", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/nope"))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}
