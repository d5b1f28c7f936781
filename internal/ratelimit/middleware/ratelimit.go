// Package middleware throttles the unauthenticated credential endpoints per
// client IP.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	rlmetrics "healthtrack/internal/ratelimit/metrics"
	"healthtrack/internal/ratelimit/models"
	"healthtrack/pkg/platform/httputil"
	"healthtrack/pkg/requestcontext"
)

// BucketStore records one request against a key's sliding window.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

type Middleware struct {
	store   BucketStore
	limit   int
	window  time.Duration
	logger  *slog.Logger
	metrics *rlmetrics.Metrics
}

type Option func(*Middleware)

func WithMetrics(m *rlmetrics.Metrics) Option {
	return func(mw *Middleware) {
		mw.metrics = m
	}
}

func New(store BucketStore, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{store: store, limit: limit, window: window, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RateLimitAuth limits requests per client IP. A store failure lets the
// request through: the endpoints behind it still check credentials.
func (m *Middleware) RateLimitAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)

		result, err := m.store.Allow(ctx, models.Key("auth", ip), m.limit, m.window)
		if err != nil {
			m.observe("error")
			m.logger.ErrorContext(ctx, "failed to check auth rate limit",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if !result.Allowed {
			m.observe("limited")
			m.logger.WarnContext(ctx, "auth rate limit exceeded",
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			writeRateLimitExceeded(w, result)
			return
		}
		m.observe("allowed")
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) observe(outcome string) {
	if m.metrics != nil {
		m.metrics.ObserveCheck(outcome)
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:       "rate_limit_exceeded",
		Description: "Too many authentication attempts. Please try again later.",
	})
}
