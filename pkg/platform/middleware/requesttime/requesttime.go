// Package requesttime captures one "now" per request so that a transition,
// its audit entry and its log lines all carry the same timestamp.
package requesttime

import (
	"net/http"
	"time"

	"healthtrack/pkg/requestcontext"
)

// Middleware stores the request start time in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
