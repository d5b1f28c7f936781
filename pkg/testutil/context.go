package testutil

import (
	"context"
	"net/http"
	"time"

	id "healthtrack/pkg/domain"
	"healthtrack/pkg/requestcontext"
)

// WithPrincipal adds a principal ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithPrincipal(req *http.Request, principalID id.PrincipalID) *http.Request {
	return req.WithContext(requestcontext.WithPrincipalID(req.Context(), principalID))
}

// ContextAt returns a background context with a fixed request time and
// request ID, for service tests that assert timestamps.
func ContextAt(t time.Time) context.Context {
	ctx := requestcontext.WithTime(context.Background(), t)
	return requestcontext.WithRequestID(ctx, "test-request")
}
