package authz

import (
	"context"
	"log/slog"
	"net/http"

	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
	"healthtrack/pkg/platform/httputil"
	"healthtrack/pkg/requestcontext"
)

// Checker is the part of Authorizer the HTTP layer needs.
type Checker interface {
	Authorize(ctx context.Context, principalID id.PrincipalID, action Action) (Decision, error)
}

// RequireAction denies requests whose principal may not perform action.
// Must run after the bearer auth middleware.
func RequireAction(checker Checker, action Action, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principalID := requestcontext.PrincipalID(ctx)
			if principalID.IsNil() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}

			d, err := checker.Authorize(ctx, principalID, action)
			if err != nil {
				logger.ErrorContext(ctx, "authorization check failed",
					"action", action,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			if !d.Allowed {
				httputil.WriteError(w, DeniedError(d.Reason))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
