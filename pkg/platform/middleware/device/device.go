// Package device turns User-Agent headers into short display names that are
// stamped on audit entries ("Chrome on macOS").
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"healthtrack/pkg/requestcontext"
)

const unknownDevice = "Unknown Device"

// ParseUserAgent returns "<browser> on <os>" for a raw User-Agent string.
func ParseUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return unknownDevice
	}

	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	platform := ua.OS()
	if platform == "" {
		platform = ua.Platform()
	}
	if platform == "" {
		platform = "Unknown OS"
	}
	if ua.Mobile() && !strings.Contains(platform, ua.Platform()) && ua.Platform() != "" {
		platform = ua.Platform() + " " + platform
	}
	return strings.Join(strings.Fields(browser+" on "+platform), " ")
}

// Middleware stores the parsed device name in the request context.
// Must run after metadata.ClientMetadata.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = requestcontext.WithDevice(ctx, ParseUserAgent(requestcontext.UserAgent(ctx)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
