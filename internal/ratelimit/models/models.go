// Package models holds the rate limit result and key helpers.
package models

import (
	"strings"
	"time"
)

// RateLimitResult is the outcome of one Allow call.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// RateLimitExceededResponse is the body of a 429, in the shared error
// envelope. The wait time travels in the Retry-After header.
type RateLimitExceededResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// SanitizeKeySegment escapes the key delimiter so a client-controlled
// segment cannot address a neighbouring bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// Key joins sanitized segments under the auth bucket prefix.
func Key(segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, "healthtrack:ratelimit")
	for _, s := range segments {
		parts = append(parts, SanitizeKeySegment(s))
	}
	return strings.Join(parts, ":")
}
