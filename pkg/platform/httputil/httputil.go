// Package httputil renders domain errors and JSON bodies.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "healthtrack/pkg/domain-errors"
)

// Messages for error kinds whose details must not leak.
const (
	permissionDeniedMessage = "You do not have permission to perform this action"
	stateErrorMessage       = "The action could not be completed. Please retry or contact support"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto a status and a sanitized body. Internal errors
// carry no description; authorization and state errors carry a fixed message
// and only the closed-set reason.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}

	switch dErrors.KindOf(err) {
	case dErrors.KindInternal:
		body.Error = string(dErrors.CodeInternal)
		if code == dErrors.CodeTimeout {
			body.Error = string(dErrors.CodeTimeout)
		}
	case dErrors.KindAuthorization:
		body.Description = permissionDeniedMessage
		body.Reason = string(dErrors.ReasonOf(err))
	case dErrors.KindState:
		body.Description = stateErrorMessage
		body.Reason = string(dErrors.ReasonOf(err))
	default:
		if de, ok := dErrors.As(err); ok {
			body.Description = de.Message
			body.Reason = string(de.Reason)
		}
	}

	WriteJSON(w, StatusFor(code), body)
}

// StatusFor maps a domain error code onto an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvariantViolation:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
