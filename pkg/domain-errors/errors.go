// Package domainerrors carries the error taxonomy that crosses service
// boundaries. Every error leaving a service is an *Error with a Code that the
// transport maps to a status, and optionally a Reason from a closed set that
// callers can branch on without parsing messages.
package domainerrors

import "errors"

// Code is the coarse error class. Transport layers map it to status codes.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Reason is the machine-readable sub-kind of an error.
type Reason string

const (
	// Validation reasons; safe to show to the submitting user.
	ReasonInvalidDocumentType   Reason = "InvalidDocumentType"
	ReasonInvalidDocumentNumber Reason = "InvalidDocumentNumber"
	ReasonInvalidFullName       Reason = "InvalidFullName"
	ReasonInvalidDateOfBirth    Reason = "InvalidDateOfBirth"
	ReasonInvalidReason         Reason = "InvalidReason"

	// Authorization reasons; rendered with one generic message.
	ReasonNoRole          Reason = "NoRole"
	ReasonWrongRole       Reason = "WrongRole"
	ReasonApprovalPending Reason = "ApprovalPending"

	// State reasons.
	ReasonInvalidTransition Reason = "InvalidTransition"
	ReasonAlreadySubmitted  Reason = "AlreadySubmitted"
	ReasonConflict          Reason = "Conflict"

	ReasonNotFound Reason = "NotFound"
)

// Kind groups codes into the four classes surfaced to the boundary layer,
// plus authentication and internal failures.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindState          Kind = "state"
	KindNotFound       Kind = "not_found"
	KindInternal       Kind = "internal"
)

// Error is a domain error with a code, optional reason and optional cause.
type Error struct {
	Code    Code
	Reason  Reason
	Message string
	Err     error
}

// Error returns Message only. The cause stays reachable through Unwrap so
// driver text never reaches the transport layer or its logs.
func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// NewReason creates an error that also carries a machine-readable reason.
func NewReason(code Code, reason Reason, msg string) error {
	return &Error{Code: code, Reason: reason, Message: msg}
}

// Wrap attaches a code and message to an underlying cause. The cause is
// only reachable through errors.Is/As.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// ReasonOf returns the reason carried by err, if any.
func ReasonOf(err error) Reason {
	if de, ok := As(err); ok {
		return de.Reason
	}
	return ""
}

// HasCode reports whether err is a domain error with the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// HasReason reports whether err is a domain error with the given reason.
func HasReason(err error, reason Reason) bool {
	de, ok := As(err)
	return ok && de.Reason == reason
}

// KindOf classifies err. Anything that is not a domain error is internal.
func KindOf(err error) Kind {
	switch CodeOf(err) {
	case CodeBadRequest, CodeValidation, CodeInvalidInput:
		return KindValidation
	case CodeUnauthorized:
		return KindAuthentication
	case CodeForbidden:
		return KindAuthorization
	case CodeConflict, CodeInvariantViolation:
		return KindState
	case CodeNotFound:
		return KindNotFound
	case CodeTimeout, CodeInternal:
		return KindInternal
	}
	return KindInternal
}
