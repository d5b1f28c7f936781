package domain

import dErrors "healthtrack/pkg/domain-errors"

// Role is the closed classification of a principal.
// Invariant: the value is one of RolePatient, RoleDoctor or RoleAdmin.
//
// Usage: construct via ParseRole at trust boundaries; direct casting bypasses
// validation. Code that branches on a role must switch over all three values.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unknown.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

// IsValid reports whether r is one of the three supported roles.
func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// SelfRegistrable reports whether a principal may claim this role at sign-up.
// Administrators are provisioned out of band.
func (r Role) SelfRegistrable() bool {
	switch r {
	case RolePatient, RoleDoctor:
		return true
	case RoleAdmin:
		return false
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
