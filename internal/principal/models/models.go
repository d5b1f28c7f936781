package models

import (
	"strings"
	"time"
	"unicode/utf8"

	doctormodels "healthtrack/internal/doctor/models"
	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
	"healthtrack/pkg/email"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordBytes = 72
	maxNameLength    = 100
	maxPhoneLength   = 32
)

// Principal is an authenticated account. Principals are never deleted.
type Principal struct {
	ID           id.PrincipalID `json:"id"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"-"`
	FullName     string         `json:"full_name"`
	Phone        string         `json:"phone,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// RoleAssignment binds one principal to exactly one role. It is written once
// at registration and never updated.
type RoleAssignment struct {
	PrincipalID id.PrincipalID `json:"principal_id"`
	Role        id.Role        `json:"role"`
	AssignedAt  time.Time      `json:"assigned_at"`
}

// Profile is the read model of a principal with its role.
type Profile struct {
	ID        id.PrincipalID `json:"id"`
	Email     string         `json:"email"`
	FullName  string         `json:"full_name"`
	Phone     string         `json:"phone,omitempty"`
	Role      id.Role        `json:"role"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewProfile(p *Principal, role id.Role) *Profile {
	return &Profile{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Role:      role,
		CreatedAt: p.CreatedAt,
	}
}

// RegisterRequest is a self-service sign-up. Doctor is required when Role is
// doctor and ignored otherwise.
type RegisterRequest struct {
	Email    string                `json:"email"`
	Password string                `json:"password"`
	Role     string                `json:"role"`
	FullName string                `json:"full_name,omitempty"`
	Phone    string                `json:"phone,omitempty"`
	Doctor   *doctormodels.Details `json:"doctor,omitempty"`
}

func (r *RegisterRequest) Normalize() {
	r.Email = email.Normalize(r.Email)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	r.FullName = strings.TrimSpace(r.FullName)
	r.Phone = strings.TrimSpace(r.Phone)
	if r.FullName == "" {
		r.FullName = email.DeriveNameFromEmail(r.Email)
	}
	if r.Doctor != nil {
		d := r.Doctor.Normalize()
		r.Doctor = &d
	}
}

// Validate checks a normalized request and returns the requested role.
func (r *RegisterRequest) Validate() (id.Role, error) {
	if !email.IsValid(r.Email) {
		return "", dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if err := ValidatePassword(r.Password); err != nil {
		return "", err
	}
	role, err := id.ParseRole(r.Role)
	if err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "role must be patient or doctor")
	}
	if !role.SelfRegistrable() {
		return "", dErrors.New(dErrors.CodeValidation, "role must be patient or doctor")
	}
	if err := validateName(r.FullName); err != nil {
		return "", err
	}
	if utf8.RuneCountInString(r.Phone) > maxPhoneLength {
		return "", dErrors.New(dErrors.CodeValidation, "phone is too long")
	}
	if role == id.RoleDoctor {
		if r.Doctor == nil {
			return "", dErrors.New(dErrors.CodeValidation, "doctor details are required")
		}
		if err := r.Doctor.Validate(); err != nil {
			return "", err
		}
	}
	return role, nil
}

func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	if len(password) > maxPasswordBytes {
		return dErrors.New(dErrors.CodeValidation, "password must be at most 72 bytes")
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "full_name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "full_name is too long")
	}
	return nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresAt   time.Time      `json:"expires_at"`
	PrincipalID id.PrincipalID `json:"principal_id"`
}

// UpdateProfileRequest changes contact fields. Nil fields are left alone.
type UpdateProfileRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}

func (r *UpdateProfileRequest) Normalize() {
	if r.FullName != nil {
		v := strings.TrimSpace(*r.FullName)
		r.FullName = &v
	}
	if r.Phone != nil {
		v := strings.TrimSpace(*r.Phone)
		r.Phone = &v
	}
}

func (r *UpdateProfileRequest) Validate() error {
	if r.FullName == nil && r.Phone == nil {
		return dErrors.New(dErrors.CodeValidation, "nothing to update")
	}
	if r.FullName != nil {
		if err := validateName(*r.FullName); err != nil {
			return err
		}
	}
	if r.Phone != nil && utf8.RuneCountInString(*r.Phone) > maxPhoneLength {
		return dErrors.New(dErrors.CodeValidation, "phone is too long")
	}
	return nil
}

// Apply writes the requested fields onto p.
func (r *UpdateProfileRequest) Apply(p *Principal, now time.Time) {
	if r.FullName != nil {
		p.FullName = *r.FullName
	}
	if r.Phone != nil {
		p.Phone = *r.Phone
	}
	p.UpdatedAt = now
}
