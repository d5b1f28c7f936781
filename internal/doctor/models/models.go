package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
)

// ApprovalState is the admin decision on a doctor profile.
type ApprovalState string

const (
	StatePendingApproval ApprovalState = "pending_approval"
	StateApproved        ApprovalState = "approved"
	StateRejected        ApprovalState = "rejected"
)

func (s ApprovalState) IsValid() bool {
	switch s {
	case StatePendingApproval, StateApproved, StateRejected:
		return true
	}
	return false
}

const (
	maxLicenseLength        = 64
	maxSpecializationLength = 120
	maxBioLength            = 2000
	maxYearsOfExperience    = 80
)

// Details are the professional fields a doctor supplies at registration.
type Details struct {
	LicenseNumber     string `json:"license_number"`
	Specialization    string `json:"specialization"`
	YearsOfExperience *int   `json:"years_of_experience,omitempty"`
	Bio               string `json:"bio,omitempty"`
}

// Normalize trims the free-text fields.
func (d Details) Normalize() Details {
	d.LicenseNumber = strings.TrimSpace(d.LicenseNumber)
	d.Specialization = strings.TrimSpace(d.Specialization)
	d.Bio = strings.TrimSpace(d.Bio)
	return d
}

// Validate checks a normalized Details value.
func (d Details) Validate() error {
	if d.LicenseNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "license_number is required")
	}
	if utf8.RuneCountInString(d.LicenseNumber) > maxLicenseLength {
		return dErrors.New(dErrors.CodeValidation, "license_number is too long")
	}
	if d.Specialization == "" {
		return dErrors.New(dErrors.CodeValidation, "specialization is required")
	}
	if utf8.RuneCountInString(d.Specialization) > maxSpecializationLength {
		return dErrors.New(dErrors.CodeValidation, "specialization is too long")
	}
	if d.YearsOfExperience != nil && (*d.YearsOfExperience < 0 || *d.YearsOfExperience > maxYearsOfExperience) {
		return dErrors.New(dErrors.CodeValidation, "years_of_experience is out of range")
	}
	if utf8.RuneCountInString(d.Bio) > maxBioLength {
		return dErrors.New(dErrors.CodeValidation, "bio is too long")
	}
	return nil
}

// DoctorProfile exists for every principal whose role is doctor.
//
// Invariants:
//   - State starts at StatePendingApproval
//   - only an admin decision moves it, and never back to pending
//   - DecidedBy and DecidedAt are set iff State is not pending
type DoctorProfile struct {
	DoctorID  id.PrincipalID  `json:"doctor_id"`
	Details   Details         `json:"details"`
	State     ApprovalState   `json:"approval_state"`
	DecidedBy *id.PrincipalID `json:"decided_by,omitempty"`
	DecidedAt *time.Time      `json:"decided_at,omitempty"`
	Version   int64           `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewDoctorProfile builds a pending profile from validated details.
func NewDoctorProfile(doctorID id.PrincipalID, details Details, now time.Time) (*DoctorProfile, error) {
	if doctorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "doctor profile requires a doctor id")
	}
	details = details.Normalize()
	if err := details.Validate(); err != nil {
		return nil, err
	}
	return &DoctorProfile{
		DoctorID:  doctorID,
		Details:   details,
		State:     StatePendingApproval,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Approved is the boolean the access gate reads.
func (p *DoctorProfile) Approved() bool {
	return p.State == StateApproved
}

// IsPending reports whether the profile awaits a decision.
func (p *DoctorProfile) IsPending() bool {
	return p.State == StatePendingApproval
}

// CanApprove checks the pending -> approved edge. An already approved profile
// reports noop so retries succeed without writing.
func (p *DoctorProfile) CanApprove() (noop bool, err error) {
	switch p.State {
	case StatePendingApproval:
		return false, nil
	case StateApproved:
		return true, nil
	default:
		return false, dErrors.NewReason(dErrors.CodeInvariantViolation, dErrors.ReasonInvalidTransition,
			"rejected doctors cannot be approved")
	}
}

func (p *DoctorProfile) ApplyApprove(admin id.PrincipalID, now time.Time) {
	p.State = StateApproved
	p.DecidedBy = &admin
	p.DecidedAt = &now
	p.UpdatedAt = now
}

// CanReject checks the pending -> rejected edge. An already rejected profile
// reports noop.
func (p *DoctorProfile) CanReject() (noop bool, err error) {
	switch p.State {
	case StatePendingApproval:
		return false, nil
	case StateRejected:
		return true, nil
	default:
		return false, dErrors.NewReason(dErrors.CodeInvariantViolation, dErrors.ReasonInvalidTransition,
			"approved doctors cannot be rejected")
	}
}

func (p *DoctorProfile) ApplyReject(admin id.PrincipalID, now time.Time) {
	p.State = StateRejected
	p.DecidedBy = &admin
	p.DecidedAt = &now
	p.UpdatedAt = now
}

// ApprovalView is the public read model of a doctor's gate.
type ApprovalView struct {
	DoctorID id.PrincipalID `json:"doctor_id"`
	State    ApprovalState  `json:"approval_state"`
	Approved bool           `json:"approved"`
}

func (p *DoctorProfile) View() ApprovalView {
	return ApprovalView{DoctorID: p.DoctorID, State: p.State, Approved: p.Approved()}
}
