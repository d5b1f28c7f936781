package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	doctormodels "healthtrack/internal/doctor/models"
	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
)

func TestRegisterRequest(t *testing.T) {
	valid := func() RegisterRequest {
		return RegisterRequest{Email: "  Jane.Doe@Example.com ", Password: "correct horse", Role: "Patient"}
	}

	t.Run("normalizes and derives a name", func(t *testing.T) {
		req := valid()
		req.Normalize()
		role, err := req.Validate()
		require.NoError(t, err)
		assert.Equal(t, id.RolePatient, role)
		assert.Equal(t, "jane.doe@example.com", req.Email)
		assert.Equal(t, "Jane Doe", req.FullName)
	})

	t.Run("admin cannot self-register", func(t *testing.T) {
		req := valid()
		req.Role = "admin"
		req.Normalize()
		_, err := req.Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		req := valid()
		req.Role = "nurse"
		req.Normalize()
		_, err := req.Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("doctor needs details", func(t *testing.T) {
		req := valid()
		req.Role = "doctor"
		req.Normalize()
		_, err := req.Validate()
		assert.ErrorContains(t, err, "doctor details")

		req.Doctor = &doctormodels.Details{LicenseNumber: "L-7", Specialization: "Oncology"}
		role, err := req.Validate()
		require.NoError(t, err)
		assert.Equal(t, id.RoleDoctor, role)
	})

	t.Run("password bounds", func(t *testing.T) {
		assert.Error(t, ValidatePassword("short"))
		assert.Error(t, ValidatePassword(strings.Repeat("x", 73)))
		assert.NoError(t, ValidatePassword("long enough"))
	})

	t.Run("invalid email", func(t *testing.T) {
		req := valid()
		req.Email = "not-an-email"
		req.Normalize()
		_, err := req.Validate()
		assert.ErrorContains(t, err, "email")
	})
}

func TestUpdateProfileRequest(t *testing.T) {
	t.Run("empty update is rejected", func(t *testing.T) {
		req := UpdateProfileRequest{}
		assert.Error(t, req.Validate())
	})

	t.Run("blank name is rejected", func(t *testing.T) {
		blank := "   "
		req := UpdateProfileRequest{FullName: &blank}
		req.Normalize()
		assert.Error(t, req.Validate())
	})

	t.Run("applies only provided fields", func(t *testing.T) {
		phone := " +2348000000000 "
		req := UpdateProfileRequest{Phone: &phone}
		req.Normalize()
		require.NoError(t, req.Validate())

		p := &Principal{FullName: "Jane Doe"}
		req.Apply(p, p.CreatedAt)
		assert.Equal(t, "Jane Doe", p.FullName)
		assert.Equal(t, "+2348000000000", p.Phone)
	})
}
