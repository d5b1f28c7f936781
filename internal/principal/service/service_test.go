package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"healthtrack/internal/authz"
	doctormodels "healthtrack/internal/doctor/models"
	doctorstore "healthtrack/internal/doctor/store"
	"healthtrack/internal/principal/models"
	"healthtrack/internal/principal/service/mocks"
	"healthtrack/internal/principal/store"
	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
	audit "healthtrack/pkg/platform/audit"
	"healthtrack/pkg/testutil"
)

// =============================================================================
// Principal Service Test Suite
// =============================================================================
// Stores are the in-memory implementations; token issuing, authorization and
// audit are mocked so each test states exactly which collaborators it uses.

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	tokens     *mocks.MockTokenIssuer
	authorizer *mocks.MockAuthorizer
	publisher  *mocks.MockAuditPublisher
	principals *store.InMemory
	doctors    *doctorstore.InMemory
	service    *Service
	ctx        context.Context
	now        time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.tokens = mocks.NewMockTokenIssuer(s.ctrl)
	s.authorizer = mocks.NewMockAuthorizer(s.ctrl)
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.principals = store.NewInMemory()
	s.doctors = doctorstore.NewInMemory()

	var err error
	s.service, err = New(s.principals, s.doctors, s.tokens, s.authorizer,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.publisher),
		WithBcryptCost(bcrypt.MinCost),
		WithTokenTTL(10*time.Minute),
	)
	s.Require().NoError(err)

	s.now = time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC)
	s.ctx = testutil.ContextAt(s.now)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) givenRegistered(address, role string) *models.Profile {
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
	req := models.RegisterRequest{Email: address, Password: "s3cret-pass", Role: role}
	if role == string(id.RoleDoctor) {
		req.Doctor = &doctormodels.Details{LicenseNumber: "MDCN-55", Specialization: "Radiology"}
	}
	profile, err := s.service.Register(s.ctx, req)
	s.Require().NoError(err)
	return profile
}

func (s *ServiceSuite) TestNew() {
	s.Run("requires collaborators", func() {
		_, err := New(nil, s.doctors, s.tokens, s.authorizer)
		s.ErrorContains(err, "principal store is required")
		_, err = New(s.principals, nil, s.tokens, s.authorizer)
		s.ErrorContains(err, "doctor profile store is required")
		_, err = New(s.principals, s.doctors, nil, s.authorizer)
		s.ErrorContains(err, "token issuer is required")
		_, err = New(s.principals, s.doctors, s.tokens, nil)
		s.ErrorContains(err, "authorizer is required")
	})
}

func (s *ServiceSuite) TestRegister() {
	s.Run("patient gets exactly one role and an audit event", func() {
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, event audit.Event) error {
				s.Equal(audit.EventPrincipalRegistered, event.Action)
				s.Equal(string(id.RolePatient), event.NewStatus)
				return nil
			})

		profile, err := s.service.Register(s.ctx, models.RegisterRequest{
			Email:    "Jane.Doe@Example.com",
			Password: "s3cret-pass",
			Role:     "patient",
		})
		s.Require().NoError(err)
		s.Equal("jane.doe@example.com", profile.Email)
		s.Equal("Jane Doe", profile.FullName)
		s.Equal(id.RolePatient, profile.Role)
		s.Equal(s.now, profile.CreatedAt)

		role, err := s.principals.RoleOf(s.ctx, profile.ID)
		s.Require().NoError(err)
		s.Equal(id.RolePatient, role)

		stored, err := s.principals.FindByID(s.ctx, profile.ID)
		s.Require().NoError(err)
		s.NotEqual("s3cret-pass", stored.PasswordHash)
	})

	s.Run("doctor starts pending approval", func() {
		profile := s.givenRegistered("house@example.com", "doctor")

		doctor, err := s.doctors.FindByID(s.ctx, profile.ID)
		s.Require().NoError(err)
		s.Equal(doctormodels.StatePendingApproval, doctor.State)
		s.False(doctor.Approved())
	})

	s.Run("admin cannot self-register", func() {
		_, err := s.service.Register(s.ctx, models.RegisterRequest{Email: "root@example.com", Password: "s3cret-pass", Role: "admin"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.principals.FindByEmail(s.ctx, "root@example.com")
		s.Error(err)
	})

	s.Run("duplicate email is a conflict", func() {
		s.givenRegistered("dup@example.com", "patient")
		_, err := s.service.Register(s.ctx, models.RegisterRequest{Email: "DUP@example.com", Password: "another-pass", Role: "patient"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("audit failure fails registration", func() {
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("outbox down"))
		_, err := s.service.Register(s.ctx, models.RegisterRequest{Email: "audit@example.com", Password: "s3cret-pass", Role: "patient"})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestCreateAdmin() {
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
	profile, err := s.service.CreateAdmin(s.ctx, "admin@example.com", "bootstrap-pass", "Ops Admin")
	s.Require().NoError(err)
	s.Equal(id.RoleAdmin, profile.Role)

	_, err = s.service.CreateAdmin(s.ctx, "bad", "bootstrap-pass", "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestLogin() {
	profile := s.givenRegistered("login@example.com", "patient")

	s.Run("valid credentials issue a token", func() {
		expires := s.now.Add(10 * time.Minute)
		s.tokens.EXPECT().GenerateAccessToken(profile.ID, 10*time.Minute).Return("signed.jwt", expires, nil)

		result, err := s.service.Login(s.ctx, models.LoginRequest{Email: " LOGIN@example.com", Password: "s3cret-pass"})
		s.Require().NoError(err)
		s.Equal("signed.jwt", result.AccessToken)
		s.Equal("Bearer", result.TokenType)
		s.Equal(profile.ID, result.PrincipalID)
	})

	s.Run("wrong password and unknown email look the same", func() {
		_, errWrong := s.service.Login(s.ctx, models.LoginRequest{Email: "login@example.com", Password: "nope-nope"})
		_, errUnknown := s.service.Login(s.ctx, models.LoginRequest{Email: "ghost@example.com", Password: "nope-nope"})
		s.True(dErrors.HasCode(errWrong, dErrors.CodeUnauthorized))
		s.Equal(errWrong.Error(), errUnknown.Error())
	})
}

func (s *ServiceSuite) TestResolveRole() {
	profile := s.givenRegistered("role@example.com", "doctor")

	s.Run("self resolves stored role", func() {
		role, err := s.service.ResolveRole(s.ctx, profile.ID, profile.ID)
		s.Require().NoError(err)
		s.Equal(id.RoleDoctor, role)
	})

	s.Run("other principals are denied", func() {
		_, err := s.service.ResolveRole(s.ctx, profile.ID, id.NewPrincipalID())
		s.True(dErrors.HasReason(err, dErrors.ReasonWrongRole))
	})

	s.Run("missing assignment fails closed", func() {
		ghost := id.NewPrincipalID()
		_, err := s.service.ResolveRole(s.ctx, ghost, ghost)
		s.True(dErrors.HasReason(err, dErrors.ReasonNoRole))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestProfiles() {
	owner := s.givenRegistered("owner@example.com", "patient")
	other := id.NewPrincipalID()

	s.Run("owner reads own profile", func() {
		s.authorizer.EXPECT().Require(gomock.Any(), owner.ID, authz.ActionManageOwnProfile).Return(nil)
		profile, err := s.service.GetProfile(s.ctx, owner.ID, owner.ID)
		s.Require().NoError(err)
		s.Equal(owner.Email, profile.Email)
	})

	s.Run("non-admin cannot read another profile", func() {
		s.authorizer.EXPECT().Require(gomock.Any(), other, authz.ActionManageAnyProfile).
			Return(authz.DeniedError(dErrors.ReasonWrongRole))
		_, err := s.service.GetProfile(s.ctx, owner.ID, other)
		s.True(dErrors.HasReason(err, dErrors.ReasonWrongRole))
	})

	s.Run("admin updates another profile", func() {
		admin := id.NewPrincipalID()
		s.authorizer.EXPECT().Require(gomock.Any(), admin, authz.ActionManageAnyProfile).Return(nil)
		name := "Jane Q. Public"
		profile, err := s.service.UpdateProfile(s.ctx, owner.ID, admin, models.UpdateProfileRequest{FullName: &name})
		s.Require().NoError(err)
		s.Equal(name, profile.FullName)
		s.Equal(id.RolePatient, profile.Role)
	})

	s.Run("invalid update is rejected", func() {
		s.authorizer.EXPECT().Require(gomock.Any(), owner.ID, authz.ActionManageOwnProfile).Return(nil)
		_, err := s.service.UpdateProfile(s.ctx, owner.ID, owner.ID, models.UpdateProfileRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
