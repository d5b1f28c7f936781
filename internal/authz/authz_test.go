package authz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
	audit "healthtrack/pkg/platform/audit"
	auditmemory "healthtrack/pkg/platform/audit/store/memory"
	"healthtrack/pkg/platform/sentinel"
)

type stubRoles struct {
	roles map[id.PrincipalID]id.Role
	err   error
	calls int
}

func (s *stubRoles) RoleOf(_ context.Context, principalID id.PrincipalID) (id.Role, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	role, ok := s.roles[principalID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return role, nil
}

type stubApprovals struct {
	approved map[id.PrincipalID]bool
	err      error
}

func (s *stubApprovals) IsApproved(_ context.Context, doctorID id.PrincipalID) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.approved[doctorID], nil
}

// =============================================================================
// Authorizer Test Suite
// =============================================================================
// The authorizer is the only place role and approval policy is decided, so the
// suite walks every role against every protection level.

type AuthorizerSuite struct {
	suite.Suite
	roles     *stubRoles
	approvals *stubApprovals
	security  *auditmemory.InMemoryStore
	metrics   *Metrics
	authz     *Authorizer

	patient         id.PrincipalID
	approvedDoctor  id.PrincipalID
	pendingDoctor   id.PrincipalID
	admin           id.PrincipalID
	unknownIdentity id.PrincipalID
}

func TestAuthorizerSuite(t *testing.T) {
	suite.Run(t, new(AuthorizerSuite))
}

func (s *AuthorizerSuite) SetupTest() {
	s.patient = id.NewPrincipalID()
	s.approvedDoctor = id.NewPrincipalID()
	s.pendingDoctor = id.NewPrincipalID()
	s.admin = id.NewPrincipalID()
	s.unknownIdentity = id.NewPrincipalID()

	s.roles = &stubRoles{roles: map[id.PrincipalID]id.Role{
		s.patient:        id.RolePatient,
		s.approvedDoctor: id.RoleDoctor,
		s.pendingDoctor:  id.RoleDoctor,
		s.admin:          id.RoleAdmin,
	}}
	s.approvals = &stubApprovals{approved: map[id.PrincipalID]bool{s.approvedDoctor: true}}
	s.security = auditmemory.NewInMemoryStore()
	s.metrics = NewMetricsWithRegistry(prometheus.NewRegistry())
	s.authz = New(s.roles, s.approvals,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithSecurityAudit(s.security),
	)
}

func (s *AuthorizerSuite) TestEveryActionHasProtection() {
	for _, action := range AllActions {
		p, ok := action.Protection()
		s.True(ok, "action %s has no protection", action)
		s.NotEqual("unknown", p.String(), "action %s", action)
	}
}

func (s *AuthorizerSuite) TestRoleMatrix() {
	type want struct {
		allowed bool
		reason  dErrors.Reason
	}
	allowed := want{allowed: true}
	wrongRole := want{reason: dErrors.ReasonWrongRole}

	cases := []struct {
		name      string
		principal func() id.PrincipalID
		expect    map[Protection]want
	}{
		{
			name:      "patient",
			principal: func() id.PrincipalID { return s.patient },
			expect: map[Protection]want{
				ProtectionAuthenticated: allowed,
				ProtectionPatient:       allowed,
				ProtectionDoctor:        wrongRole,
				ProtectionAdmin:         wrongRole,
			},
		},
		{
			name:      "approved doctor",
			principal: func() id.PrincipalID { return s.approvedDoctor },
			expect: map[Protection]want{
				ProtectionAuthenticated: allowed,
				ProtectionPatient:       wrongRole,
				ProtectionDoctor:        allowed,
				ProtectionAdmin:         wrongRole,
			},
		},
		{
			name:      "pending doctor",
			principal: func() id.PrincipalID { return s.pendingDoctor },
			expect: map[Protection]want{
				ProtectionAuthenticated: allowed,
				ProtectionPatient:       wrongRole,
				ProtectionDoctor:        {reason: dErrors.ReasonApprovalPending},
				ProtectionAdmin:         wrongRole,
			},
		},
		{
			name:      "admin",
			principal: func() id.PrincipalID { return s.admin },
			expect: map[Protection]want{
				ProtectionAuthenticated: allowed,
				ProtectionPatient:       wrongRole,
				ProtectionDoctor:        wrongRole,
				ProtectionAdmin:         allowed,
			},
		},
		{
			name:      "principal without role assignment",
			principal: func() id.PrincipalID { return s.unknownIdentity },
			expect: map[Protection]want{
				ProtectionAuthenticated: {reason: dErrors.ReasonNoRole},
				ProtectionPatient:       {reason: dErrors.ReasonNoRole},
				ProtectionDoctor:        {reason: dErrors.ReasonNoRole},
				ProtectionAdmin:         {reason: dErrors.ReasonNoRole},
			},
		},
	}

	for _, tc := range cases {
		for _, action := range AllActions {
			protection, _ := action.Protection()
			expected := tc.expect[protection]
			s.Run(tc.name+"/"+string(action), func() {
				d, err := s.authz.Authorize(context.Background(), tc.principal(), action)
				s.Require().NoError(err)
				s.Equal(expected.allowed, d.Allowed)
				s.Equal(expected.reason, d.Reason)
			})
		}
	}
}

func (s *AuthorizerSuite) TestResolvesOnEveryCall() {
	for range 3 {
		_, err := s.authz.Authorize(context.Background(), s.patient, ActionBookAppointment)
		s.Require().NoError(err)
	}
	s.Equal(3, s.roles.calls)
}

func (s *AuthorizerSuite) TestNilPrincipalDenied() {
	d, err := s.authz.Authorize(context.Background(), id.PrincipalID{}, ActionViewOwnRole)
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(dErrors.ReasonNoRole, d.Reason)
	s.Equal(0, s.roles.calls)
}

func (s *AuthorizerSuite) TestUnknownActionIsAnError() {
	_, err := s.authz.Authorize(context.Background(), s.admin, Action("delete_everything"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *AuthorizerSuite) TestInfrastructureFailures() {
	s.Run("role lookup failure is an error, not a decision", func() {
		s.roles.err = errors.New("connection reset")
		defer func() { s.roles.err = nil }()

		_, err := s.authz.Authorize(context.Background(), s.admin, ActionReviewKyc)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.NotContains(err.Error(), "connection reset")
	})

	s.Run("approval lookup failure is an error", func() {
		s.approvals.err = errors.New("timeout")
		defer func() { s.approvals.err = nil }()

		err := s.authz.Require(context.Background(), s.approvedDoctor, ActionDoctorWorkspace)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *AuthorizerSuite) TestRequire() {
	s.Run("allowed returns nil", func() {
		s.NoError(s.authz.Require(context.Background(), s.admin, ActionApproveDoctor))
	})

	s.Run("denied returns forbidden with reason", func() {
		err := s.authz.Require(context.Background(), s.pendingDoctor, ActionViewPatientRecord)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.True(dErrors.HasReason(err, dErrors.ReasonApprovalPending))
		s.Equal(dErrors.KindAuthorization, dErrors.KindOf(err))
	})
}

func (s *AuthorizerSuite) TestDenialsAreRecorded() {
	err := s.authz.Require(context.Background(), s.patient, ActionReviewKyc)
	s.Require().Error(err)

	events := s.security.Events()
	s.Require().Len(events, 1)
	s.Equal(audit.EventAuthorizationDenied, events[0].Action)
	s.Equal(s.patient, events[0].Subject)
	s.Equal(string(ActionReviewKyc), events[0].TargetID)
	s.Equal(string(dErrors.ReasonWrongRole), events[0].Reason)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues(
		string(ActionReviewKyc), "deny", string(dErrors.ReasonWrongRole))))
}

func (s *AuthorizerSuite) TestAllowsAreNotAudited() {
	s.Require().NoError(s.authz.Require(context.Background(), s.admin, ActionReviewKyc))
	s.Empty(s.security.Events())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues(
		string(ActionReviewKyc), "allow", "")))
}
