package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"healthtrack/internal/authz"
	doctormetrics "healthtrack/internal/doctor/metrics"
	"healthtrack/internal/doctor/models"
	"healthtrack/internal/doctor/service/mocks"
	"healthtrack/internal/doctor/store"
	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
	audit "healthtrack/pkg/platform/audit"
	"healthtrack/pkg/platform/sentinel"
	"healthtrack/pkg/testutil"
)

// =============================================================================
// Doctor Approval Service Test Suite
// =============================================================================
// The authorizer and audit publisher are mocked; the in-memory store supplies
// the real validate-then-mutate semantics.

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	authorizer *mocks.MockAuthorizer
	publisher  *mocks.MockAuditPublisher
	store      *store.InMemory
	metrics    *doctormetrics.Metrics
	service    *Service

	ctx   context.Context
	now   time.Time
	admin id.PrincipalID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.authorizer = mocks.NewMockAuthorizer(s.ctrl)
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.store = store.NewInMemory()
	s.metrics = doctormetrics.NewWithRegistry(prometheus.NewRegistry())

	var err error
	s.service, err = New(s.store, s.authorizer,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.publisher),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)

	s.now = time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	s.ctx = testutil.ContextAt(s.now)
	s.admin = id.NewPrincipalID()
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) givenPendingDoctor() id.PrincipalID {
	p, err := models.NewDoctorProfile(id.NewPrincipalID(), models.Details{
		LicenseNumber:  "MDCN-7788",
		Specialization: "Paediatrics",
	}, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), p))
	return p.DoctorID
}

func (s *ServiceSuite) allowAdmin(action authz.Action) {
	s.authorizer.EXPECT().Require(gomock.Any(), s.admin, action).Return(nil).AnyTimes()
}

func (s *ServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, s.authorizer)
		s.ErrorContains(err, "store is required")
	})

	s.Run("nil authorizer returns error", func() {
		_, err := New(s.store, nil)
		s.ErrorContains(err, "authorizer is required")
	})
}

func (s *ServiceSuite) TestApprove() {
	s.Run("pending doctor becomes approved and is audited", func() {
		doctor := s.givenPendingDoctor()
		s.allowAdmin(authz.ActionApproveDoctor)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, event audit.Event) error {
				s.Equal(audit.EventDoctorApproved, event.Action)
				s.Equal(doctor, event.Subject)
				s.Equal(s.admin, event.ActorID)
				return nil
			})

		profile, err := s.service.Approve(s.ctx, doctor, s.admin)
		s.Require().NoError(err)
		s.True(profile.Approved())
		s.Equal(s.now, *profile.DecidedAt)

		approved, err := s.service.IsApproved(s.ctx, doctor)
		s.Require().NoError(err)
		s.True(approved)
		s.Equal(1.0, promtest.ToFloat64(s.metrics.Decisions.WithLabelValues("approve", "applied")))
	})

	s.Run("approving twice is a noop with no second audit event", func() {
		doctor := s.givenPendingDoctor()
		s.allowAdmin(authz.ActionApproveDoctor)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		first, err := s.service.Approve(s.ctx, doctor, s.admin)
		s.Require().NoError(err)
		second, err := s.service.Approve(s.ctx, doctor, s.admin)
		s.Require().NoError(err)
		s.Equal(first.Version, second.Version)
		s.True(second.Approved())
	})

	s.Run("non-admin gets wrong role and profile stays pending", func() {
		doctor := s.givenPendingDoctor()
		patient := id.NewPrincipalID()
		s.authorizer.EXPECT().Require(gomock.Any(), patient, authz.ActionApproveDoctor).
			Return(authz.DeniedError(dErrors.ReasonWrongRole))

		_, err := s.service.Approve(s.ctx, doctor, patient)
		s.True(dErrors.HasReason(err, dErrors.ReasonWrongRole))

		approved, err := s.service.IsApproved(s.ctx, doctor)
		s.Require().NoError(err)
		s.False(approved)
	})

	s.Run("unknown doctor is not found", func() {
		s.allowAdmin(authz.ActionApproveDoctor)
		_, err := s.service.Approve(s.ctx, id.NewPrincipalID(), s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("rejected doctor cannot be approved", func() {
		doctor := s.givenPendingDoctor()
		s.allowAdmin(authz.ActionApproveDoctor)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.service.Reject(s.ctx, doctor, s.admin)
		s.Require().NoError(err)

		_, err = s.service.Approve(s.ctx, doctor, s.admin)
		s.True(dErrors.HasReason(err, dErrors.ReasonInvalidTransition))
		s.Equal(dErrors.KindState, dErrors.KindOf(err))
	})

	s.Run("audit failure fails the decision", func() {
		doctor := s.givenPendingDoctor()
		s.allowAdmin(authz.ActionApproveDoctor)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("outbox unavailable"))

		_, err := s.service.Approve(s.ctx, doctor, s.admin)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestReject() {
	s.Run("rejecting twice is a noop", func() {
		doctor := s.givenPendingDoctor()
		s.allowAdmin(authz.ActionApproveDoctor)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		_, err := s.service.Reject(s.ctx, doctor, s.admin)
		s.Require().NoError(err)
		profile, err := s.service.Reject(s.ctx, doctor, s.admin)
		s.Require().NoError(err)
		s.Equal(models.StateRejected, profile.State)
		s.False(profile.Approved())
	})

	s.Run("approved doctor cannot be rejected", func() {
		doctor := s.givenPendingDoctor()
		s.allowAdmin(authz.ActionApproveDoctor)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.service.Approve(s.ctx, doctor, s.admin)
		s.Require().NoError(err)
		_, err = s.service.Reject(s.ctx, doctor, s.admin)
		s.True(dErrors.HasReason(err, dErrors.ReasonInvalidTransition))
	})

	s.Run("rejected doctor leaves the pending list", func() {
		s.allowAdmin(authz.ActionApproveDoctor)
		s.allowAdmin(authz.ActionListPendingDoctors)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		before, err := s.service.ListPending(s.ctx, s.admin)
		s.Require().NoError(err)
		doctor := s.givenPendingDoctor()

		_, err = s.service.Reject(s.ctx, doctor, s.admin)
		s.Require().NoError(err)
		after, err := s.service.ListPending(s.ctx, s.admin)
		s.Require().NoError(err)
		s.Len(after, len(before))
		for _, p := range after {
			s.NotEqual(doctor, p.DoctorID)
		}
	})
}

func (s *ServiceSuite) TestConflictIsTranslated() {
	storeMock := mocks.NewMockStore(s.ctrl)
	svc, err := New(storeMock, s.authorizer, WithMetrics(s.metrics))
	s.Require().NoError(err)

	doctor := id.NewPrincipalID()
	s.allowAdmin(authz.ActionApproveDoctor)
	storeMock.EXPECT().Execute(gomock.Any(), doctor, gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrConflict)

	_, err = svc.Approve(s.ctx, doctor, s.admin)
	s.True(dErrors.HasReason(err, dErrors.ReasonConflict))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Conflicts))
}

func (s *ServiceSuite) TestListPending() {
	s.Run("admin sees pending doctors oldest first", func() {
		s.allowAdmin(authz.ActionListPendingDoctors)
		first := s.givenPendingDoctor()
		second := s.givenPendingDoctor()

		pending, err := s.service.ListPending(s.ctx, s.admin)
		s.Require().NoError(err)
		s.Require().Len(pending, 2)
		s.ElementsMatch([]id.PrincipalID{first, second}, []id.PrincipalID{pending[0].DoctorID, pending[1].DoctorID})
		s.False(pending[0].CreatedAt.After(pending[1].CreatedAt))
	})

	s.Run("store failure is internal", func() {
		storeMock := mocks.NewMockStore(s.ctrl)
		svc, err := New(storeMock, s.authorizer)
		s.Require().NoError(err)
		s.allowAdmin(authz.ActionListPendingDoctors)
		storeMock.EXPECT().ListByState(gomock.Any(), models.StatePendingApproval).Return(nil, errors.New("db down"))

		_, err = svc.ListPending(s.ctx, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestGetApproval() {
	doctor := s.givenPendingDoctor()
	caller := id.NewPrincipalID()
	s.authorizer.EXPECT().Require(gomock.Any(), caller, authz.ActionViewDoctorApproval).Return(nil).AnyTimes()

	view, err := s.service.GetApproval(s.ctx, doctor, caller)
	s.Require().NoError(err)
	s.Equal(models.StatePendingApproval, view.State)
	s.False(view.Approved)

	_, err = s.service.GetApproval(s.ctx, id.NewPrincipalID(), caller)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
