// Package service implements the doctor approval gate: admin decisions on
// doctor profiles and the approval read used by access checks.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Authorizer,AuditPublisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"healthtrack/internal/authz"
	doctormetrics "healthtrack/internal/doctor/metrics"
	"healthtrack/internal/doctor/models"
	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
	audit "healthtrack/pkg/platform/audit"
	"healthtrack/pkg/platform/sentinel"
	"healthtrack/pkg/platform/tx"
	"healthtrack/pkg/requestcontext"
)

type Store interface {
	FindByID(ctx context.Context, doctorID id.PrincipalID) (*models.DoctorProfile, error)
	IsApproved(ctx context.Context, doctorID id.PrincipalID) (bool, error)
	ListByState(ctx context.Context, state models.ApprovalState) ([]*models.DoctorProfile, error)
	Execute(ctx context.Context, doctorID id.PrincipalID, validate func(*models.DoctorProfile) error, mutate func(*models.DoctorProfile)) (*models.DoctorProfile, error)
}

type Authorizer interface {
	Require(ctx context.Context, principalID id.PrincipalID, action authz.Action) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service applies admin decisions to doctor profiles.
type Service struct {
	profiles       Store
	authorizer     Authorizer
	tx             tx.Runner
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *doctormetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *doctormetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditPublisher sets the compliance publisher. Decisions fail when it
// cannot persist the event.
func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithTx(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func New(profiles Store, authorizer Authorizer, opts ...Option) (*Service, error) {
	if profiles == nil {
		return nil, errors.New("doctor profile store is required")
	}
	if authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	s := &Service{
		profiles:   profiles,
		authorizer: authorizer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = &tx.LocalRunner{}
	}
	return s, nil
}

var tracer = otel.Tracer("healthtrack/doctor")

var errNoChange = errors.New("decision already recorded")

type decision struct {
	name  string
	event audit.AuditEvent
	check func(*models.DoctorProfile) (bool, error)
	apply func(p *models.DoctorProfile, admin id.PrincipalID, now time.Time)
}

var (
	approveDecision = decision{
		name:  "approve",
		event: audit.EventDoctorApproved,
		check: (*models.DoctorProfile).CanApprove,
		apply: (*models.DoctorProfile).ApplyApprove,
	}
	rejectDecision = decision{
		name:  "reject",
		event: audit.EventDoctorRejected,
		check: (*models.DoctorProfile).CanReject,
		apply: (*models.DoctorProfile).ApplyReject,
	}
)

// Approve moves a pending doctor to approved. Approving an approved doctor
// returns the profile unchanged.
func (s *Service) Approve(ctx context.Context, doctorID, adminID id.PrincipalID) (*models.DoctorProfile, error) {
	return s.decide(ctx, approveDecision, doctorID, adminID)
}

// Reject moves a pending doctor to rejected. The decision is final.
func (s *Service) Reject(ctx context.Context, doctorID, adminID id.PrincipalID) (*models.DoctorProfile, error) {
	return s.decide(ctx, rejectDecision, doctorID, adminID)
}

func (s *Service) decide(ctx context.Context, d decision, doctorID, adminID id.PrincipalID) (*models.DoctorProfile, error) {
	ctx, span := tracer.Start(ctx, "doctor."+d.name)
	defer span.End()
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()))
	start := time.Now()

	if err := s.authorizer.Require(ctx, adminID, authz.ActionApproveDoctor); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var (
		result  *models.DoctorProfile
		changed bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		profile, err := s.profiles.Execute(txCtx, doctorID,
			func(p *models.DoctorProfile) error {
				noop, err := d.check(p)
				if err != nil {
					return err
				}
				if noop {
					return errNoChange
				}
				return nil
			},
			func(p *models.DoctorProfile) {
				d.apply(p, adminID, now)
			},
		)
		if errors.Is(err, errNoChange) {
			result, err = s.profiles.FindByID(txCtx, doctorID)
			return err
		}
		if err != nil {
			return err
		}
		result, changed = profile, true

		if s.auditPublisher == nil {
			return nil
		}
		return s.auditPublisher.Emit(txCtx, audit.Event{
			Subject:   doctorID,
			ActorID:   adminID,
			Action:    d.event,
			TargetID:  doctorID.String(),
			Outcome:   "success",
			NewStatus: string(profile.State),
		})
	})
	if s.metrics != nil {
		s.metrics.ObserveDecision(start)
	}
	if err != nil {
		span.SetStatus(codes.Error, "decision failed")
		span.RecordError(err)
		s.incDecision(d.name, "failed")
		if errors.Is(err, sentinel.ErrConflict) && s.metrics != nil {
			s.metrics.IncConflict()
		}
		return nil, translateErr(err)
	}

	if !changed {
		s.incDecision(d.name, "noop")
		return result, nil
	}
	s.incDecision(d.name, "applied")
	s.logger.InfoContext(ctx, "doctor decision recorded",
		"decision", d.name,
		"doctor_id", doctorID,
		"admin_id", adminID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// ListPending returns doctors awaiting a decision, oldest first.
func (s *Service) ListPending(ctx context.Context, adminID id.PrincipalID) ([]*models.DoctorProfile, error) {
	if err := s.authorizer.Require(ctx, adminID, authz.ActionListPendingDoctors); err != nil {
		return nil, err
	}
	profiles, err := s.profiles.ListByState(ctx, models.StatePendingApproval)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending doctors")
	}
	return profiles, nil
}

// IsApproved reads the gate. Unknown doctors are not approved.
func (s *Service) IsApproved(ctx context.Context, doctorID id.PrincipalID) (bool, error) {
	approved, err := s.profiles.IsApproved(ctx, doctorID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read doctor approval")
	}
	return approved, nil
}

// GetApproval returns the approval view of a doctor to any principal with a
// role.
func (s *Service) GetApproval(ctx context.Context, doctorID, callerID id.PrincipalID) (models.ApprovalView, error) {
	if err := s.authorizer.Require(ctx, callerID, authz.ActionViewDoctorApproval); err != nil {
		return models.ApprovalView{}, err
	}
	profile, err := s.profiles.FindByID(ctx, doctorID)
	if err != nil {
		return models.ApprovalView{}, translateErr(err)
	}
	return profile.View(), nil
}

func (s *Service) incDecision(decision, result string) {
	if s.metrics != nil {
		s.metrics.IncDecision(decision, result)
	}
}

func translateErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonNotFound, "doctor not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonConflict, "doctor profile changed concurrently")
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonInvalidTransition, "decision not allowed in current state")
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record doctor decision")
}
