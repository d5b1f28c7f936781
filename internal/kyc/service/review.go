package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"healthtrack/internal/authz"
	"healthtrack/internal/kyc/models"
	"healthtrack/internal/kyc/validation"
	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
	audit "healthtrack/pkg/platform/audit"
	"healthtrack/pkg/platform/sentinel"
	"healthtrack/pkg/requestcontext"
)

type transition struct {
	name         string
	action       models.AuditAction
	deniedAction models.AuditAction
	event        audit.AuditEvent
	deniedEvent  audit.AuditEvent
	target       models.Status
}

var (
	verifyTransition = transition{
		name:         "verify",
		action:       models.AuditActionVerify,
		deniedAction: models.AuditActionVerifyDenied,
		event:        audit.EventKycVerified,
		deniedEvent:  audit.EventKycVerifyDenied,
		target:       models.StatusVerified,
	}
	rejectTransition = transition{
		name:         "reject",
		action:       models.AuditActionReject,
		deniedAction: models.AuditActionRejectDenied,
		event:        audit.EventKycRejected,
		deniedEvent:  audit.EventKycRejectDenied,
		target:       models.StatusRejected,
	}
)

// Verify moves a pending document to verified.
func (s *Service) Verify(ctx context.Context, kycID id.KycID, adminID id.PrincipalID) (*models.KycDocument, error) {
	return s.review(ctx, verifyTransition, kycID, adminID, "")
}

// Reject moves a pending document to rejected with a mandatory reason. The
// rejection is final.
func (s *Service) Reject(ctx context.Context, kycID id.KycID, adminID id.PrincipalID, reason string) (*models.KycDocument, error) {
	return s.review(ctx, rejectTransition, kycID, adminID, reason)
}

func (s *Service) review(ctx context.Context, t transition, kycID id.KycID, adminID id.PrincipalID, reason string) (*models.KycDocument, error) {
	ctx, span := tracer.Start(ctx, "kyc."+t.name)
	defer span.End()
	span.SetAttributes(attribute.String("kyc.id", kycID.String()))
	start := time.Now()
	defer s.observeTransition(start)

	if err := s.authorizer.Require(ctx, adminID, authz.ActionReviewKyc); err != nil {
		s.incTransition(t.name, "forbidden")
		return nil, err
	}
	if t.target == models.StatusRejected {
		var err error
		if reason, err = validation.ValidateRejectionReason(reason); err != nil {
			s.incTransition(t.name, "invalid")
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	var result *models.KycDocument
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var prior models.Status
		doc, err := s.documents.Execute(txCtx, kycID,
			func(doc *models.KycDocument) error {
				prior = doc.Status
				if t.target == models.StatusVerified {
					return doc.CanVerify()
				}
				return doc.CanReject()
			},
			func(doc *models.KycDocument) {
				if t.target == models.StatusVerified {
					doc.ApplyVerify(adminID, now)
					return
				}
				doc.ApplyReject(adminID, reason, now)
			},
		)
		if err != nil {
			return err
		}
		entry := newEntry(txCtx, kycID, adminID, t.action, models.OutcomeSuccess, prior, t.target, reason)
		if err := s.documents.AppendAudit(txCtx, entry); err != nil {
			return err
		}
		if err := s.emit(txCtx, entryEvent(doc, entry, t.event)); err != nil {
			return err
		}
		result = doc
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, t.name+" failed")
		span.RecordError(err)
		if errors.Is(err, sentinel.ErrConflict) || dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			s.incTransition(t.name, "denied")
			if errors.Is(err, sentinel.ErrConflict) && s.metrics != nil {
				s.metrics.IncConflict()
			}
			s.recordDenied(ctx, t, kycID, adminID, reason)
		} else {
			s.incTransition(t.name, "failed")
		}
		return nil, translateErr(err)
	}

	s.incTransition(t.name, "success")
	s.logger.InfoContext(ctx, "kyc document reviewed",
		"kyc_id", kycID,
		"admin_id", adminID,
		"status", result.Status,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

// recordDenied appends the audit entry for a refused transition. It runs in
// its own transaction because the attempt's transaction has been rolled back.
func (s *Service) recordDenied(ctx context.Context, t transition, kycID id.KycID, adminID id.PrincipalID, reason string) {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := s.documents.FindByID(txCtx, kycID)
		if err != nil {
			return err
		}
		entry := newEntry(txCtx, kycID, adminID, t.deniedAction, models.OutcomeDenied, doc.Status, doc.Status, reason)
		if err := s.documents.AppendAudit(txCtx, entry); err != nil {
			return err
		}
		return s.emit(txCtx, entryEvent(doc, entry, t.deniedEvent))
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record denied kyc transition",
			"kyc_id", kycID,
			"admin_id", adminID,
			"action", t.deniedAction,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func translateErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonNotFound, "kyc document not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonConflict, "kyc document was modified concurrently")
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		return dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonInvalidTransition, errMessage(err))
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update kyc document")
	}
}

func errMessage(err error) string {
	if de, ok := dErrors.As(err); ok {
		return de.Message
	}
	return err.Error()
}

func (s *Service) incTransition(action, outcome string) {
	if s.metrics != nil {
		s.metrics.IncTransition(action, outcome)
	}
}

func (s *Service) observeTransition(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(start)
	}
}
