package service

import (
	"context"
	"errors"
	"time"

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

// Submit validates the fields and creates the principal's only KYC document
// in pending state. A principal with any existing document, including a
// rejected one, gets AlreadySubmitted.
func (s *Service) Submit(ctx context.Context, principalID id.PrincipalID, req models.SubmitRequest) (*models.KycDocument, error) {
	ctx, span := tracer.Start(ctx, "kyc.Submit")
	defer span.End()

	if err := s.authorizer.Require(ctx, principalID, authz.ActionSubmitKyc); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	fields, err := validation.Validate(req.Input(), civilDate(now))
	if err != nil {
		s.incSubmission("invalid")
		return nil, err
	}
	doc, err := models.NewKycDocument(id.NewKycID(), principalID, fields, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.documents.CreateIfAbsent(txCtx, doc); err != nil {
			return err
		}
		return s.emit(txCtx, submittedEvent(txCtx, doc))
	})
	if err != nil {
		span.SetStatus(codes.Error, "submit failed")
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			s.incSubmission("duplicate")
			return nil, dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonAlreadySubmitted, "kyc document already submitted")
		}
		s.incSubmission("failed")
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit kyc document")
	}

	s.incSubmission("created")
	s.logger.InfoContext(ctx, "kyc document submitted",
		"kyc_id", doc.ID,
		"principal_id", principalID,
		"document_type", doc.DocumentType,
		"request_id", requestcontext.RequestID(ctx),
	)
	return doc.Masked(), nil
}

// civilDate drops the clock so the age bounds compare calendar days.
func civilDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newEntry(ctx context.Context, kycID id.KycID, actor id.PrincipalID, action models.AuditAction,
	outcome models.Outcome, prior, next models.Status, reason string) *models.AuditEntry {
	return &models.AuditEntry{
		ID:          id.NewAuditEntryID(),
		KycID:       kycID,
		ActorID:     actor,
		Action:      action,
		Outcome:     outcome,
		PriorStatus: prior,
		NewStatus:   next,
		Reason:      reason,
		Device:      requestcontext.Device(ctx),
		RequestID:   requestcontext.RequestID(ctx),
		OccurredAt:  requestcontext.Now(ctx),
	}
}

// submittedEvent traces a submission in the compliance stream only. The KYC
// audit log holds admin actions.
func submittedEvent(ctx context.Context, doc *models.KycDocument) audit.Event {
	return audit.Event{
		Timestamp:   doc.SubmittedAt,
		Subject:     doc.PrincipalID,
		ActorID:     doc.PrincipalID,
		Action:      audit.EventKycSubmitted,
		TargetID:    doc.ID.String(),
		Outcome:     string(models.OutcomeSuccess),
		PriorStatus: string(models.StatusNone),
		NewStatus:   string(models.StatusPending),
		RequestID:   requestcontext.RequestID(ctx),
		Device:      requestcontext.Device(ctx),
	}
}

func entryEvent(doc *models.KycDocument, entry *models.AuditEntry, action audit.AuditEvent) audit.Event {
	return audit.Event{
		Timestamp:   entry.OccurredAt,
		Subject:     doc.PrincipalID,
		ActorID:     entry.ActorID,
		Action:      action,
		TargetID:    doc.ID.String(),
		Outcome:     string(entry.Outcome),
		Reason:      entry.Reason,
		PriorStatus: string(entry.PriorStatus),
		NewStatus:   string(entry.NewStatus),
		RequestID:   entry.RequestID,
		Device:      entry.Device,
	}
}

func (s *Service) incSubmission(result string) {
	if s.metrics != nil {
		s.metrics.IncSubmission(result)
	}
}
