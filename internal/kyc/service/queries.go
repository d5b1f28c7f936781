package service

import (
	"context"
	"errors"

	"healthtrack/internal/authz"
	"healthtrack/internal/kyc/models"
	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
	audit "healthtrack/pkg/platform/audit"
	"healthtrack/pkg/platform/sentinel"
	"healthtrack/pkg/requestcontext"
)

// GetStatus returns the KYC status of principalID as seen by callerID. The
// owner sees the masked document; admins see it unmasked. A principal
// without a document reads as StatusNone.
func (s *Service) GetStatus(ctx context.Context, principalID, callerID id.PrincipalID) (*models.StatusView, error) {
	ctx, span := tracer.Start(ctx, "kyc.GetStatus")
	defer span.End()

	action := authz.ActionViewKycStatus
	if principalID != callerID {
		action = authz.ActionViewAnyKyc
	}
	d, err := s.authorizer.Authorize(ctx, callerID, action)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, authz.DeniedError(d.Reason)
	}

	doc, err := s.documents.FindByPrincipal(ctx, principalID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.StatusView{Status: models.StatusNone}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load kyc document")
	}

	if d.Role != id.RoleAdmin {
		return &models.StatusView{Status: doc.Status, Document: doc.Masked(), Masked: true}, nil
	}
	if principalID != callerID {
		err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			return s.emit(txCtx, audit.Event{
				Timestamp: requestcontext.Now(ctx),
				Subject:   principalID,
				ActorID:   callerID,
				Action:    audit.EventKycDocumentViewed,
				TargetID:  doc.ID.String(),
				Outcome:   string(models.OutcomeSuccess),
				RequestID: requestcontext.RequestID(ctx),
				Device:    requestcontext.Device(ctx),
			})
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record kyc document access")
		}
	}
	return &models.StatusView{Status: doc.Status, Document: doc}, nil
}

// ListPending returns pending documents, oldest first, unmasked for review.
func (s *Service) ListPending(ctx context.Context, adminID id.PrincipalID) ([]*models.KycDocument, error) {
	if err := s.authorizer.Require(ctx, adminID, authz.ActionListPendingKyc); err != nil {
		return nil, err
	}
	docs, err := s.documents.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending kyc documents")
	}
	return docs, nil
}

// ListAudit returns every audit entry for kycID in append order.
func (s *Service) ListAudit(ctx context.Context, kycID id.KycID, adminID id.PrincipalID) ([]*models.AuditEntry, error) {
	if err := s.authorizer.Require(ctx, adminID, authz.ActionViewKycAudit); err != nil {
		return nil, err
	}
	if _, err := s.documents.FindByID(ctx, kycID); err != nil {
		return nil, translateErr(err)
	}
	entries, err := s.documents.ListAudit(ctx, kycID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list kyc audit entries")
	}
	return entries, nil
}
