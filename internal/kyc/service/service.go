// Package service runs the KYC pipeline: submission, admin review and the
// append-only audit trail.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Authorizer,AuditPublisher

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	"healthtrack/internal/authz"
	kycmetrics "healthtrack/internal/kyc/metrics"
	"healthtrack/internal/kyc/models"
	id "healthtrack/pkg/domain"
	audit "healthtrack/pkg/platform/audit"
	"healthtrack/pkg/platform/tx"
)

type Store interface {
	CreateIfAbsent(ctx context.Context, doc *models.KycDocument) error
	FindByID(ctx context.Context, kycID id.KycID) (*models.KycDocument, error)
	FindByPrincipal(ctx context.Context, principalID id.PrincipalID) (*models.KycDocument, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.KycDocument, error)
	Execute(ctx context.Context, kycID id.KycID, validate func(*models.KycDocument) error, mutate func(*models.KycDocument)) (*models.KycDocument, error)
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
	ListAudit(ctx context.Context, kycID id.KycID) ([]*models.AuditEntry, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, principalID id.PrincipalID, action authz.Action) (authz.Decision, error)
	Require(ctx context.Context, principalID id.PrincipalID, action authz.Action) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	documents      Store
	authorizer     Authorizer
	tx             tx.Runner
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *kycmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *kycmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditPublisher enqueues every audit entry as an outbox event in the
// same transaction. Failure to enqueue fails the operation.
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

func New(documents Store, authorizer Authorizer, opts ...Option) (*Service, error) {
	if documents == nil {
		return nil, errors.New("kyc document store is required")
	}
	if authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	s := &Service{
		documents:  documents,
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

var tracer = otel.Tracer("healthtrack/kyc")

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	return s.auditPublisher.Emit(ctx, event)
}
