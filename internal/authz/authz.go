// Package authz is the single decision point for protected operations. It
// resolves role and doctor approval from the source of truth on every call
// and never caches a decision.
package authz

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	id "healthtrack/pkg/domain"
	dErrors "healthtrack/pkg/domain-errors"
	audit "healthtrack/pkg/platform/audit"
	"healthtrack/pkg/platform/sentinel"
	"healthtrack/pkg/requestcontext"
)

// RoleSource returns the stored role of a principal, or sentinel.ErrNotFound.
type RoleSource interface {
	RoleOf(ctx context.Context, principalID id.PrincipalID) (id.Role, error)
}

// ApprovalSource reports whether a doctor's profile is approved. A doctor
// without a profile is not approved.
type ApprovalSource interface {
	IsApproved(ctx context.Context, doctorID id.PrincipalID) (bool, error)
}

// Decision is the outcome of one authorization check.
type Decision struct {
	Allowed bool
	Reason  dErrors.Reason
	Role    id.Role
}

func allow(role id.Role) Decision { return Decision{Allowed: true, Role: role} }

func deny(role id.Role, reason dErrors.Reason) Decision {
	return Decision{Reason: reason, Role: role}
}

// Authorizer composes the role resolver and the doctor approval gate.
type Authorizer struct {
	roles     RoleSource
	approvals ApprovalSource
	logger    *slog.Logger
	metrics   *Metrics
	security  audit.Store
}

type Option func(*Authorizer)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Authorizer) {
		a.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(a *Authorizer) {
		a.metrics = m
	}
}

// WithSecurityAudit records denials in the audit outbox as security events.
func WithSecurityAudit(store audit.Store) Option {
	return func(a *Authorizer) {
		a.security = store
	}
}

func New(roles RoleSource, approvals ApprovalSource, opts ...Option) *Authorizer {
	a := &Authorizer{roles: roles, approvals: approvals, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var tracer = otel.Tracer("healthtrack/authz")

// Authorize decides whether principalID may perform action. Errors are
// returned only for infrastructure failures; the caller must then deny.
func (a *Authorizer) Authorize(ctx context.Context, principalID id.PrincipalID, action Action) (Decision, error) {
	ctx, span := tracer.Start(ctx, "authz.Authorize")
	defer span.End()
	span.SetAttributes(attribute.String("authz.action", string(action)))

	protection, ok := action.Protection()
	if !ok {
		return Decision{}, dErrors.New(dErrors.CodeInternal, "unknown action")
	}
	if principalID.IsNil() {
		d := deny("", dErrors.ReasonNoRole)
		a.record(ctx, principalID, action, d)
		return d, nil
	}

	role, err := a.roles.RoleOf(ctx, principalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			d := deny("", dErrors.ReasonNoRole)
			a.record(ctx, principalID, action, d)
			return d, nil
		}
		span.RecordError(err)
		return Decision{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve role")
	}

	d, err := a.decide(ctx, principalID, role, protection)
	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}
	span.SetAttributes(attribute.Bool("authz.allowed", d.Allowed), attribute.String("authz.role", string(role)))
	a.record(ctx, principalID, action, d)
	return d, nil
}

func (a *Authorizer) decide(ctx context.Context, principalID id.PrincipalID, role id.Role, protection Protection) (Decision, error) {
	switch role {
	case id.RoleAdmin:
		switch protection {
		case ProtectionAuthenticated, ProtectionAdmin:
			return allow(role), nil
		default:
			return deny(role, dErrors.ReasonWrongRole), nil
		}
	case id.RolePatient:
		switch protection {
		case ProtectionAuthenticated, ProtectionPatient:
			return allow(role), nil
		default:
			return deny(role, dErrors.ReasonWrongRole), nil
		}
	case id.RoleDoctor:
		switch protection {
		case ProtectionAuthenticated:
			return allow(role), nil
		case ProtectionDoctor:
			approved, err := a.approvals.IsApproved(ctx, principalID)
			if err != nil {
				return Decision{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve doctor approval")
			}
			if !approved {
				return deny(role, dErrors.ReasonApprovalPending), nil
			}
			return allow(role), nil
		default:
			return deny(role, dErrors.ReasonWrongRole), nil
		}
	default:
		return deny(role, dErrors.ReasonNoRole), nil
	}
}

// Require returns nil when allowed and a forbidden error carrying the
// denial reason otherwise.
func (a *Authorizer) Require(ctx context.Context, principalID id.PrincipalID, action Action) error {
	d, err := a.Authorize(ctx, principalID, action)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return DeniedError(d.Reason)
	}
	return nil
}

// DeniedError builds the forbidden error for reason.
func DeniedError(reason dErrors.Reason) error {
	return dErrors.NewReason(dErrors.CodeForbidden, reason, "permission denied")
}

func (a *Authorizer) record(ctx context.Context, principalID id.PrincipalID, action Action, d Decision) {
	if a.metrics != nil {
		a.metrics.ObserveDecision(action, d)
	}
	if d.Allowed {
		return
	}
	a.logger.WarnContext(ctx, "authorization denied",
		"principal_id", principalID,
		"action", action,
		"reason", d.Reason,
		"role", d.Role,
		"request_id", requestcontext.RequestID(ctx),
	)
	if a.security == nil || principalID.IsNil() {
		return
	}
	err := a.security.Append(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Subject:   principalID,
		ActorID:   principalID,
		Action:    audit.EventAuthorizationDenied,
		TargetID:  string(action),
		Outcome:   outcomeDenied,
		Reason:    string(d.Reason),
		RequestID: requestcontext.RequestID(ctx),
		Device:    requestcontext.Device(ctx),
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to record authorization denial", "error", err)
	}
}

const outcomeDenied = "denied"
