// Package compliance provides a fail-closed audit publisher for regulatory events.
//
// Events are written to the outbox in the caller's transaction and the caller
// blocks until the write succeeds. If the write fails, an error is returned
// and the calling operation MUST fail.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "healthtrack/pkg/platform/audit"
	"healthtrack/pkg/requestcontext"
)

// Publisher emits compliance events with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
// The store must be outbox-backed for guaranteed delivery.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes a compliance event to the outbox. Request ID,
// device and timestamp are filled from ctx when the caller left them empty.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()

	if event.Subject.IsNil() {
		return fmt.Errorf("compliance event requires Subject")
	}
	if event.Action == "" {
		return fmt.Errorf("compliance event requires Action")
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Device == "" {
		event.Device = requestcontext.Device(ctx)
	}

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: compliance audit failed",
				"action", event.Action,
				"subject", event.Subject,
				"request_id", event.RequestID,
				"error", err,
			)
		}
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted(event.Action)
	}
	if p.logger != nil {
		p.logger.InfoContext(ctx, "audit",
			"action", event.Action,
			"subject", event.Subject,
			"actor_id", event.ActorID,
			"outcome", event.Outcome,
			"request_id", event.RequestID,
		)
	}
	return nil
}
