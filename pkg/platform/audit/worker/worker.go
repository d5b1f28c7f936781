// Package worker relays outbox entries to the audit event stream.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "healthtrack/pkg/platform/audit"
)

// Publisher delivers one outbox entry downstream.
type Publisher interface {
	Publish(ctx context.Context, entry audit.OutboxEntry) error
}

// Worker polls the outbox, publishes each unpublished entry and marks the
// batch as relayed. Failed entries stay in the outbox with their attempt
// counter incremented.
type Worker struct {
	outbox    audit.Outbox
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(outbox audit.Outbox, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		publisher: publisher,
		logger:    slog.Default(),
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox relay batch failed", "error", err)
			}
		}
	}
}

// ProcessBatch relays one batch and returns how many entries were published.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	entries, err := w.outbox.ListUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	published := make([]uuid.UUID, 0, len(entries))
	var failed error
	for _, entry := range entries {
		if err := w.publisher.Publish(ctx, entry); err != nil {
			w.logger.WarnContext(ctx, "outbox entry publish failed",
				"entry_id", entry.ID,
				"event_type", entry.EventType,
				"attempts", entry.Attempts+1,
				"error", err,
			)
			if markErr := w.outbox.MarkFailed(ctx, entry.ID, err); markErr != nil {
				failed = errors.Join(failed, markErr)
			}
			continue
		}
		published = append(published, entry.ID)
	}

	if err := w.outbox.MarkPublished(ctx, published); err != nil {
		return 0, errors.Join(failed, err)
	}
	return len(published), failed
}

// LogPublisher writes entries to the logger. Used when no broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, entry audit.OutboxEntry) error {
	p.Logger.InfoContext(ctx, "audit event relayed",
		"entry_id", entry.ID,
		"event_type", entry.EventType,
		"aggregate_id", entry.AggregateID,
	)
	return nil
}
