package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "healthtrack/pkg/platform/audit"
	txcontext "healthtrack/pkg/platform/tx"
)

// maxAttempts bounds how often the relay retries a poisoned entry.
const maxAttempts = 10

// claimLease is how long a claimed batch is hidden from other relays. A relay
// that dies mid-batch releases its rows when the lease runs out.
const claimLease = 30 * time.Second

// Store implements audit.Store and audit.Outbox using the transactional
// outbox pattern. Events are written to the outbox table in the caller's
// transaction and relayed to Kafka by the outbox worker.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	payloadBytes, err := json.Marshal(audit.NewPayload(eventID, event))
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	createdAt := event.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		eventID,
		"principal",
		event.Subject.String(),
		string(event.Action),
		payloadBytes,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListUnpublished claims the oldest entries not yet relayed. Claimed rows are
// leased to the caller, so concurrent relays receive disjoint batches.
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]audit.OutboxEntry, error) {
	query := `
		UPDATE outbox SET claimed_until = $3
		WHERE id IN (
			SELECT id FROM outbox
			WHERE published_at IS NULL AND attempts < $1
			  AND (claimed_until IS NULL OR claimed_until < $4)
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, aggregate_type, aggregate_id, event_type, payload, created_at, attempts, COALESCE(last_error, '')
	`
	now := s.now()
	rows, err := s.db.QueryContext(ctx, query, maxAttempts, limit, now.Add(claimLease), now)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []audit.OutboxEntry
	for rows.Next() {
		var e audit.OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.Attempts, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

// MarkPublished flags a batch of entries as relayed in one statement.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strIDs := make([]string, len(ids))
	for i, entryID := range ids {
		strIDs[i] = entryID.String()
	}

	query := `UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`
	if _, err := s.db.ExecContext(ctx, query, s.now(), pq.Array(strIDs)); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// MarkFailed records a failed relay attempt and releases the claim so the
// next poll retries it.
func (s *Store) MarkFailed(ctx context.Context, entryID uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	query := `UPDATE outbox SET attempts = attempts + 1, last_error = $2, claimed_until = NULL WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, entryID, msg); err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
