package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	audit "healthtrack/pkg/platform/audit"
)

// defaultHistory bounds the appended events kept for Events.
const defaultHistory = 1024

// InMemoryStore is an outbox kept in process memory. It serves the relay
// worker when the server runs without Postgres. Published entries are
// dropped and only the most recent events are retained.
type InMemoryStore struct {
	mu      sync.RWMutex
	history int
	events  []audit.Event
	entries []audit.OutboxEntry
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithHistory sets how many appended events Events returns at most.
func WithHistory(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.history = n
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{history: defaultHistory}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.entries = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	payload, err := json.Marshal(audit.NewPayload(uuid.New(), event))
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if over := len(s.events) - s.history; over > 0 {
		s.events = append(s.events[:0:0], s.events[over:]...)
	}
	s.entries = append(s.entries, audit.OutboxEntry{
		ID:            uuid.New(),
		AggregateType: "principal",
		AggregateID:   event.Subject.String(),
		EventType:     string(event.Action),
		Payload:       payload,
		CreatedAt:     event.Timestamp,
	})
	return nil
}

// Events returns the retained events in append order.
func (s *InMemoryStore) Events() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...)
}

// Pending reports how many entries await relay.
func (s *InMemoryStore) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *InMemoryStore) ListUnpublished(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]audit.OutboxEntry{}, s.entries[:n]...), nil
}

// MarkPublished removes relayed entries from the queue.
func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	done := make(map[uuid.UUID]struct{}, len(ids))
	for _, entryID := range ids {
		done[entryID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if _, ok := done[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, entryID uuid.UUID, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == entryID {
			s.entries[i].Attempts++
			if cause != nil {
				s.entries[i].LastError = cause.Error()
			}
			return nil
		}
	}
	return nil
}
