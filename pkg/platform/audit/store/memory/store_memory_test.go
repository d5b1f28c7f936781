package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "healthtrack/pkg/domain"
	audit "healthtrack/pkg/platform/audit"
)

func appendEvents(t *testing.T, s *InMemoryStore, n int) {
	t.Helper()
	for range n {
		require.NoError(t, s.Append(context.Background(), audit.Event{Subject: id.NewPrincipalID(), Action: audit.EventKycVerified}))
	}
}

func TestMarkPublishedDropsRelayedEntries(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	appendEvents(t, s, 3)

	batch, err := s.ListUnpublished(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	require.NoError(t, s.MarkPublished(ctx, []uuid.UUID{batch[0].ID, batch[1].ID}))
	assert.Equal(t, 1, s.Pending())

	rest, err := s.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotEqual(t, batch[0].ID, rest[0].ID)
	assert.NotEqual(t, batch[1].ID, rest[0].ID)
}

func TestEventsHistoryIsBounded(t *testing.T) {
	s := NewInMemoryStore(WithHistory(4))
	appendEvents(t, s, 10)

	assert.Len(t, s.Events(), 4)
	assert.Equal(t, 10, s.Pending(), "the outbox itself keeps every unrelayed entry")
}

func TestMarkFailedKeepsEntryQueued(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	appendEvents(t, s, 1)

	batch, err := s.ListUnpublished(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, batch[0].ID, assert.AnError))

	rest, err := s.ListUnpublished(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, 1, rest[0].Attempts)
	assert.Equal(t, assert.AnError.Error(), rest[0].LastError)
}
