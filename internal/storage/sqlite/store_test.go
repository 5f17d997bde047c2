package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinpayments-webhooks/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	s, err := New(Config{DatabasePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(t *testing.T, s *Store, outcome storage.Outcome, at time.Time) *storage.Notification {
	n := storage.NewNotification(outcome, []byte(`{"id":"x"}`), at)
	n.EventID = "evt_" + n.ID
	n.EventType = "invoicePaid"
	n.EventKind = "client"
	require.NoError(t, s.Record(context.Background(), n))
	return n
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "notifications.db")
	s, err := New(Config{DatabasePath: path})
	require.NoError(t, err)
	require.NoError(t, s.Health(context.Background()))
	require.NoError(t, s.Close())

	// Reopening runs the migration again against the existing schema.
	s, err = New(Config{DatabasePath: path})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := record(t, s, storage.OutcomeAccepted, base)
	second := record(t, s, storage.OutcomeUnauthorized, base.Add(time.Minute))
	third := record(t, s, storage.OutcomeDuplicate, base.Add(2*time.Minute))

	got, err := s.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, third.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)

	all, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, all, 3)

	last := all[2]
	assert.Equal(t, first.ID, last.ID)
	assert.Equal(t, first.EventID, last.EventID)
	assert.Equal(t, "invoicePaid", last.EventType)
	assert.Equal(t, "client", last.EventKind)
	assert.Equal(t, storage.OutcomeAccepted, last.Outcome)
	assert.Equal(t, first.BodySHA256, last.BodySHA256)
	assert.Len(t, last.BodySHA256, 64)
	assert.True(t, base.Equal(last.ReceivedAt))
}

func TestRecord_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	n := record(t, s, storage.OutcomeAccepted, time.Now())
	assert.Error(t, s.Record(context.Background(), n))
}

func TestCountByOutcome(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	record(t, s, storage.OutcomeAccepted, base.Add(-time.Hour))
	record(t, s, storage.OutcomeAccepted, base)
	record(t, s, storage.OutcomeAccepted, base.Add(time.Hour))
	record(t, s, storage.OutcomeUnauthorized, base.Add(time.Hour))

	counts, err := s.CountByOutcome(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[storage.OutcomeAccepted])
	assert.Equal(t, int64(1), counts[storage.OutcomeUnauthorized])
	assert.Equal(t, int64(0), counts[storage.OutcomePublishFailed])
	assert.Len(t, counts, len(storage.Outcomes))
}

func TestPurgeBefore(t *testing.T) {
	s := newTestStore(t)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	record(t, s, storage.OutcomeAccepted, cutoff.Add(-48*time.Hour))
	record(t, s, storage.OutcomeAccepted, cutoff.Add(-time.Nanosecond))
	kept := record(t, s, storage.OutcomeAccepted, cutoff)

	purged, err := s.PurgeBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	rest, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, kept.ID, rest[0].ID)

	purged, err = s.PurgeBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Zero(t, purged)
}
