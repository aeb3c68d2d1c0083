//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpass/internal/audit"
	"certpass/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()
	store := audit.NewPostgresStore(pc.DB)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := func(offset time.Duration) audit.Event {
		return audit.Event{
			ID:        uuid.New(),
			Timestamp: base.Add(offset),
			Action:    audit.ActionScanVerified,
			Result:    "success",
			Country:   "DE",
			EntryKind: "vaccination",
			UVCIHash:  audit.HashUVCI("URN:UVCI:01DE/IZ12345A/ABC"),
			RequestID: uuid.NewString(),
		}
	}

	t.Run("append and list newest first", func(t *testing.T) {
		require.NoError(t, pc.TruncateTables(ctx, "scan_events"))

		oldest := event(0)
		newest := event(2 * time.Minute)
		middle := event(time.Minute)
		for _, e := range []audit.Event{oldest, newest, middle} {
			require.NoError(t, store.Append(ctx, e))
		}

		events, err := store.ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, newest.ID, events[0].ID)
		assert.Equal(t, middle.ID, events[1].ID)
		assert.Equal(t, oldest.ID, events[2].ID)
	})

	t.Run("limit caps the result", func(t *testing.T) {
		require.NoError(t, pc.TruncateTables(ctx, "scan_events"))
		for i := 0; i < 5; i++ {
			require.NoError(t, store.Append(ctx, event(time.Duration(i)*time.Second)))
		}

		events, err := store.ListRecent(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("replayed event does not duplicate", func(t *testing.T) {
		require.NoError(t, pc.TruncateTables(ctx, "scan_events"))
		e := event(0)
		require.NoError(t, store.Append(ctx, e))
		require.NoError(t, store.Append(ctx, e))

		events, err := store.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("round trips all fields", func(t *testing.T) {
		require.NoError(t, pc.TruncateTables(ctx, "scan_events"))
		e := audit.Event{
			ID:        uuid.New(),
			Timestamp: base,
			Action:    audit.ActionScanRejected,
			Result:    "technical_error",
			ErrorCode: "signature",
			Country:   "AT",
			EntryKind: "test",
			UVCIHash:  audit.HashUVCI("URN:UVCI:01AT/T/1"),
			RequestID: "req-1",
		}
		require.NoError(t, store.Append(ctx, e))

		events, err := store.ListRecent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		got := events[0]
		assert.Equal(t, e.ID, got.ID)
		assert.True(t, got.Timestamp.Equal(e.Timestamp))
		assert.Equal(t, e.Action, got.Action)
		assert.Equal(t, e.Result, got.Result)
		assert.Equal(t, e.ErrorCode, got.ErrorCode)
		assert.Equal(t, e.Country, got.Country)
		assert.Equal(t, e.EntryKind, got.EntryKind)
		assert.Equal(t, e.UVCIHash, got.UVCIHash)
		assert.Equal(t, e.RequestID, got.RequestID)
	})
}
