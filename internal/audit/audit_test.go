package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certpass/internal/audit"
)

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (s *captureSink) Publish(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestHashUVCI(t *testing.T) {
	assert.Empty(t, audit.HashUVCI(""))
	assert.Len(t, audit.HashUVCI("01DE/ABC/XYZ"), 64)
	assert.Equal(t, audit.HashUVCI("01DE/ABC/XYZ"), audit.HashUVCI("01DE/ABC/XYZ"))
	assert.NotEqual(t, audit.HashUVCI("01DE/ABC/XYZ"), audit.HashUVCI("01DE/ABC/XYW"))
}

func TestMemoryStoreListRecent(t *testing.T) {
	store := audit.NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, audit.Event{
			ID:     uuid.New(),
			Action: audit.ActionScanVerified,
			Result: string(rune('a' + i)),
		}))
	}

	recent, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "e", recent[0].Result)
	assert.Equal(t, "d", recent[1].Result)
}

func TestServiceFillsDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	service := audit.NewService()
	service.Emit(context.Background(), audit.Event{Action: audit.ActionScanRejected})

	select {
	case event := <-service.Inbox():
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.False(t, event.Timestamp.IsZero())
		assert.True(t, event.Timestamp.After(now.Add(-time.Hour)) || event.Timestamp.Equal(now))
	default:
		t.Fatal("expected event in inbox")
	}
}

func TestServiceDropsWhenFull(t *testing.T) {
	var drops int
	service := audit.NewService(
		audit.WithInboxSize(1),
		audit.WithDropCounter(func() { drops++ }),
	)

	service.Emit(context.Background(), audit.Event{Action: audit.ActionScanVerified})
	service.Emit(context.Background(), audit.Event{Action: audit.ActionScanVerified})

	assert.Equal(t, 1, drops)
}

func TestWorkerPersistsAndPublishes(t *testing.T) {
	store := audit.NewMemoryStore()
	sink := &captureSink{}
	service := audit.NewService()
	worker := audit.NewWorker(store, sink, service.Inbox(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	service.Emit(ctx, audit.Event{Action: audit.ActionScanVerified, Result: "success"})

	require.Eventually(t, func() bool {
		return sink.count() == 1
	}, time.Second, 10*time.Millisecond)

	events, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionScanVerified, events[0].Action)

	cancel()
	<-done
}

func TestWorkerSinkFailureDoesNotStopPersistence(t *testing.T) {
	store := audit.NewMemoryStore()
	sink := &captureSink{err: errors.New("broker down")}
	service := audit.NewService()
	worker := audit.NewWorker(store, sink, service.Inbox(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	service.Emit(ctx, audit.Event{Action: audit.ActionSyncFailed})
	service.Emit(ctx, audit.Event{Action: audit.ActionSyncCompleted})

	require.Eventually(t, func() bool {
		events, err := store.ListRecent(ctx, 10)
		return err == nil && len(events) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
