package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit/store/memory"
)

func transitionEvent(entityID string) audit.Event {
	return audit.Event{
		Actor:    "luxebrand",
		Action:   string(audit.EventTransitionApplied),
		Entity:   audit.EntityTransaction,
		EntityID: entityID,
	}
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), transitionEvent("tx-1")))

	events, err := pub.List(context.Background(), audit.Filter{EntityID: "tx-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventTransitionApplied), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), transitionEvent("tx-2")))
	}
	require.NoError(t, pub.Close())

	events, err := store.List(context.Background(), audit.Filter{EntityID: "tx-2"})
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DoesNotPanic(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), transitionEvent("tx-3"))
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_Timestamps(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("fills missing timestamp from clock", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))
		defer pub.Close()

		require.NoError(t, pub.Emit(context.Background(), transitionEvent("tx-4")))
		events, _ := store.List(context.Background(), audit.Filter{})
		require.Len(t, events, 1)
		assert.Equal(t, fixed, events[0].Timestamp)
	})

	t.Run("preserves existing timestamp", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := NewPublisher(store)
		defer pub.Close()

		custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		event := transitionEvent("tx-5")
		event.Timestamp = custom
		require.NoError(t, pub.Emit(context.Background(), event))

		events, _ := store.List(context.Background(), audit.Filter{})
		require.Len(t, events, 1)
		assert.Equal(t, custom, events[0].Timestamp)
	})
}

func TestFilter(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "a"} {
		e := transitionEvent(id)
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Append(ctx, e))
	}

	events, _ := store.List(ctx, audit.Filter{EntityID: "a"})
	assert.Len(t, events, 2)

	events, _ = store.List(ctx, audit.Filter{Since: base.Add(time.Minute)})
	assert.Len(t, events, 2)

	events, _ = store.List(ctx, audit.Filter{Limit: 1})
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].EntityID)
	assert.Equal(t, base.Add(2*time.Minute), events[0].Timestamp)
}
