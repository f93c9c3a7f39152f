package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

func TestBus_RegistrationOrderAndFilter(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe("first", func(_ context.Context, e Event) error {
		got = append(got, "first:"+string(e.Kind()))
		return nil
	})
	bus.Subscribe("reminders", func(_ context.Context, e Event) error {
		got = append(got, "reminders")
		return nil
	}, KindReminder)
	bus.Subscribe("failing", func(context.Context, Event) error {
		return errors.New("boom")
	})
	bus.Subscribe("last", func(_ context.Context, e Event) error {
		got = append(got, "last")
		return nil
	})

	bus.Publish(context.Background(), TransitionEvent{To: models.StateCreated})
	bus.Publish(context.Background(), ReminderEvent{Name: "final"})

	assert.Equal(t, []string{
		"first:transition", "last",
		"first:reminder", "reminders", "last",
	}, got)
}

func TestBus_NestedPublish(t *testing.T) {
	bus := NewBus()
	var kinds []Kind
	bus.Subscribe("trust", func(ctx context.Context, e Event) error {
		bus.Publish(ctx, TrustAdjustedEvent{Party: "maison-a"})
		return nil
	}, KindTransition)
	bus.Subscribe("audit", func(_ context.Context, e Event) error {
		kinds = append(kinds, e.Kind())
		return nil
	})

	bus.Publish(context.Background(), TransitionEvent{})
	assert.Equal(t, []Kind{KindTrustAdjusted, KindTransition}, kinds)
}

func TestQueue_FIFOAndDrainOnClose(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	q := NewQueue("notifications", 16, func(_ context.Context, e Event) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		got = append(got, e.(ReminderEvent).Name)
		mu.Unlock()
		return nil
	})

	for _, name := range []string{"first", "second", "final"} {
		require.NoError(t, q.Handle(context.Background(), ReminderEvent{Name: name}))
	}
	q.Close()

	assert.Equal(t, []string{"first", "second", "final"}, got)
	assert.Error(t, q.Handle(context.Background(), ReminderEvent{}))
}

func TestQueue_Full(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("slow", 1, func(context.Context, Event) error {
		<-release
		return nil
	})
	defer func() {
		close(release)
		q.Close()
	}()

	ctx := context.Background()
	ev := ReminderEvent{TransactionID: domain.NewTransactionID()}
	// The worker may already hold the first event; fill until rejected.
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = q.Handle(ctx, ev)
	}
	assert.ErrorIs(t, err, ErrQueueFull)
}
