package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrQueueFull = errors.New("event queue full")

// Queue hands events to a slow collaborator without blocking the publisher.
// A single worker delivers them in FIFO order, so per-transaction ordering
// survives the hop.
type Queue struct {
	name    string
	handler Handler
	logger  *slog.Logger
	ch      chan Event
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type QueueOption func(*Queue)

func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

// NewQueue starts the worker. size bounds the number of pending events.
func NewQueue(name string, size int, handler Handler, opts ...QueueOption) *Queue {
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		name:    name,
		handler: handler,
		logger:  slog.Default(),
		ch:      make(chan Event, size),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Handle enqueues e; it is a bus Handler. A full queue rejects the event.
func (q *Queue) Handle(_ context.Context, e Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errors.New("event queue closed")
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len is the number of events waiting for delivery.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting events and waits until the backlog is delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	ctx := context.Background()
	for e := range q.ch {
		if err := q.handler(ctx, e); err != nil {
			q.logger.WarnContext(ctx, "queued event delivery failed",
				"queue", q.name,
				"kind", string(e.Kind()),
				"error", err,
			)
		}
	}
}
