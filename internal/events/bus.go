package events

import (
	"context"
	"log/slog"
	"sync"
)

// Handler reacts to one event. Errors are logged by the bus and never reach
// the publisher.
type Handler func(ctx context.Context, e Event) error

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type subscription struct {
	name  string
	kinds map[Kind]struct{}
	fn    Handler
}

// Bus dispatches events synchronously to handlers in registration order.
// Handlers run on the publisher's goroutine, so they must not call back into
// the coordinator for the transaction being published.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

type Option func(*Bus)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn for the given kinds; no kinds means every event.
func (b *Bus) Subscribe(name string, fn Handler, kinds ...Kind) {
	sub := subscription{name: name, fn: fn}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
}

// Publish delivers e to every matching handler before returning. Handlers
// may publish further events.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.kinds != nil {
			if _, ok := sub.kinds[e.Kind()]; !ok {
				continue
			}
		}
		if err := sub.fn(ctx, e); err != nil {
			b.logger.WarnContext(ctx, "event handler failed",
				"handler", sub.name,
				"kind", string(e.Kind()),
				"error", err,
			)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
