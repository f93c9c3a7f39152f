// Package publisher emits audit events to an audit.Store, either synchronously
// or through a bounded buffer drained by a single background goroutine.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit"
)

var ErrBufferFull = errors.New("audit buffer full")

// Publisher is append-only. In async mode events are persisted in emit
// order by one worker; Close drains whatever is buffered.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	now    func() time.Time

	buffer chan audit.Event
	wg     sync.WaitGroup

	mu       sync.RWMutex
	isClosed bool
	closed   chan struct{}
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = make(chan audit.Event, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		now:    time.Now,
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. Missing timestamps are filled and the category is
// derived from the action when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.isClosed {
		return p.store.Append(ctx, event)
	}

	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, dropping event",
				"action", event.Action,
				"entity_id", event.EntityID,
			)
		}
		return ErrBufferFull
	}
}

// List queries the underlying store.
func (p *Publisher) List(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	return p.store.List(ctx, filter)
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.buffer:
			p.persist(event)
		case <-p.closed:
			for {
				select {
				case event := <-p.buffer:
					p.persist(event)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) persist(event audit.Event) {
	if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
		p.logger.Error("failed to persist audit event",
			"action", event.Action,
			"entity_id", event.EntityID,
			"error", err,
		)
	}
}

// Close stops accepting buffered events and waits for the buffer to drain.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.isClosed {
		p.isClosed = true
		close(p.closed)
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}
