// Package scheduler drives deadlines: it escalates overdue transactions,
// dispatches reminders ahead of each deadline and runs periodic sweeps.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/scheduler/metrics"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/timeout"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	dErrors "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain-errors"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/requestcontext"
)

// Coordinator is the part of the transaction coordinator the scheduler drives.
type Coordinator interface {
	ListActive(ctx context.Context) ([]*models.Transaction, error)
	Timeout(ctx context.Context, id domain.TransactionID) (*models.Transaction, bool, error)
}

// DisputeOpener opens an automatic dispute when the final reminder passes
// without the receiver confirming.
type DisputeOpener func(ctx context.Context, tx *models.Transaction) error

// Sweeper runs once per cycle after deadlines and reminders.
type Sweeper func(ctx context.Context, now time.Time) error

type namedSweeper struct {
	name string
	fn   Sweeper
}

type tracked struct {
	tx       *models.Transaction
	schedule *timeout.Schedule
}

// CycleReport summarizes what one cycle did.
type CycleReport struct {
	Tracked   int
	Dropped   int
	Timeouts  int
	Reminders int
	Disputes  int
}

type Scheduler struct {
	coordinator Coordinator
	policy      *timeout.Policy
	interval    time.Duration

	mu      sync.Mutex
	working map[domain.TransactionID]*tracked

	opener   DisputeOpener
	sweepers []namedSweeper

	events  events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) {
		s.events = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithDisputeOpener sets the hook called when a final reminder fires for a
// transaction still waiting on receipt.
func WithDisputeOpener(fn DisputeOpener) Option {
	return func(s *Scheduler) {
		s.opener = fn
	}
}

// WithSweeper registers a sweep run at the end of every cycle.
func WithSweeper(name string, fn Sweeper) Option {
	return func(s *Scheduler) {
		s.sweepers = append(s.sweepers, namedSweeper{name: name, fn: fn})
	}
}

func New(coordinator Coordinator, policy *timeout.Policy, opts ...Option) (*Scheduler, error) {
	if coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	if policy == nil {
		return nil, errors.New("timeout policy is required")
	}
	s := &Scheduler{
		coordinator: coordinator,
		policy:      policy,
		interval:    time.Minute,
		working:     make(map[domain.TransactionID]*tracked),
		events:      events.Nop{},
		logger:      slog.Default(),
		tracer:      otel.Tracer("github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/scheduler"),
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load replaces the working set with the store's non-terminal transactions.
func (s *Scheduler) Load(ctx context.Context) error {
	txs, err := s.coordinator.ListActive(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working = make(map[domain.TransactionID]*tracked, len(txs))
	for _, tx := range txs {
		s.working[tx.ID] = &tracked{tx: tx}
	}
	s.metrics.SetWorkingSet(len(s.working))
	return nil
}

// HandleEvent keeps the working set current from transition events.
func (s *Scheduler) HandleEvent(_ context.Context, e events.Event) error {
	te, ok := e.(events.TransitionEvent)
	if !ok || te.Transaction == nil {
		return nil
	}
	s.track(te.Transaction)
	return nil
}

func (s *Scheduler) track(tx *models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.State.IsTerminal() {
		delete(s.working, tx.ID)
	} else if t, ok := s.working[tx.ID]; ok {
		if tx.Version >= t.tx.Version {
			t.tx = tx
		}
	} else {
		s.working[tx.ID] = &tracked{tx: tx}
	}
	s.metrics.SetWorkingSet(len(s.working))
}

func (s *Scheduler) untrack(id domain.TransactionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.working, id)
	s.metrics.SetWorkingSet(len(s.working))
}

// Tracked reports how many transactions are in the working set.
func (s *Scheduler) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.working)
}

// Run loads the working set and runs a cycle every interval until ctx is
// cancelled or Stop is called. Cycles run on this goroutine and never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "scheduler started",
		"interval", s.interval.String(),
		"tracked", s.Tracked(),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped", "reason", ctx.Err().Error())
			return nil
		case <-s.stop:
			s.logger.InfoContext(ctx, "scheduler stopped", "reason", "stop requested")
			return nil
		case <-ticker.C:
			start := time.Now()
			if _, err := s.RunCycle(ctx); err != nil {
				s.logger.ErrorContext(ctx, "scheduler cycle failed", "error", err)
			}
			if elapsed := time.Since(start); elapsed > s.interval {
				skipped := int(elapsed / s.interval)
				s.metrics.AddSkippedTicks(skipped)
				s.logger.WarnContext(ctx, "scheduler cycle overran its interval",
					"elapsed", elapsed.String(),
					"skipped_ticks", skipped,
				)
			}
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// RunCycle performs one pass over the working set: drop terminal entries,
// escalate overdue ones, dispatch due reminders, then run the sweepers.
func (s *Scheduler) RunCycle(ctx context.Context) (report CycleReport, err error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.RunCycle")
	defer func() {
		span.SetAttributes(
			attribute.Int("twocheck.scheduler.tracked", report.Tracked),
			attribute.Int("twocheck.scheduler.timeouts", report.Timeouts),
			attribute.Int("twocheck.scheduler.reminders", report.Reminders),
		)
		span.End()
	}()

	start := time.Now()
	defer func() { s.metrics.ObserveCycle(time.Since(start)) }()

	now := s.clock(ctx)
	for _, e := range s.snapshot() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Tracked++
		tx := e.tx

		if tx.State.IsTerminal() {
			s.untrack(tx.ID)
			report.Dropped++
			continue
		}

		if tx.State != models.StateEscalated && !now.Before(tx.TimeoutAt) {
			updated, changed, err := s.coordinator.Timeout(ctx, tx.ID)
			switch {
			case dErrors.HasCode(err, dErrors.CodeNotFound):
				s.untrack(tx.ID)
				report.Dropped++
			case err != nil:
				s.logger.ErrorContext(ctx, "timeout escalation failed",
					"transaction_id", tx.ID.String(),
					"error", err,
				)
			default:
				if changed {
					report.Timeouts++
					s.metrics.IncrementTimeout()
				}
				s.track(updated)
			}
			continue
		}

		sent, opened := s.remind(ctx, e.t, now)
		report.Reminders += sent
		report.Disputes += opened
	}

	for _, sw := range s.sweepers {
		if err := sw.fn(ctx, now); err != nil {
			s.logger.ErrorContext(ctx, "sweeper failed",
				"sweeper", sw.name,
				"error", err,
			)
		}
	}
	return report, nil
}

type snapshotEntry struct {
	tx *models.Transaction
	t  *tracked
}

// snapshot copies the working set, including each entry's current record, so
// the coordinator can be called without holding the scheduler lock.
func (s *Scheduler) snapshot() []snapshotEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]snapshotEntry, 0, len(s.working))
	for _, t := range s.working {
		out = append(out, snapshotEntry{tx: t.tx, t: t})
	}
	return out
}

// remind publishes due reminders for t and reports how many were sent and
// whether an automatic dispute was requested.
func (s *Scheduler) remind(ctx context.Context, t *tracked, now time.Time) (sent, opened int) {
	s.mu.Lock()
	tx := t.tx
	if !t.schedule.Matches(tx) {
		t.schedule = s.policy.BuildSchedule(tx)
	}
	due := t.schedule.Due(now)
	reminders := make([]timeout.Reminder, 0, len(due))
	for _, r := range due {
		r.Sent = true
		reminders = append(reminders, *r)
	}
	s.mu.Unlock()

	for _, r := range reminders {
		s.events.Publish(ctx, events.ReminderEvent{
			TransactionID: tx.ID,
			Name:          r.Name,
			Recipients:    r.Recipients,
			State:         tx.State,
			TimeoutAt:     tx.TimeoutAt,
			Final:         r.Final,
			Urgency:       urgency(r, tx.TimeoutAt),
			At:            now,
		})
		s.metrics.IncrementReminder(r.Name)
		s.logger.InfoContext(ctx, "reminder dispatched",
			"transaction_id", tx.ID.String(),
			"reminder", r.Name,
			"state", string(tx.State),
		)
		sent++

		if r.Final && tx.State == models.StateSent && s.opener != nil {
			if err := s.opener(ctx, tx); err != nil {
				s.logger.ErrorContext(ctx, "automatic dispute failed",
					"transaction_id", tx.ID.String(),
					"error", err,
				)
				continue
			}
			opened++
		}
	}
	return sent, opened
}

func urgency(r timeout.Reminder, deadline time.Time) events.Urgency {
	switch left := deadline.Sub(r.At); {
	case r.Final:
		return events.UrgencyCritical
	case left <= 12*time.Hour:
		return events.UrgencyHigh
	default:
		return events.UrgencyNormal
	}
}

func (s *Scheduler) clock(ctx context.Context) time.Time {
	if t, ok := requestcontext.Now(ctx); ok {
		return t
	}
	return s.now()
}
