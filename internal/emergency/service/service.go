// Package service implements the emergency-stop guard. Stops halt
// transactions by escalating them under the coordinator's per-transaction
// lock; halted transactions reject every transition until resumed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/anomaly"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/metrics"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/emergency/store"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/config"
	txmodels "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	txservice "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/service"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	dErrors "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain-errors"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/keylock"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/requestcontext"
)

// Coordinator is the part of the transaction coordinator the guard drives.
type Coordinator interface {
	Get(ctx context.Context, id domain.TransactionID) (*txmodels.Transaction, error)
	ListActive(ctx context.Context) ([]*txmodels.Transaction, error)
	Halt(ctx context.Context, id domain.TransactionID, actor domain.Actor, reason string, mark txservice.MarkFunc) (*txmodels.Transaction, error)
	Reinstate(ctx context.Context, id domain.TransactionID, actor domain.Actor, reason string) (*txmodels.Transaction, error)
}

// TriggerRequest names the transactions to halt. No ids means every
// non-terminal transaction.
type TriggerRequest struct {
	Reason         string
	Severity       models.Severity
	TransactionIDs []domain.TransactionID
}

type Service struct {
	store       store.Store
	coordinator Coordinator
	detector    anomaly.Detector
	cfg         config.EmergencyConfig
	approved    []domain.Role
	locks       *keylock.Map[domain.StopID]

	events  events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithDetector(d anomaly.Detector) Option {
	return func(s *Service) {
		s.detector = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(st store.Store, coordinator Coordinator, cfg config.EmergencyConfig, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("emergency store is required")
	}
	if coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	s := &Service{
		store:       st,
		coordinator: coordinator,
		detector:    anomaly.Nop{},
		cfg:         cfg,
		locks:       keylock.New[domain.StopID](),
		events:      events.Nop{},
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, r := range cfg.ApprovedRoles {
		s.approved = append(s.approved, domain.Role(r))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Trigger starts a manual stop. When a halt fails part way, the stop is
// persisted with the transactions it already holds and returned with the error.
func (s *Service) Trigger(ctx context.Context, actor domain.Actor, req TriggerRequest) (*models.Stop, error) {
	if !actor.System && !actor.HasAnyRole(s.approved) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "triggering an emergency stop requires an approved role")
	}
	severity := req.Severity
	if severity == "" {
		severity = models.SeverityHigh
	}
	if _, err := models.ParseSeverity(string(severity)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a reason is required")
	}

	ids := req.TransactionIDs
	if len(ids) == 0 {
		active, err := s.coordinator.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		for _, tx := range active {
			ids = append(ids, tx.ID)
		}
	} else {
		for _, id := range ids {
			if _, err := s.coordinator.Get(ctx, id); err != nil {
				return nil, err
			}
		}
	}
	return s.trigger(ctx, actor, models.TriggerManual, severity, req.Reason, ids)
}

func (s *Service) trigger(ctx context.Context, actor domain.Actor, trigger models.Trigger, severity models.Severity, reason string, ids []domain.TransactionID) (*models.Stop, error) {
	now := s.clock(ctx)
	stop := &models.Stop{
		ID:        domain.NewStopID(),
		Trigger:   trigger,
		Reason:    reason,
		Actor:     domain.PartyID(actor.ID()),
		Severity:  severity,
		Status:    models.StatusActive,
		CreatedAt: now,
	}
	unlock := s.locks.Lock(stop.ID)
	defer unlock()

	if err := s.store.Create(ctx, stop); err != nil {
		return nil, translate(err, "failed to persist stop")
	}

	haltReason := fmt.Sprintf("emergency stop %s: %s", stop.ID, reason)
	for _, id := range slices.Compact(slices.Clone(ids)) {
		_, err := s.coordinator.Halt(ctx, id, actor, haltReason, func(ctx context.Context, tx *txmodels.Transaction) error {
			wasEscalated, err := s.escalatedBeforeHalt(ctx, tx)
			if err != nil {
				return err
			}
			if err := s.store.MarkHalted(ctx, stop.ID, tx.ID); err != nil {
				return err
			}
			stop.Hold(models.HaltedTransaction{
				TransactionID: tx.ID,
				Sender:        tx.Sender,
				Receiver:      tx.Receiver,
				WasEscalated:  wasEscalated,
				At:            now,
			})
			return nil
		})
		switch {
		case dErrors.HasCode(err, dErrors.CodeInvalidTransition), dErrors.HasCode(err, dErrors.CodeNotFound):
			// finished or vanished since the id list was taken
			s.logger.InfoContext(ctx, "transaction skipped by emergency stop",
				"stop_id", stop.ID.String(),
				"transaction_id", id.String(),
				"reason", err.Error(),
			)
		case err != nil:
			return s.abandon(ctx, stop, err)
		}
	}

	if s.cfg.PartyLevelHalt {
		for _, p := range stop.Parties() {
			if err := s.store.MarkParty(ctx, stop.ID, p); err != nil {
				return s.abandon(ctx, stop, translate(err, "failed to mark halted party"))
			}
			stop.HaltedParties = append(stop.HaltedParties, p)
		}
	}
	if err := s.store.Update(ctx, stop); err != nil {
		return nil, translate(err, "failed to persist stop")
	}

	s.metrics.IncrementTriggered(string(trigger), len(stop.Halted))
	s.logger.WarnContext(ctx, "emergency stop triggered",
		"stop_id", stop.ID.String(),
		"trigger", string(trigger),
		"severity", string(severity),
		"actor", actor.ID(),
		"halted", len(stop.Halted),
	)
	s.events.Publish(ctx, events.StopEvent{
		StopID:     stop.ID,
		Trigger:    string(trigger),
		Severity:   string(severity),
		Reason:     reason,
		Actor:      stop.Actor,
		Affected:   slices.Clone(stop.Affected),
		Recipients: stop.Parties(),
		At:         now,
	})
	return stop, nil
}

// abandon persists whatever stop already holds after a failed trigger, so
// every transaction marked halted stays releasable through Resume. The
// partial stop is returned alongside cause.
func (s *Service) abandon(ctx context.Context, stop *models.Stop, cause error) (*models.Stop, error) {
	s.logger.ErrorContext(ctx, "emergency stop incomplete",
		"stop_id", stop.ID.String(),
		"halted", len(stop.Halted),
		"error", cause,
	)
	if err := s.store.Update(ctx, stop); err != nil {
		return nil, errors.Join(cause, translate(err, "failed to persist partial stop"))
	}
	if len(stop.Halted) > 0 {
		s.metrics.IncrementTriggered(string(stop.Trigger), len(stop.Halted))
	}
	return stop, cause
}

// escalatedBeforeHalt reports whether tx was escalated on its own account.
// A transaction already held by another stop inherits that stop's record.
func (s *Service) escalatedBeforeHalt(ctx context.Context, tx *txmodels.Transaction) (bool, error) {
	if tx.State != txmodels.StateEscalated {
		return false, nil
	}
	halted, err := s.store.IsHalted(ctx, tx.ID)
	if err != nil || !halted {
		return true, err
	}
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return false, err
	}
	for _, other := range active {
		if h, ok := other.Held(tx.ID); ok {
			return h.WasEscalated, nil
		}
	}
	return true, nil
}

// Screen evaluates the automatic triggers for a new transaction and halts it
// when any of them fires.
func (s *Service) Screen(ctx context.Context, tx *txmodels.Transaction) error {
	var (
		assessment  anomaly.Assessment
		propagation []domain.StopID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.detector.Assess(gctx, tx)
		if err != nil {
			return fmt.Errorf("anomaly assessment: %w", err)
		}
		assessment = a
		return nil
	})
	if s.cfg.BlacklistCheck {
		g.Go(func() error {
			active, err := s.store.ListActive(gctx)
			if err != nil {
				return fmt.Errorf("list active stops: %w", err)
			}
			for _, stop := range active {
				if stop.Involves(tx.Sender) || stop.Involves(tx.Receiver) {
					propagation = append(propagation, stop.ID)
				}
			}
			return nil
		})
	}
	screenErr := g.Wait()
	if screenErr != nil {
		s.metrics.IncrementScreeningFailure()
	}

	var (
		reasons  []string
		trigger  models.Trigger
		severity models.Severity
	)
	if s.cfg.MaxValue > 0 && tx.Value > s.cfg.MaxValue {
		reasons = append(reasons, fmt.Sprintf("value %.2f exceeds %.2f", tx.Value, s.cfg.MaxValue))
		trigger, severity = models.TriggerAutomaticThreshold, models.SeverityCritical
	}
	if s.cfg.RiskScoreThreshold > 0 && assessment.RiskScore >= s.cfg.RiskScoreThreshold {
		reasons = append(reasons, fmt.Sprintf("risk score %.2f at or above %.2f", assessment.RiskScore, s.cfg.RiskScoreThreshold))
		reasons = append(reasons, assessment.Reasons...)
		if trigger == "" {
			trigger, severity = models.TriggerAnomaly, models.SeverityHigh
		}
	}
	if len(propagation) > 0 {
		reasons = append(reasons, fmt.Sprintf("party shared with active stop %s", propagation[0]))
		if trigger == "" {
			trigger, severity = models.TriggerPropagation, models.SeverityMedium
		}
	}
	if trigger == "" {
		return screenErr
	}

	if _, err := s.trigger(ctx, domain.System(), trigger, severity, strings.Join(reasons, "; "), []domain.TransactionID{tx.ID}); err != nil {
		return errors.Join(screenErr, err)
	}
	return screenErr
}

// Resume releases the named transactions (all of them when none are named).
// A released transaction no longer held by any stop is reinstated; the stop
// is cleared once it holds nothing.
func (s *Service) Resume(ctx context.Context, stopID domain.StopID, actor domain.Actor, ids ...domain.TransactionID) (*models.Stop, error) {
	if s.cfg.ResumeRequiresApproval && !actor.System && !actor.HasAnyRole(s.approved) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "resuming an emergency stop requires an approved role")
	}
	unlock := s.locks.Lock(stopID)
	defer unlock()

	stop, err := s.store.Get(ctx, stopID)
	if err != nil {
		return nil, translate(err, "failed to load stop")
	}
	if !stop.IsActive() {
		return stop, nil
	}
	if len(ids) == 0 {
		for _, h := range stop.Halted {
			ids = append(ids, h.TransactionID)
		}
	}
	for _, id := range ids {
		if !stop.Holds(id) && !slices.Contains(stop.Affected, id) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("transaction %s is not part of stop %s", id, stopID))
		}
	}

	var released []models.HaltedTransaction
	for _, id := range ids {
		h, ok := stop.Release(id)
		if !ok {
			continue
		}
		if err := s.store.UnmarkHalted(ctx, stop.ID, id); err != nil {
			return nil, translate(err, "failed to release transaction")
		}
		released = append(released, h)
	}

	var keep []domain.PartyID
	for _, p := range stop.HaltedParties {
		if stop.Involves(p) {
			keep = append(keep, p)
			continue
		}
		if err := s.store.UnmarkParty(ctx, stop.ID, p); err != nil {
			return nil, translate(err, "failed to release party")
		}
	}
	stop.HaltedParties = keep

	now := s.clock(ctx)
	if len(stop.Halted) == 0 {
		stop.Status = models.StatusCleared
		stop.ClearedAt = &now
	}
	if err := s.store.Update(ctx, stop); err != nil {
		return nil, translate(err, "failed to persist stop")
	}

	resumed := make([]domain.TransactionID, 0, len(released))
	var reinstated []domain.TransactionID
	for _, h := range released {
		resumed = append(resumed, h.TransactionID)
		if h.WasEscalated {
			continue
		}
		_, err := s.coordinator.Reinstate(ctx, h.TransactionID, domain.System(), fmt.Sprintf("emergency stop %s resumed", stop.ID))
		switch {
		case err == nil:
			reinstated = append(reinstated, h.TransactionID)
		case dErrors.HasCode(err, dErrors.CodeHalted), dErrors.HasCode(err, dErrors.CodeInvalidTransition), dErrors.HasCode(err, dErrors.CodeNotFound):
			// still held elsewhere, or finished while halted
			s.logger.InfoContext(ctx, "transaction not reinstated",
				"stop_id", stop.ID.String(),
				"transaction_id", h.TransactionID.String(),
				"reason", err.Error(),
			)
		default:
			return nil, err
		}
	}

	cleared := stop.Status == models.StatusCleared
	s.metrics.RecordResume(len(released), cleared)
	s.logger.InfoContext(ctx, "emergency stop resumed",
		"stop_id", stop.ID.String(),
		"actor", actor.ID(),
		"resumed", len(resumed),
		"reinstated", len(reinstated),
		"cleared", cleared,
	)
	s.events.Publish(ctx, events.ResumeEvent{
		StopID:      stop.ID,
		Actor:       domain.PartyID(actor.ID()),
		Resumed:     resumed,
		Reinstated:  reinstated,
		StopCleared: cleared,
		At:          now,
	})
	return stop, nil
}

func (s *Service) IsHalted(ctx context.Context, id domain.TransactionID) (bool, error) {
	return s.store.IsHalted(ctx, id)
}

// IsPartyHalted is false unless party-level halting is enabled.
func (s *Service) IsPartyHalted(ctx context.Context, party domain.PartyID) (bool, error) {
	if !s.cfg.PartyLevelHalt {
		return false, nil
	}
	return s.store.IsPartyHalted(ctx, party)
}

func (s *Service) ActiveStops(ctx context.Context) ([]*models.Stop, error) {
	stops, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, translate(err, "failed to list stops")
	}
	return stops, nil
}

func (s *Service) Get(ctx context.Context, id domain.StopID) (*models.Stop, error) {
	stop, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to load stop")
	}
	return stop, nil
}

func (s *Service) clock(ctx context.Context) time.Time {
	if t, ok := requestcontext.Now(ctx); ok {
		return t
	}
	return s.now()
}

func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "emergency stop not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "emergency stop already exists")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
