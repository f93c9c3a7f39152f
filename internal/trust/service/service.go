// Package service implements the trust ledger: per-party reputation scores,
// the delta table that moves them and the automation tiers they unlock.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/config"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/metrics"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/store"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	dErrors "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain-errors"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/keylock"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
)

// Service owns every trust score mutation. Adjustments for one party are
// serialized; different parties proceed in parallel.
type Service struct {
	store   store.Store
	deltas  map[models.EventType]models.Points
	tiers   models.Tiers
	initial models.Points
	max     models.Points

	locks   *keylock.Map[domain.PartyID]
	events  events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPublisher emits a TrustAdjustedEvent after every persisted change.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(st store.Store, cfg config.TrustConfig, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("trust store is required")
	}
	s := &Service{
		store:   st,
		deltas:  make(map[models.EventType]models.Points, len(cfg.Deltas)),
		initial: models.FromFloat(cfg.Initial),
		max:     models.FromFloat(cfg.Max),
		locks:   keylock.New[domain.PartyID](),
		events:  events.Nop{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for name, delta := range cfg.Deltas {
		s.deltas[models.EventType(name)] = models.FromFloat(delta)
	}
	tiers := make([]models.Tier, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		tiers = append(tiers, models.Tier{
			Name:               t.Name,
			MinScore:           models.FromFloat(t.MinScore),
			AutoApproveCeiling: t.AutoApproveCeiling,
			BatchOperations:    t.BatchOperations,
			ExtendedTimeouts:   t.ExtendedTimeouts,
			InstantApproval:    t.InstantApproval,
		})
	}
	s.tiers = models.NewTiers(tiers...)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Score returns the party's current score. Parties without history hold the
// initial score.
func (s *Service) Score(ctx context.Context, party domain.PartyID) (float64, error) {
	rec, err := s.load(ctx, party)
	if err != nil {
		return 0, err
	}
	return rec.Score.Float(), nil
}

// AutomationTier maps the party's score to its benefit set.
func (s *Service) AutomationTier(ctx context.Context, party domain.PartyID) (models.Tier, error) {
	rec, err := s.load(ctx, party)
	if err != nil {
		return models.NoTier, err
	}
	return s.tiers.For(rec.Score), nil
}

// History returns the itemized adjustments, oldest first.
func (s *Service) History(ctx context.Context, party domain.PartyID) ([]models.Adjustment, error) {
	rec, err := s.load(ctx, party)
	if err != nil {
		return nil, err
	}
	return rec.History, nil
}

// Adjust applies the table delta for eventType. The result is clamped to
// [0, max] before it is persisted.
func (s *Service) Adjust(ctx context.Context, party domain.PartyID, eventType models.EventType, txID domain.TransactionID) (models.Adjustment, error) {
	delta, ok := s.deltas[eventType]
	if !ok {
		return models.Adjustment{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown trust event %q", eventType))
	}
	if party == "" {
		return models.Adjustment{}, dErrors.New(dErrors.CodeValidation, "party is required")
	}

	var adj models.Adjustment
	err := s.locks.With(party, func() error {
		rec, err := s.load(ctx, party)
		if err != nil {
			return err
		}
		adj = rec.Adjust(eventType, delta, s.max, txID, s.now())
		if err := s.store.Save(ctx, rec, adj); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save trust adjustment")
		}
		return nil
	})
	if err != nil {
		return models.Adjustment{}, err
	}

	s.metrics.IncrementAdjustment(string(eventType), adj.Applied != adj.Delta)
	s.logger.InfoContext(ctx, "trust adjusted",
		"party_id", string(party),
		"event_type", string(eventType),
		"delta", adj.Delta.Float(),
		"applied", adj.Applied.Float(),
		"score", adj.Score.Float(),
	)
	s.publish(ctx, party, adj, false)
	return adj, nil
}

// Reset sets the party back to the initial score. Only brand owners and
// administrators may reset.
func (s *Service) Reset(ctx context.Context, party domain.PartyID, actor domain.Actor) (models.Adjustment, error) {
	if !actor.System && !actor.HasAnyRole([]domain.Role{domain.RoleAdmin, domain.RoleBrandOwner}) {
		return models.Adjustment{}, dErrors.New(dErrors.CodeUnauthorized, "actor may not reset trust scores")
	}
	var adj models.Adjustment
	err := s.locks.With(party, func() error {
		rec, err := s.load(ctx, party)
		if err != nil {
			return err
		}
		adj = rec.Reset(s.initial, s.max, domain.PartyID(actor.ID()), s.now())
		if err := s.store.Save(ctx, rec, adj); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save trust reset")
		}
		return nil
	})
	if err != nil {
		return models.Adjustment{}, err
	}
	s.logger.WarnContext(ctx, "trust score reset",
		"party_id", string(party),
		"actor", actor.ID(),
		"score", adj.Score.Float(),
	)
	s.publish(ctx, party, adj, true)
	return adj, nil
}

func (s *Service) load(ctx context.Context, party domain.PartyID) (*models.Record, error) {
	rec, err := s.store.Get(ctx, party)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.NewRecord(party, s.initial, s.now()), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust record")
	}
	return rec, nil
}

func (s *Service) publish(ctx context.Context, party domain.PartyID, adj models.Adjustment, reset bool) {
	s.events.Publish(ctx, events.TrustAdjustedEvent{
		Party:         party,
		EventType:     string(adj.EventType),
		Delta:         adj.Delta.Float(),
		Applied:       adj.Applied.Float(),
		Score:         adj.Score.Float(),
		TransactionID: adj.TransactionID,
		Reset:         reset,
		Actor:         adj.Actor,
		At:            adj.At,
	})
}
