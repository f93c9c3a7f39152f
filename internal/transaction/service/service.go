// Package service implements the transaction coordinator: the single entry
// point for every state change. Requests for one transaction are serialized;
// different transactions proceed in parallel.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/ledger"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/timeout"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/metrics"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/store"
	trustmodels "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	dErrors "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain-errors"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/keylock"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/requestcontext"
)

// TrustLedger is the part of the trust service the coordinator consults.
type TrustLedger interface {
	AutomationTier(ctx context.Context, party domain.PartyID) (trustmodels.Tier, error)
}

// Guard is the emergency-stop guard as seen by the coordinator.
type Guard interface {
	IsHalted(ctx context.Context, id domain.TransactionID) (bool, error)
	IsPartyHalted(ctx context.Context, party domain.PartyID) (bool, error)
	// Screen evaluates the automatic stop triggers for a new transaction.
	Screen(ctx context.Context, tx *models.Transaction) error
}

// MarkFunc runs under the transaction lock while a stop is applied.
type MarkFunc func(ctx context.Context, tx *models.Transaction) error

var defaultElevatedRoles = []domain.Role{
	domain.RoleBrandOwner,
	domain.RoleSecurityTeam,
	domain.RoleArbitrator,
	domain.RoleAdmin,
}

const tracerName = "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/service"

type Coordinator struct {
	store  store.Store
	policy *timeout.Policy
	ledger ledger.Writer
	trust  TrustLedger
	guard  Guard

	locks         *keylock.Map[domain.TransactionID]
	elevatedRoles []domain.Role

	events  events.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) {
		c.events = p
	}
}

func WithTrust(t TrustLedger) Option {
	return func(c *Coordinator) {
		c.trust = t
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithElevatedRoles sets the roles allowed to resolve, cancel, escalate and
// reinstate transactions.
func WithElevatedRoles(roles ...domain.Role) Option {
	return func(c *Coordinator) {
		if len(roles) > 0 {
			c.elevatedRoles = roles
		}
	}
}

func New(st store.Store, policy *timeout.Policy, writer ledger.Writer, opts ...Option) (*Coordinator, error) {
	if st == nil {
		return nil, errors.New("transaction store is required")
	}
	if policy == nil {
		return nil, errors.New("timeout policy is required")
	}
	if writer == nil {
		return nil, errors.New("ledger writer is required")
	}
	c := &Coordinator{
		store:         st,
		policy:        policy,
		ledger:        writer,
		locks:         keylock.New[domain.TransactionID](),
		elevatedRoles: defaultElevatedRoles,
		events:        events.Nop{},
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetGuard attaches the emergency-stop guard. The guard itself depends on the
// coordinator, so it is bound after construction and before serving.
func (c *Coordinator) SetGuard(g Guard) {
	c.guard = g
}

// Get returns a copy of the transaction.
func (c *Coordinator) Get(ctx context.Context, id domain.TransactionID) (*models.Transaction, error) {
	tx, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, c.translate(err, "failed to load transaction")
	}
	return tx, nil
}

// ListActive returns every non-terminal transaction.
func (c *Coordinator) ListActive(ctx context.Context) ([]*models.Transaction, error) {
	txs, err := c.store.Scan(ctx, store.All)
	if err != nil {
		return nil, c.translate(err, "failed to scan transactions")
	}
	return txs, nil
}

// ListInvolving returns non-terminal transactions where party is sender or
// receiver.
func (c *Coordinator) ListInvolving(ctx context.Context, party domain.PartyID) ([]*models.Transaction, error) {
	txs, err := c.store.Scan(ctx, store.InvolvingParty(party))
	if err != nil {
		return nil, c.translate(err, "failed to scan transactions")
	}
	return txs, nil
}

func (c *Coordinator) clock(ctx context.Context) time.Time {
	if t, ok := requestcontext.Now(ctx); ok {
		return t
	}
	return c.now()
}

func (c *Coordinator) isElevated(actor domain.Actor) bool {
	return actor.HasAnyRole(c.elevatedRoles)
}

// translate maps store sentinels to domain errors. Domain errors pass through.
func (c *Coordinator) translate(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "transaction not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "transaction was modified concurrently")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (c *Coordinator) startSpan(ctx context.Context, name string, id domain.TransactionID) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, name)
	if !id.IsNil() {
		span.SetAttributes(attrTransactionID.String(id.String()))
	}
	return ctx, span
}

// finish ends the span and counts rejections.
func (c *Coordinator) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.IncrementRejection(string(dErrors.CodeOf(err)))
	}
	span.End()
}
