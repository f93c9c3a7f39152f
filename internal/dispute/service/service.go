// Package service runs the dispute workflow: parties raise disputes,
// reviewers investigate and resolve them, and disputes left open past the
// grace period are escalated.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/dispute/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/dispute/store"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/platform/config"
	txmodels "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	dErrors "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain-errors"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/keylock"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/sentinel"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/requestcontext"
)

// Coordinator is the part of the transaction coordinator disputes drive.
type Coordinator interface {
	Get(ctx context.Context, id domain.TransactionID) (*txmodels.Transaction, error)
	RequestTransition(ctx context.Context, id domain.TransactionID, target txmodels.State, actor domain.Actor, evidence ...string) (*txmodels.Transaction, error)
	Escalate(ctx context.Context, id domain.TransactionID, actor domain.Actor, reason string) (*txmodels.Transaction, error)
}

type Service struct {
	store         store.Store
	coordinator   Coordinator
	grace         time.Duration
	reviewerRoles []domain.Role
	locks         *keylock.Map[domain.TransactionID]

	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

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

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(st store.Store, coordinator Coordinator, cfg config.DisputeConfig, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("dispute store is required")
	}
	if coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	s := &Service{
		store:       st,
		coordinator: coordinator,
		grace:       cfg.GracePeriod,
		locks:       keylock.New[domain.TransactionID](),
		events:      events.Nop{},
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, r := range cfg.ReviewerRoles {
		s.reviewerRoles = append(s.reviewerRoles, domain.Role(r))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open raises a dispute and moves the transaction to DISPUTED. When the
// transaction already has an open dispute that dispute is returned.
func (s *Service) Open(ctx context.Context, txID domain.TransactionID, actor domain.Actor, reason string, evidence ...string) (*models.Dispute, error) {
	unlock := s.locks.Lock(txID)
	defer unlock()

	tx, err := s.coordinator.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !actor.System && !tx.IsParty(actor.Party) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only a party to the transaction may raise a dispute")
	}
	if existing, err := s.openFor(ctx, txID); err != nil {
		return nil, err
	} else if existing != nil {
		if tx.State == txmodels.StateDisputed || tx.EscalatedFrom == txmodels.StateDisputed {
			return existing, nil
		}
		// left behind by an earlier Open whose transition failed
		if _, err := s.coordinator.RequestTransition(ctx, txID, txmodels.StateDisputed, actor, evidence...); err != nil {
			return nil, err
		}
		return existing, nil
	}

	now := s.clock(ctx)
	d := &models.Dispute{
		ID:            domain.NewDisputeID(),
		TransactionID: txID,
		RaisedBy:      domain.PartyID(actor.ID()),
		Automatic:     actor.System,
		Reason:        reason,
		Status:        models.StatusOpen,
		OpenedAt:      now,
	}
	for _, ref := range evidence {
		d.Evidence = append(d.Evidence, models.Evidence{Ref: ref, SubmittedBy: d.RaisedBy, At: now})
	}
	// A DISPUTED transaction always has its record.
	if err := s.store.Create(ctx, d); err != nil {
		return nil, translate(err, "failed to persist dispute")
	}
	if _, err := s.coordinator.RequestTransition(ctx, txID, txmodels.StateDisputed, actor, evidence...); err != nil {
		if derr := s.store.Delete(ctx, d.ID); derr != nil {
			s.logger.ErrorContext(ctx, "failed to discard dispute after rejected transition",
				"dispute_id", d.ID.String(),
				"transaction_id", txID.String(),
				"error", derr,
			)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "dispute opened",
		"dispute_id", d.ID.String(),
		"transaction_id", txID.String(),
		"raised_by", string(d.RaisedBy),
		"automatic", d.Automatic,
	)
	s.events.Publish(ctx, events.DisputeOpenedEvent{
		DisputeID:     d.ID,
		TransactionID: txID,
		RaisedBy:      d.RaisedBy,
		Automatic:     d.Automatic,
		Reason:        reason,
		At:            now,
	})
	return d, nil
}

// OpenAutomatic raises a system dispute for a transaction whose receiver let
// the final reminder pass. It is the scheduler's dispute hook.
func (s *Service) OpenAutomatic(ctx context.Context, tx *txmodels.Transaction) error {
	_, err := s.Open(ctx, tx.ID, domain.System(), "receipt not confirmed before the final reminder")
	return err
}

// AddEvidence attaches a reference to an open dispute.
func (s *Service) AddEvidence(ctx context.Context, id domain.DisputeID, actor domain.Actor, ref string) (*models.Dispute, error) {
	if ref == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "evidence reference is required")
	}
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(d.TransactionID)
	defer unlock()
	if d, err = s.get(ctx, id); err != nil {
		return nil, err
	}
	if !d.IsOpen() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "dispute is already resolved")
	}
	if !actor.System && !s.isReviewer(actor) {
		tx, err := s.coordinator.Get(ctx, d.TransactionID)
		if err != nil {
			return nil, err
		}
		if !tx.IsParty(actor.Party) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "only parties and reviewers may add evidence")
		}
	}
	d.Evidence = append(d.Evidence, models.Evidence{Ref: ref, SubmittedBy: domain.PartyID(actor.ID()), At: s.clock(ctx)})
	if err := s.store.Update(ctx, d); err != nil {
		return nil, translate(err, "failed to persist evidence")
	}
	return d, nil
}

// Review starts the investigation of an open dispute.
func (s *Service) Review(ctx context.Context, id domain.DisputeID, reviewer domain.Actor) (*models.Dispute, error) {
	if !s.isReviewer(reviewer) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "reviewing a dispute requires a reviewer role")
	}
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(d.TransactionID)
	defer unlock()
	if d, err = s.get(ctx, id); err != nil {
		return nil, err
	}
	switch d.Status {
	case models.StatusInvestigating:
		return d, nil
	case models.StatusResolved:
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "dispute is already resolved")
	}
	now := s.clock(ctx)
	d.Status = models.StatusInvestigating
	d.ReviewedAt = &now
	if err := s.store.Update(ctx, d); err != nil {
		return nil, translate(err, "failed to persist review")
	}
	s.logger.InfoContext(ctx, "dispute under review",
		"dispute_id", d.ID.String(),
		"reviewer", reviewer.ID(),
	)
	return d, nil
}

// Resolve closes a dispute with an outcome. Favoring the sender or splitting
// resolves the transaction; favoring the receiver cancels it.
func (s *Service) Resolve(ctx context.Context, id domain.DisputeID, reviewer domain.Actor, outcome models.Outcome, note string) (*models.Dispute, error) {
	if !s.isReviewer(reviewer) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "resolving a dispute requires a reviewer role")
	}
	if _, err := models.ParseOutcome(string(outcome)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(d.TransactionID)
	defer unlock()
	if d, err = s.get(ctx, id); err != nil {
		return nil, err
	}
	if !d.IsOpen() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "dispute is already resolved")
	}

	tx, err := s.coordinator.Get(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}
	target := txmodels.StateResolved
	winner, loser := tx.Sender, tx.Receiver
	switch outcome {
	case models.OutcomeFavorReceiver:
		target = txmodels.StateCancelled
		winner, loser = tx.Receiver, tx.Sender
	case models.OutcomeSplit:
		winner, loser = "", ""
	}
	if _, err := s.coordinator.RequestTransition(ctx, d.TransactionID, target, reviewer); err != nil {
		return nil, err
	}
	return s.close(ctx, d, reviewer, outcome, note, winner, loser)
}

// Cancel withdraws a dispute by cancelling the transaction. Cancelling a
// resolved dispute is a no-op.
func (s *Service) Cancel(ctx context.Context, id domain.DisputeID, actor domain.Actor, note string) (*models.Dispute, error) {
	if !actor.System && !s.isReviewer(actor) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "cancelling a dispute requires a reviewer role")
	}
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(d.TransactionID)
	defer unlock()
	if d, err = s.get(ctx, id); err != nil {
		return nil, err
	}
	if !d.IsOpen() {
		return d, nil
	}
	tx, err := s.coordinator.Get(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.State != txmodels.StateCancelled {
		if _, err := s.coordinator.RequestTransition(ctx, d.TransactionID, txmodels.StateCancelled, actor); err != nil {
			return nil, err
		}
	}
	return s.close(ctx, d, actor, models.OutcomeCancelled, note, "", "")
}

func (s *Service) close(ctx context.Context, d *models.Dispute, actor domain.Actor, outcome models.Outcome, note string, winner, loser domain.PartyID) (*models.Dispute, error) {
	now := s.clock(ctx)
	d.Status = models.StatusResolved
	d.Resolution = &models.Resolution{
		Outcome:    outcome,
		ResolvedBy: domain.PartyID(actor.ID()),
		Note:       note,
		At:         now,
	}
	if err := s.store.Update(ctx, d); err != nil {
		return nil, translate(err, "failed to persist resolution")
	}
	s.logger.InfoContext(ctx, "dispute resolved",
		"dispute_id", d.ID.String(),
		"transaction_id", d.TransactionID.String(),
		"outcome", string(outcome),
		"resolved_by", actor.ID(),
	)
	s.events.Publish(ctx, events.DisputeResolvedEvent{
		DisputeID:     d.ID,
		TransactionID: d.TransactionID,
		Outcome:       string(outcome),
		Winner:        winner,
		Loser:         loser,
		RaisedBy:      d.RaisedBy,
		ResolvedBy:    domain.PartyID(actor.ID()),
		At:            now,
	})
	return d, nil
}

// Sweep escalates disputes that stayed open past the grace period and
// returns how many were escalated.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	open, err := s.store.ListOpen(ctx)
	if err != nil {
		return 0, translate(err, "failed to list open disputes")
	}
	escalated := 0
	var errs []error
	for _, d := range open {
		if !d.Overdue(now, s.grace) {
			continue
		}
		if err := s.escalate(ctx, d.ID, now); err != nil {
			errs = append(errs, err)
			continue
		}
		escalated++
	}
	return escalated, errors.Join(errs...)
}

func (s *Service) escalate(ctx context.Context, id domain.DisputeID, now time.Time) error {
	d, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(d.TransactionID)
	defer unlock()
	if d, err = s.get(ctx, id); err != nil {
		return err
	}
	if !d.Overdue(now, s.grace) {
		return nil
	}
	reason := fmt.Sprintf("dispute %s unresolved after %s", d.ID, s.grace)
	if _, err := s.coordinator.Escalate(ctx, d.TransactionID, domain.System(), reason); err != nil {
		if !dErrors.HasCode(err, dErrors.CodeInvalidTransition) {
			return err
		}
		// the transaction finished by another route; stop sweeping this one
		s.logger.WarnContext(ctx, "dispute outlived its transaction",
			"dispute_id", d.ID.String(),
			"transaction_id", d.TransactionID.String(),
		)
	}
	d.EscalatedAt = &now
	if err := s.store.Update(ctx, d); err != nil {
		return translate(err, "failed to persist escalation")
	}
	s.logger.InfoContext(ctx, "dispute escalated",
		"dispute_id", d.ID.String(),
		"transaction_id", d.TransactionID.String(),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id domain.DisputeID) (*models.Dispute, error) {
	return s.get(ctx, id)
}

func (s *Service) ListByTransaction(ctx context.Context, txID domain.TransactionID) ([]*models.Dispute, error) {
	out, err := s.store.ListByTransaction(ctx, txID)
	if err != nil {
		return nil, translate(err, "failed to list disputes")
	}
	return out, nil
}

func (s *Service) get(ctx context.Context, id domain.DisputeID) (*models.Dispute, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to load dispute")
	}
	return d, nil
}

func (s *Service) openFor(ctx context.Context, txID domain.TransactionID) (*models.Dispute, error) {
	list, err := s.store.ListByTransaction(ctx, txID)
	if err != nil {
		return nil, translate(err, "failed to list disputes")
	}
	for _, d := range list {
		if d.IsOpen() {
			return d, nil
		}
	}
	return nil, nil
}

func (s *Service) isReviewer(actor domain.Actor) bool {
	return actor.HasAnyRole(s.reviewerRoles)
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
		return dErrors.Wrap(err, dErrors.CodeNotFound, "dispute not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "dispute already exists")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
