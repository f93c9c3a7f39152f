package service

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	dErrors "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain-errors"
)

// CreateRequest carries what an originator (usually an ERP purchase order)
// supplies for a new transaction.
type CreateRequest struct {
	Sender   domain.PartyID
	Receiver domain.PartyID
	ItemRef  string
	Value    float64
	Metadata map[string]string
}

// BatchResult is the outcome for one id of a BatchConfirm call.
type BatchResult struct {
	ID          domain.TransactionID
	Transaction *models.Transaction
	Err         error
}

// Create originates a transaction in INITIATED, screens it for automatic
// emergency stops and then applies trust automation.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest, actor domain.Actor) (_ *models.Transaction, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.Create", domain.TransactionID{})
	span.SetAttributes(attrActor.String(actor.ID()))
	defer func() { c.finish(span, err) }()

	if !actor.System && actor.Party != req.Sender {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the sender or the system may originate a transaction")
	}

	now := c.clock(ctx)
	tx := &models.Transaction{
		ID:             domain.NewTransactionID(),
		Sender:         req.Sender,
		Receiver:       req.Receiver,
		ItemRef:        req.ItemRef,
		Value:          req.Value,
		Metadata:       maps.Clone(req.Metadata),
		CreatedAt:      now,
		DeadlineAnchor: now,
		State:          models.StateInitiated,
	}
	tx.TimeoutAt = c.policy.Deadline(tx, c.tier(ctx, tx.Sender).ExtendedTimeouts)
	if err := tx.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	span.SetAttributes(attrTransactionID.String(tx.ID.String()))

	if c.guard != nil {
		for _, party := range []domain.PartyID{tx.Sender, tx.Receiver} {
			halted, err := c.guard.IsPartyHalted(ctx, party)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check emergency stops")
			}
			if halted {
				return nil, dErrors.New(dErrors.CodeHalted, fmt.Sprintf("party %s is under an active emergency stop", party))
			}
		}
	}

	unlock := c.locks.Lock(tx.ID)
	if err := c.store.Create(ctx, tx); err != nil {
		unlock()
		return nil, c.translate(err, "failed to persist transaction")
	}
	_, category := c.policy.Duration(tx)
	c.metrics.IncrementTransition(string(models.StateInitiated), string(events.CauseRequest))
	c.logger.InfoContext(ctx, "transaction created",
		"transaction_id", tx.ID.String(),
		"sender", string(tx.Sender),
		"receiver", string(tx.Receiver),
		"value", tx.Value,
		"timeout_category", category,
		"timeout_at", tx.TimeoutAt,
	)
	c.events.Publish(ctx, events.TransitionEvent{
		Transaction: tx.Clone(),
		To:          models.StateInitiated,
		Actor:       domain.PartyID(actor.ID()),
		System:      actor.System,
		Cause:       events.CauseRequest,
		At:          now,
	})
	unlock()

	// Screening may halt the transaction, which takes the lock itself.
	if c.guard != nil {
		if err := c.guard.Screen(ctx, tx.Clone()); err != nil {
			c.logger.ErrorContext(ctx, "emergency screening failed",
				"transaction_id", tx.ID.String(),
				"error", err,
			)
		}
	}

	unlock = c.locks.Lock(tx.ID)
	defer unlock()
	current, err := c.store.Get(ctx, tx.ID)
	if err != nil {
		return nil, c.translate(err, "failed to load transaction")
	}
	if current.State != models.StateInitiated {
		return current, nil
	}
	if err := c.checkHalted(ctx, current); err != nil {
		if dErrors.HasCode(err, dErrors.CodeHalted) {
			return current, nil
		}
		return nil, err
	}
	return c.advance(ctx, current)
}

// Escalate moves a non-terminal transaction to ESCALATED. Escalating an
// already escalated transaction is a no-op.
func (c *Coordinator) Escalate(ctx context.Context, id domain.TransactionID, actor domain.Actor, reason string) (_ *models.Transaction, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.Escalate", id)
	span.SetAttributes(attrActor.String(actor.ID()))
	defer func() { c.finish(span, err) }()

	if !actor.System && !c.isElevated(actor) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "escalation requires an elevated role")
	}

	unlock := c.locks.Lock(id)
	defer unlock()

	tx, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, c.translate(err, "failed to load transaction")
	}
	if tx.State.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("transaction is %s and accepts no further transitions", tx.State))
	}
	if tx.State == models.StateEscalated {
		return tx, nil
	}
	entry := models.HistoryEntry{
		To:     models.StateEscalated,
		Actor:  domain.PartyID(actor.ID()),
		At:     c.clock(ctx),
		Reason: reason,
		System: actor.System,
	}
	if err := c.commit(ctx, tx, entry, events.CauseEscalation, transitionDetail{}); err != nil {
		return nil, err
	}
	return tx, nil
}

// Timeout escalates a transaction whose deadline has passed. It reports
// whether anything changed; transactions that are terminal, already
// escalated or not yet overdue are left alone.
func (c *Coordinator) Timeout(ctx context.Context, id domain.TransactionID) (_ *models.Transaction, _ bool, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.Timeout", id)
	defer func() { c.finish(span, err) }()

	unlock := c.locks.Lock(id)
	defer unlock()

	tx, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, false, c.translate(err, "failed to load transaction")
	}
	now := c.clock(ctx)
	if tx.State.IsTerminal() || tx.State == models.StateEscalated || now.Before(tx.TimeoutAt) {
		return tx, false, nil
	}

	overage := now.Sub(tx.TimeoutAt)
	detail := transitionDetail{stepOwner: tx.StepOwner(), overage: overage}
	entry := models.HistoryEntry{
		To:     models.StateEscalated,
		Actor:  domain.SystemActorID,
		At:     now,
		Reason: fmt.Sprintf("deadline passed in %s by %s", tx.State, overage.Round(time.Second)),
		System: true,
	}
	if err := c.commit(ctx, tx, entry, events.CauseTimeout, detail); err != nil {
		return nil, false, err
	}
	return tx, true, nil
}

// Halt applies an emergency stop to one transaction: mark runs under the
// transaction lock, then the transaction is escalated unless it already is.
func (c *Coordinator) Halt(ctx context.Context, id domain.TransactionID, actor domain.Actor, reason string, mark MarkFunc) (_ *models.Transaction, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.Halt", id)
	span.SetAttributes(attrActor.String(actor.ID()))
	defer func() { c.finish(span, err) }()

	unlock := c.locks.Lock(id)
	defer unlock()

	tx, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, c.translate(err, "failed to load transaction")
	}
	if tx.State.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("transaction is %s and cannot be halted", tx.State))
	}
	if mark != nil {
		if err := mark(ctx, tx.Clone()); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark transaction halted")
		}
	}
	if tx.State == models.StateEscalated {
		return tx, nil
	}
	entry := models.HistoryEntry{
		To:     models.StateEscalated,
		Actor:  domain.PartyID(actor.ID()),
		At:     c.clock(ctx),
		Reason: reason,
		System: actor.System,
	}
	if err := c.commit(ctx, tx, entry, events.CauseEmergency, transitionDetail{}); err != nil {
		return nil, err
	}
	return tx, nil
}

// Reinstate returns an escalated transaction to the state it was escalated
// from and restarts its deadline.
func (c *Coordinator) Reinstate(ctx context.Context, id domain.TransactionID, actor domain.Actor, reason string) (_ *models.Transaction, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.Reinstate", id)
	span.SetAttributes(attrActor.String(actor.ID()))
	defer func() { c.finish(span, err) }()

	if !actor.System && !c.isElevated(actor) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "reinstating requires an elevated role")
	}

	unlock := c.locks.Lock(id)
	defer unlock()

	tx, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, c.translate(err, "failed to load transaction")
	}
	if tx.State != models.StateEscalated || tx.EscalatedFrom == "" {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("transaction is %s, only escalated transactions can be reinstated", tx.State))
	}
	if err := c.checkHalted(ctx, tx); err != nil {
		return nil, err
	}
	entry := models.HistoryEntry{
		To:     tx.EscalatedFrom,
		Actor:  domain.PartyID(actor.ID()),
		At:     c.clock(ctx),
		Reason: reason,
		System: actor.System,
	}
	if err := c.commit(ctx, tx, entry, events.CauseReinstate, transitionDetail{}); err != nil {
		return nil, err
	}
	return c.advance(ctx, tx)
}

// RetryLedgerWrite repeats only the ledger write for a VALIDATED transaction
// whose first write failed.
func (c *Coordinator) RetryLedgerWrite(ctx context.Context, id domain.TransactionID) (_ *models.Transaction, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.RetryLedgerWrite", id)
	defer func() { c.finish(span, err) }()

	unlock := c.locks.Lock(id)
	defer unlock()

	tx, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, c.translate(err, "failed to load transaction")
	}
	if tx.State != models.StateValidated {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("transaction is %s, ledger writes happen only for VALIDATED", tx.State))
	}
	if tx.LedgerRecorded {
		return tx, nil
	}
	if err := c.recordLedger(ctx, tx); err != nil {
		return tx, err
	}
	return tx, nil
}

// BatchConfirm applies the same confirmation to several transactions for a
// party whose tier grants batch operations. The whole batch is rejected when
// any value exceeds the tier ceiling.
func (c *Coordinator) BatchConfirm(ctx context.Context, actor domain.Actor, ids []domain.TransactionID, target models.State) (_ []BatchResult, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.BatchConfirm", domain.TransactionID{})
	span.SetAttributes(attrActor.String(actor.ID()), attrTargetState.String(string(target)))
	defer func() { c.finish(span, err) }()

	if len(ids) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch is empty")
	}
	tier := c.tier(ctx, actor.Party)
	if !tier.BatchOperations {
		return nil, dErrors.New(dErrors.CodePolicyViolation,
			fmt.Sprintf("tier %s does not allow batch operations", tier.Name))
	}
	for _, id := range ids {
		tx, err := c.store.Get(ctx, id)
		if err != nil {
			return nil, c.translate(err, "failed to load transaction")
		}
		if tx.Value > tier.AutoApproveCeiling {
			return nil, dErrors.New(dErrors.CodePolicyViolation,
				fmt.Sprintf("transaction %s value %.2f exceeds the %s ceiling %.2f", id, tx.Value, tier.Name, tier.AutoApproveCeiling))
		}
	}

	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		tx, err := c.RequestTransition(ctx, id, target, actor)
		results = append(results, BatchResult{ID: id, Transaction: tx, Err: err})
	}
	c.logger.InfoContext(ctx, "batch confirmation applied",
		"party_id", string(actor.Party),
		"target", string(target),
		"count", len(ids),
	)
	return results, nil
}
