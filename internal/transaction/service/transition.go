package service

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	trustmodels "github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/trust/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	dErrors "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain-errors"
)

// maxAutomaticSteps bounds cascades and trust automation after one request.
const maxAutomaticSteps = 4

// RequestTransition moves a transaction to target on behalf of actor.
//
// Checks run in a fixed order: unknown id, terminal state, emergency halt,
// same-target no-op (parties and elevated roles only), graph edge, actor
// authorization. A receiver confirming
// receipt while the sender has not yet dispatched is recorded without a state
// change; once both confirmations exist the transaction cascades to
// VALIDATED. When the ledger write fails the VALIDATED record is returned
// together with a CodeLedgerWrite error.
func (c *Coordinator) RequestTransition(ctx context.Context, id domain.TransactionID, target models.State, actor domain.Actor, evidence ...string) (_ *models.Transaction, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.RequestTransition", id)
	span.SetAttributes(attrTargetState.String(string(target)), attrActor.String(actor.ID()))
	defer func() { c.finish(span, err) }()

	start := time.Now()
	defer func() { c.metrics.ObserveTransitionLatency(time.Since(start)) }()

	if !target.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown target state %q", target))
	}

	unlock := c.locks.Lock(id)
	defer unlock()
	return c.requestLocked(ctx, id, target, actor, evidence)
}

func (c *Coordinator) requestLocked(ctx context.Context, id domain.TransactionID, target models.State, actor domain.Actor, evidence []string) (*models.Transaction, error) {
	tx, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, c.translate(err, "failed to load transaction")
	}
	if tx.State.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("transaction is %s and accepts no further transitions", tx.State))
	}
	if err := c.checkHalted(ctx, tx); err != nil {
		return nil, err
	}
	if target == tx.State {
		if !c.mayObserve(tx, actor) {
			return nil, dErrors.New(dErrors.CodeUnauthorized,
				fmt.Sprintf("actor %s is not a party to this transaction", actor.ID()))
		}
		return tx, nil
	}

	now := c.clock(ctx)
	if target == models.StateReceived && tx.State == models.StateCreated && actor.Party == tx.Receiver && !actor.System {
		return c.recordEarlyReceipt(ctx, tx, actor, now)
	}

	if !models.CanTransition(tx.State, target, tx.EscalatedFrom) {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("transition %s -> %s is not allowed", tx.State, target))
	}
	if err := c.authorize(tx, target, actor); err != nil {
		return nil, err
	}
	if target == models.StateValidated && !tx.BothConfirmed() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "both confirmations are required before validation")
	}

	cause := events.CauseRequest
	if tx.State == models.StateEscalated && !target.IsTerminal() {
		cause = events.CauseReinstate
	}
	entry := models.HistoryEntry{
		To:       target,
		Actor:    domain.PartyID(actor.ID()),
		At:       now,
		Evidence: evidence,
		System:   actor.System,
	}
	onTime := now.Before(tx.TimeoutAt)
	half := c.recordConfirmation(tx, target, actor, now, false)
	if err := c.commit(ctx, tx, entry, cause, transitionDetail{}); err != nil {
		return nil, err
	}
	if half != "" {
		c.publishConfirmation(ctx, tx, half, actor.Party, false, onTime, now)
	}
	return c.advance(ctx, tx)
}

// recordEarlyReceipt stores the receiver's half while the transaction still
// waits for dispatch. Repeating it is a no-op.
func (c *Coordinator) recordEarlyReceipt(ctx context.Context, tx *models.Transaction, actor domain.Actor, now time.Time) (*models.Transaction, error) {
	if tx.ReceivedConfirmation != nil {
		return tx, nil
	}
	expected := tx.Version
	tx.ReceivedConfirmation = &models.Confirmation{Actor: actor.Party, At: now}
	if err := c.store.Update(ctx, tx, expected); err != nil {
		return nil, c.translate(err, "failed to persist confirmation")
	}
	c.logger.InfoContext(ctx, "receipt confirmed ahead of dispatch",
		"transaction_id", tx.ID.String(),
		"party_id", string(actor.Party),
	)
	c.publishConfirmation(ctx, tx, models.StateReceived, actor.Party, false, now.Before(tx.TimeoutAt), now)
	return tx, nil
}

// recordConfirmation sets the confirmation carried by a transition to SENT
// or RECEIVED and returns which half it was.
func (c *Coordinator) recordConfirmation(tx *models.Transaction, target models.State, actor domain.Actor, now time.Time, synthesized bool) models.State {
	party := actor.Party
	switch target {
	case models.StateSent:
		if tx.SentConfirmation == nil {
			if actor.System {
				party = tx.Sender
			}
			tx.SentConfirmation = &models.Confirmation{Actor: party, At: now, Synthesized: synthesized}
			return models.StateSent
		}
	case models.StateReceived:
		if tx.ReceivedConfirmation == nil {
			if actor.System {
				party = tx.Receiver
			}
			tx.ReceivedConfirmation = &models.Confirmation{Actor: party, At: now, Synthesized: synthesized}
			return models.StateReceived
		}
	}
	return ""
}

// authorize checks the actor's relationship to the edge. The system may take
// any edge.
func (c *Coordinator) authorize(tx *models.Transaction, target models.State, actor domain.Actor) error {
	if actor.System {
		return nil
	}
	allowed := false
	switch {
	case tx.State == models.StateEscalated:
		// reinstate, resolve or cancel an escalated transaction
		allowed = c.isElevated(actor)
	case target == models.StateCreated, target == models.StateSent:
		allowed = actor.Party == tx.Sender
	case target == models.StateReceived, target == models.StateValidated:
		allowed = actor.Party == tx.Receiver
	case target == models.StateDisputed:
		allowed = tx.IsParty(actor.Party)
	case target == models.StateResolved, target == models.StateCancelled, target == models.StateEscalated:
		allowed = c.isElevated(actor)
	}
	if !allowed {
		return dErrors.New(dErrors.CodeUnauthorized,
			fmt.Sprintf("actor %s may not move transaction to %s", actor.ID(), target))
	}
	return nil
}

// mayObserve reports whether actor may be handed the record of tx.
func (c *Coordinator) mayObserve(tx *models.Transaction, actor domain.Actor) bool {
	return actor.System || tx.IsParty(actor.Party) || c.isElevated(actor)
}

func (c *Coordinator) checkHalted(ctx context.Context, tx *models.Transaction) error {
	if c.guard == nil {
		return nil
	}
	halted, err := c.guard.IsHalted(ctx, tx.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check emergency stops")
	}
	if halted {
		return dErrors.New(dErrors.CodeHalted, "transaction is under an active emergency stop")
	}
	for _, party := range []domain.PartyID{tx.Sender, tx.Receiver} {
		halted, err := c.guard.IsPartyHalted(ctx, party)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check emergency stops")
		}
		if halted {
			return dErrors.New(dErrors.CodeHalted, fmt.Sprintf("party %s is under an active emergency stop", party))
		}
	}
	return nil
}

type transitionDetail struct {
	stepOwner domain.PartyID
	overage   time.Duration
}

// commit applies entry, realigns the deadline, persists the whole record in
// one write and emits the transition event. Callers hold the lock.
func (c *Coordinator) commit(ctx context.Context, tx *models.Transaction, entry models.HistoryEntry, cause events.Cause, detail transitionDetail) error {
	expected := tx.Version
	from := tx.State
	tx.Apply(entry)
	if from == models.StateEscalated && !entry.To.IsTerminal() {
		tx.DeadlineAnchor = entry.At
	}
	c.refreshDeadline(ctx, tx)

	if err := c.store.Update(ctx, tx, expected); err != nil {
		return c.translate(err, "failed to persist transition")
	}

	c.metrics.IncrementTransition(string(entry.To), string(cause))
	c.logger.InfoContext(ctx, "transition applied",
		"transaction_id", tx.ID.String(),
		"from", string(from),
		"to", string(entry.To),
		"actor", string(entry.Actor),
		"system", entry.System,
		"cause", string(cause),
	)
	c.events.Publish(ctx, events.TransitionEvent{
		Transaction: tx.Clone(),
		From:        from,
		To:          entry.To,
		Actor:       entry.Actor,
		System:      entry.System,
		Cause:       cause,
		StepOwner:   detail.stepOwner,
		Overage:     detail.overage,
		At:          entry.At,
	})
	return nil
}

// refreshDeadline recomputes the deadline when the transaction enters a phase
// that waits on a party, granting the tier extension to that party.
func (c *Coordinator) refreshDeadline(ctx context.Context, tx *models.Transaction) {
	owner := tx.StepOwner()
	if owner == "" {
		return
	}
	tier := c.tier(ctx, owner)
	tx.TimeoutAt = c.policy.Deadline(tx, tier.ExtendedTimeouts)
}

func (c *Coordinator) tier(ctx context.Context, party domain.PartyID) trustmodels.Tier {
	if c.trust == nil {
		return trustmodels.NoTier
	}
	tier, err := c.trust.AutomationTier(ctx, party)
	if err != nil {
		c.logger.WarnContext(ctx, "trust tier unavailable, automation skipped",
			"party_id", string(party),
			"error", err,
		)
		return trustmodels.NoTier
	}
	return tier
}

type automaticStep struct {
	to     models.State
	cause  events.Cause
	reason string
}

// nextAutomaticStep returns the transition the coordinator takes on its own:
// the dual-confirmation cascade first, then tier-granted approvals.
func (c *Coordinator) nextAutomaticStep(ctx context.Context, tx *models.Transaction) (automaticStep, bool) {
	if tx.BothConfirmed() {
		switch tx.State {
		case models.StateSent:
			return automaticStep{to: models.StateReceived, cause: events.CauseCascade, reason: "receipt confirmed before dispatch"}, true
		case models.StateReceived:
			return automaticStep{to: models.StateValidated, cause: events.CauseCascade, reason: "both confirmations recorded"}, true
		}
	}

	switch tx.State {
	case models.StateInitiated:
		tier := c.tier(ctx, tx.Sender)
		if tier.CanAutoApprove(tx.Value) {
			return automaticStep{to: models.StateCreated, cause: events.CauseAutomation, reason: "auto-approved for tier " + tier.Name}, true
		}
	case models.StateCreated:
		tier := c.tier(ctx, tx.Sender)
		if tier.InstantApproval && tier.CanAutoApprove(tx.Value) {
			return automaticStep{to: models.StateSent, cause: events.CauseAutomation, reason: "dispatch confirmed for tier " + tier.Name}, true
		}
	case models.StateSent:
		tier := c.tier(ctx, tx.Receiver)
		if tier.InstantApproval && tier.CanAutoApprove(tx.Value) {
			return automaticStep{to: models.StateReceived, cause: events.CauseAutomation, reason: "receipt confirmed for tier " + tier.Name}, true
		}
	}
	return automaticStep{}, false
}

// advance applies automatic steps until none is left, then records the
// ledger entry when the transaction became VALIDATED.
func (c *Coordinator) advance(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	for i := 0; i < maxAutomaticSteps; i++ {
		step, ok := c.nextAutomaticStep(ctx, tx)
		if !ok {
			break
		}
		now := c.clock(ctx)
		system := domain.System()
		half := c.recordConfirmation(tx, step.to, system, now, true)
		entry := models.HistoryEntry{
			To:     step.to,
			Actor:  domain.SystemActorID,
			At:     now,
			Reason: step.reason,
			System: true,
		}
		if err := c.commit(ctx, tx, entry, step.cause, transitionDetail{}); err != nil {
			return nil, err
		}
		if half != "" {
			party := tx.Sender
			if half == models.StateReceived {
				party = tx.Receiver
			}
			c.publishConfirmation(ctx, tx, half, party, true, true, now)
		}
	}

	if tx.State == models.StateValidated && !tx.LedgerRecorded {
		if err := c.recordLedger(ctx, tx); err != nil {
			return tx, err
		}
	}
	return tx, nil
}

// recordLedger calls the ledger collaborator once. State is never rolled
// back on failure.
func (c *Coordinator) recordLedger(ctx context.Context, tx *models.Transaction) error {
	at := c.clock(ctx)
	if err := c.ledger.Record(ctx, tx.ID, tx.State, ledgerMetadata(tx)); err != nil {
		c.metrics.IncrementLedgerWrite(false)
		c.logger.ErrorContext(ctx, "ledger write failed",
			"transaction_id", tx.ID.String(),
			"error", err,
		)
		c.events.Publish(ctx, events.LedgerEvent{TransactionID: tx.ID, Err: err, At: at})
		return dErrors.Wrap(err, dErrors.CodeLedgerWrite, "ledger write failed; transaction remains VALIDATED")
	}
	c.metrics.IncrementLedgerWrite(true)

	expected := tx.Version
	tx.LedgerRecorded = true
	if err := c.store.Update(ctx, tx, expected); err != nil {
		return c.translate(err, "failed to persist ledger flag")
	}
	c.events.Publish(ctx, events.LedgerEvent{TransactionID: tx.ID, At: at})
	return nil
}

func ledgerMetadata(tx *models.Transaction) map[string]string {
	md := maps.Clone(tx.Metadata)
	if md == nil {
		md = make(map[string]string, 4)
	}
	md["sender"] = string(tx.Sender)
	md["receiver"] = string(tx.Receiver)
	md["item_ref"] = tx.ItemRef
	md["value"] = strconv.FormatFloat(tx.Value, 'f', -1, 64)
	return md
}

func (c *Coordinator) publishConfirmation(ctx context.Context, tx *models.Transaction, half models.State, party domain.PartyID, synthesized, onTime bool, at time.Time) {
	c.events.Publish(ctx, events.ConfirmationEvent{
		TransactionID: tx.ID,
		Party:         party,
		Half:          half,
		Synthesized:   synthesized,
		OnTime:        onTime,
		At:            at,
	})
}
