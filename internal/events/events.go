// Package events carries typed domain events between the coordinator and the
// components that react to it.
package events

import (
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

type Kind string

const (
	KindTransition      Kind = "transition"
	KindConfirmation    Kind = "confirmation"
	KindLedger          Kind = "ledger"
	KindReminder        Kind = "reminder"
	KindStopTriggered   Kind = "emergency_stop_triggered"
	KindStopResumed     Kind = "emergency_stop_resumed"
	KindDisputeOpened   Kind = "dispute_opened"
	KindDisputeResolved Kind = "dispute_resolved"
	KindTrustAdjusted   Kind = "trust_adjusted"
)

// Event is implemented by every domain event.
type Event interface {
	Kind() Kind
}

// Cause explains why a system-attributed transition happened.
type Cause string

const (
	CauseRequest    Cause = "request"
	CauseTimeout    Cause = "timeout"
	CauseEmergency  Cause = "emergency_stop"
	CauseEscalation Cause = "escalation"
	CauseCascade    Cause = "dual_confirmation"
	CauseAutomation Cause = "trust_automation"
	CauseReinstate  Cause = "reinstate"
)

// TransitionEvent is emitted after a state change has been persisted.
// Transaction is a snapshot taken after the change.
type TransitionEvent struct {
	Transaction *models.Transaction
	From        models.State
	To          models.State
	Actor       domain.PartyID
	System      bool
	Cause       Cause
	// StepOwner is the party the transaction was waiting on before the
	// change; set for timeouts.
	StepOwner domain.PartyID
	Overage   time.Duration
	At        time.Time
}

func (TransitionEvent) Kind() Kind { return KindTransition }

// ConfirmationEvent is emitted when a party's half of the 2-Check is
// recorded, whether or not the state moved.
type ConfirmationEvent struct {
	TransactionID domain.TransactionID
	Party         domain.PartyID
	Half          models.State
	Synthesized   bool
	OnTime        bool
	At            time.Time
}

func (ConfirmationEvent) Kind() Kind { return KindConfirmation }

// LedgerEvent reports the outcome of a ledger write.
type LedgerEvent struct {
	TransactionID domain.TransactionID
	Err           error
	At            time.Time
}

func (LedgerEvent) Kind() Kind { return KindLedger }

// Urgency ranks outbound notifications.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// ReminderEvent asks for a notification to the parties a transaction waits on.
type ReminderEvent struct {
	TransactionID domain.TransactionID
	Name          string
	Recipients    []domain.PartyID
	State         models.State
	TimeoutAt     time.Time
	Final         bool
	Urgency       Urgency
	At            time.Time
}

func (ReminderEvent) Kind() Kind { return KindReminder }

// StopEvent is emitted when an emergency stop is triggered.
type StopEvent struct {
	StopID     domain.StopID
	Trigger    string
	Severity   string
	Reason     string
	Actor      domain.PartyID
	Affected   []domain.TransactionID
	Recipients []domain.PartyID
	At         time.Time
}

func (StopEvent) Kind() Kind { return KindStopTriggered }

// ResumeEvent is emitted when transactions leave an emergency stop.
type ResumeEvent struct {
	StopID      domain.StopID
	Actor       domain.PartyID
	Resumed     []domain.TransactionID
	Reinstated  []domain.TransactionID
	StopCleared bool
	At          time.Time
}

func (ResumeEvent) Kind() Kind { return KindStopResumed }

// DisputeOpenedEvent is emitted once per dispute.
type DisputeOpenedEvent struct {
	DisputeID     domain.DisputeID
	TransactionID domain.TransactionID
	RaisedBy      domain.PartyID
	Automatic     bool
	Reason        string
	At            time.Time
}

func (DisputeOpenedEvent) Kind() Kind { return KindDisputeOpened }

// DisputeResolvedEvent carries what the trust ledger needs to reward the
// winner and penalize a false claim.
type DisputeResolvedEvent struct {
	DisputeID     domain.DisputeID
	TransactionID domain.TransactionID
	Outcome       string
	Winner        domain.PartyID
	Loser         domain.PartyID
	RaisedBy      domain.PartyID
	ResolvedBy    domain.PartyID
	At            time.Time
}

func (DisputeResolvedEvent) Kind() Kind { return KindDisputeResolved }

// TrustAdjustedEvent is emitted by the trust ledger after every adjustment.
type TrustAdjustedEvent struct {
	Party         domain.PartyID
	EventType     string
	Delta         float64
	Applied       float64
	Score         float64
	TransactionID domain.TransactionID
	Reset         bool
	Actor         domain.PartyID
	At            time.Time
}

func (TrustAdjustedEvent) Kind() Kind { return KindTrustAdjusted }
