package models

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// Transaction is the unit of consensus between a sender and a receiver.
type Transaction struct {
	ID       domain.TransactionID
	Sender   domain.PartyID
	Receiver domain.PartyID
	ItemRef  string
	Value    float64
	Metadata map[string]string

	CreatedAt time.Time
	// DeadlineAnchor is the instant deadlines are measured from. It starts at
	// CreatedAt and moves when an escalated transaction is reinstated.
	DeadlineAnchor time.Time
	TimeoutAt      time.Time

	State         State
	EscalatedFrom State

	SentConfirmation     *Confirmation
	ReceivedConfirmation *Confirmation
	LedgerRecorded       bool

	Version int64
	History []HistoryEntry
}

// Confirmation is one party's attestation of its half of the transfer.
type Confirmation struct {
	Actor       domain.PartyID
	At          time.Time
	Synthesized bool
}

// HistoryEntry records one applied transition.
type HistoryEntry struct {
	From     State
	To       State
	Actor    domain.PartyID
	At       time.Time
	Reason   string
	Evidence []string
	System   bool
}

// Validate checks the record-level invariants.
func (t *Transaction) Validate() error {
	if t.ID.IsNil() {
		return fmt.Errorf("transaction id is required")
	}
	if t.Sender == "" || t.Receiver == "" {
		return fmt.Errorf("sender and receiver are required")
	}
	if t.Sender == t.Receiver {
		return fmt.Errorf("sender and receiver must differ")
	}
	if t.Value < 0 {
		return fmt.Errorf("value must not be negative")
	}
	if !t.TimeoutAt.After(t.CreatedAt) {
		return fmt.Errorf("timeout deadline must be after creation")
	}
	if !t.State.IsValid() {
		return fmt.Errorf("unknown state %q", t.State)
	}
	return nil
}

// IsParty reports whether p is the sender or the receiver.
func (t *Transaction) IsParty(p domain.PartyID) bool {
	return p != "" && (p == t.Sender || p == t.Receiver)
}

// Counterparty returns the other side of the transfer.
func (t *Transaction) Counterparty(p domain.PartyID) domain.PartyID {
	if p == t.Sender {
		return t.Receiver
	}
	return t.Sender
}

// StepOwner is the party whose action the transaction is waiting on. The
// sender owns origination and dispatch, the receiver owns receipt and
// validation. Disputed and terminal transactions have no owner.
func (t *Transaction) StepOwner() domain.PartyID {
	return StepOwnerOf(t.State, t.Sender, t.Receiver)
}

func StepOwnerOf(s State, sender, receiver domain.PartyID) domain.PartyID {
	switch s {
	case StateInitiated, StateCreated:
		return sender
	case StateSent, StateReceived:
		return receiver
	}
	return ""
}

// PhaseStart is when the transaction entered its current state.
func (t *Transaction) PhaseStart() time.Time {
	if n := len(t.History); n > 0 {
		return t.History[n-1].At
	}
	return t.CreatedAt
}

// BothConfirmed reports whether both halves of the 2-Check are recorded.
func (t *Transaction) BothConfirmed() bool {
	return t.SentConfirmation != nil && t.ReceivedConfirmation != nil
}

// Apply moves the transaction to entry.To and appends entry to the history.
// Callers check the graph first.
func (t *Transaction) Apply(entry HistoryEntry) {
	entry.From = t.State
	if entry.To == StateEscalated {
		t.EscalatedFrom = t.State
	} else if t.State == StateEscalated {
		t.EscalatedFrom = ""
	}
	t.State = entry.To
	t.History = append(t.History, entry)
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	if t.SentConfirmation != nil {
		sc := *t.SentConfirmation
		c.SentConfirmation = &sc
	}
	if t.ReceivedConfirmation != nil {
		rc := *t.ReceivedConfirmation
		c.ReceivedConfirmation = &rc
	}
	if t.History != nil {
		c.History = make([]HistoryEntry, len(t.History))
		for i, h := range t.History {
			h.Evidence = slices.Clone(h.Evidence)
			c.History[i] = h
		}
	}
	return &c
}
