package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// Trigger records what started a stop.
type Trigger string

const (
	TriggerManual             Trigger = "manual"
	TriggerAutomaticThreshold Trigger = "automatic_threshold"
	TriggerAnomaly            Trigger = "anomaly"
	TriggerPropagation        Trigger = "propagation"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(raw string) (Severity, error) {
	switch s := Severity(raw); s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return s, nil
	}
	return "", fmt.Errorf("unknown severity %q", raw)
}

type Status string

const (
	StatusActive  Status = "active"
	StatusCleared Status = "cleared"
)

// HaltedTransaction is one transaction held by a stop. WasEscalated marks
// transactions that were already escalated when halted; resuming leaves
// those escalated.
type HaltedTransaction struct {
	TransactionID domain.TransactionID
	Sender        domain.PartyID
	Receiver      domain.PartyID
	WasEscalated  bool
	At            time.Time
}

// Stop is an emergency halt over a set of transactions.
type Stop struct {
	ID       domain.StopID
	Trigger  Trigger
	Reason   string
	Actor    domain.PartyID
	Severity Severity
	// Affected lists every transaction the stop ever held.
	Affected []domain.TransactionID
	Halted   []HaltedTransaction
	// HaltedParties is filled only when party-level halting is enabled.
	HaltedParties []domain.PartyID
	Status        Status
	CreatedAt     time.Time
	ClearedAt     *time.Time
}

func (s *Stop) IsActive() bool { return s.Status == StatusActive }

// Holds reports whether the stop currently halts id.
func (s *Stop) Holds(id domain.TransactionID) bool {
	_, ok := s.find(id)
	return ok
}

// Held returns the entry recorded for id.
func (s *Stop) Held(id domain.TransactionID) (HaltedTransaction, bool) {
	i, ok := s.find(id)
	if !ok {
		return HaltedTransaction{}, false
	}
	return s.Halted[i], true
}

func (s *Stop) find(id domain.TransactionID) (int, bool) {
	for i, h := range s.Halted {
		if h.TransactionID == id {
			return i, true
		}
	}
	return -1, false
}

// Involves reports whether party is a sender or receiver of a held
// transaction.
func (s *Stop) Involves(party domain.PartyID) bool {
	for _, h := range s.Halted {
		if h.Sender == party || h.Receiver == party {
			return true
		}
	}
	return false
}

// Hold adds h unless the transaction is already held.
func (s *Stop) Hold(h HaltedTransaction) {
	if s.Holds(h.TransactionID) {
		return
	}
	s.Halted = append(s.Halted, h)
	if !slices.Contains(s.Affected, h.TransactionID) {
		s.Affected = append(s.Affected, h.TransactionID)
	}
}

// Release removes id from the held set and returns the removed entry.
func (s *Stop) Release(id domain.TransactionID) (HaltedTransaction, bool) {
	i, ok := s.find(id)
	if !ok {
		return HaltedTransaction{}, false
	}
	h := s.Halted[i]
	s.Halted = slices.Delete(s.Halted, i, i+1)
	return h, true
}

// Parties returns the distinct parties of the held transactions.
func (s *Stop) Parties() []domain.PartyID {
	var out []domain.PartyID
	for _, h := range s.Halted {
		for _, p := range []domain.PartyID{h.Sender, h.Receiver} {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

func (s *Stop) Clone() *Stop {
	if s == nil {
		return nil
	}
	c := *s
	c.Affected = slices.Clone(s.Affected)
	c.Halted = slices.Clone(s.Halted)
	c.HaltedParties = slices.Clone(s.HaltedParties)
	if s.ClearedAt != nil {
		t := *s.ClearedAt
		c.ClearedAt = &t
	}
	return &c
}
