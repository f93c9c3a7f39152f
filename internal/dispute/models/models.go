package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

type Outcome string

const (
	OutcomeFavorSender   Outcome = "favor_sender"
	OutcomeFavorReceiver Outcome = "favor_receiver"
	OutcomeSplit         Outcome = "split"
	// OutcomeCancelled closes a dispute by cancelling the transfer with no
	// winner.
	OutcomeCancelled Outcome = "cancelled"
)

// ParseOutcome accepts the outcomes a reviewer may choose.
func ParseOutcome(raw string) (Outcome, error) {
	switch o := Outcome(raw); o {
	case OutcomeFavorSender, OutcomeFavorReceiver, OutcomeSplit:
		return o, nil
	}
	return "", fmt.Errorf("unknown dispute outcome %q", raw)
}

type Evidence struct {
	Ref         string
	SubmittedBy domain.PartyID
	At          time.Time
}

type Resolution struct {
	Outcome    Outcome
	ResolvedBy domain.PartyID
	Note       string
	At         time.Time
}

// Dispute is a disagreement between the parties of one transaction.
type Dispute struct {
	ID            domain.DisputeID
	TransactionID domain.TransactionID
	RaisedBy      domain.PartyID
	Automatic     bool
	Reason        string
	Evidence      []Evidence
	Status        Status
	OpenedAt      time.Time
	ReviewedAt    *time.Time
	EscalatedAt   *time.Time
	Resolution    *Resolution
}

// IsOpen reports whether the dispute still awaits a resolution.
func (d *Dispute) IsOpen() bool {
	return d.Status == StatusOpen || d.Status == StatusInvestigating
}

// Overdue reports whether the dispute has outlived grace without an
// escalation.
func (d *Dispute) Overdue(now time.Time, grace time.Duration) bool {
	return d.IsOpen() && d.EscalatedAt == nil && !now.Before(d.OpenedAt.Add(grace))
}

func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	c := *d
	c.Evidence = slices.Clone(d.Evidence)
	if d.ReviewedAt != nil {
		t := *d.ReviewedAt
		c.ReviewedAt = &t
	}
	if d.EscalatedAt != nil {
		t := *d.EscalatedAt
		c.EscalatedAt = &t
	}
	if d.Resolution != nil {
		r := *d.Resolution
		c.Resolution = &r
	}
	return &c
}
