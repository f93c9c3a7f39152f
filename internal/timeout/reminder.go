package timeout

import (
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/transaction/models"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// Reminder is one scheduled nudge.
type Reminder struct {
	Name       string
	At         time.Time
	Recipients []domain.PartyID
	Final      bool
	Sent       bool
}

// Schedule is the reminder plan for one transaction phase. It is rebuilt
// whenever the state or deadline changes; Matches detects that.
type Schedule struct {
	TransactionID domain.TransactionID
	State         models.State
	TimeoutAt     time.Time
	Entries       []Reminder
}

// Recipients resolves who is reminded in a given state.
func Recipients(tx *models.Transaction) []domain.PartyID {
	switch tx.State {
	case models.StateCreated:
		return []domain.PartyID{tx.Sender}
	case models.StateSent:
		return []domain.PartyID{tx.Receiver}
	case models.StateDisputed:
		return []domain.PartyID{tx.Sender, tx.Receiver}
	}
	return nil
}

// BuildSchedule derives reminders from tx's deadline. The last configured
// lead time is the final reminder. Entries that would fire before the current
// phase began are dropped.
func (p *Policy) BuildSchedule(tx *models.Transaction) *Schedule {
	s := &Schedule{TransactionID: tx.ID, State: tx.State, TimeoutAt: tx.TimeoutAt}
	recipients := Recipients(tx)
	if len(recipients) == 0 {
		return s
	}
	phaseStart := tx.PhaseStart()
	for i, lt := range p.Reminders {
		at := tx.TimeoutAt.Add(-lt.Lead)
		if at.Before(phaseStart) {
			continue
		}
		s.Entries = append(s.Entries, Reminder{
			Name:       lt.Name,
			At:         at,
			Recipients: recipients,
			Final:      i == len(p.Reminders)-1,
		})
	}
	return s
}

// Matches reports whether the schedule was built for tx's current phase.
func (s *Schedule) Matches(tx *models.Transaction) bool {
	return s != nil && s.State == tx.State && s.TimeoutAt.Equal(tx.TimeoutAt)
}

// Due returns unsent entries whose time has come.
func (s *Schedule) Due(now time.Time) []*Reminder {
	var due []*Reminder
	for i := range s.Entries {
		r := &s.Entries[i]
		if !r.Sent && !now.Before(r.At) {
			due = append(due, r)
		}
	}
	return due
}
