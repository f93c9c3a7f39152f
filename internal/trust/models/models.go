package models

import (
	"math"
	"time"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// Points is a trust score in tenths of a point: 500 is 50.0. Fractional
// deltas such as +0.5 are exact and tier thresholds compare as integers.
type Points int64

const Scale = 10

// FromFloat converts a configured score or delta, rounding half away from zero.
func FromFloat(f float64) Points {
	return Points(math.Round(f * Scale))
}

func (p Points) Float() float64 {
	return float64(p) / Scale
}

// EventType names an adjustment in the delta table.
type EventType string

const (
	EventSuccessfulTransaction EventType = "successful_transaction"
	EventOnTimeConfirmation    EventType = "on_time_confirmation"
	EventDisputeWon            EventType = "dispute_won"
	EventTimeoutCaused         EventType = "timeout_caused"
	EventFalseClaim            EventType = "false_claim"
	EventReset                 EventType = "reset"
)

// Adjustment is one itemized history entry. Applied is the delta after
// clamping; Score is the running score once it was applied.
type Adjustment struct {
	EventType     EventType
	Delta         Points
	Applied       Points
	Score         Points
	At            time.Time
	TransactionID domain.TransactionID
	Actor         domain.PartyID
}

// Record is a party's score and its append-only history.
type Record struct {
	Party     domain.PartyID
	Score     Points
	History   []Adjustment
	UpdatedAt time.Time
}

// NewRecord starts a party at the initial score.
func NewRecord(party domain.PartyID, initial Points, now time.Time) *Record {
	return &Record{Party: party, Score: initial, UpdatedAt: now}
}

// Adjust applies delta to the running score, clamped to [0, max], and
// appends the history entry.
func (r *Record) Adjust(event EventType, delta, max Points, txID domain.TransactionID, now time.Time) Adjustment {
	next := clamp(r.Score+delta, max)
	adj := Adjustment{
		EventType:     event,
		Delta:         delta,
		Applied:       next - r.Score,
		Score:         next,
		At:            now,
		TransactionID: txID,
	}
	r.Score = next
	r.UpdatedAt = now
	r.History = append(r.History, adj)
	return adj
}

// Reset sets the score directly. It is the only non-delta write.
func (r *Record) Reset(to, max Points, actor domain.PartyID, now time.Time) Adjustment {
	next := clamp(to, max)
	adj := Adjustment{
		EventType: EventReset,
		Delta:     next - r.Score,
		Applied:   next - r.Score,
		Score:     next,
		At:        now,
		Actor:     actor,
	}
	r.Score = next
	r.UpdatedAt = now
	r.History = append(r.History, adj)
	return adj
}

func clamp(v, max Points) Points {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
