// Package audit turns coordinator events into append-only audit records.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
	audit "github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/platform/audit"
)

// Emitter is satisfied by the audit publisher.
type Emitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Recorder subscribes to the event bus and emits one audit record per event.
type Recorder struct {
	emitter Emitter
	logger  *slog.Logger
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func New(emitter Emitter, opts ...Option) (*Recorder, error) {
	if emitter == nil {
		return nil, errors.New("audit emitter is required")
	}
	r := &Recorder{emitter: emitter, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Kinds lists the event kinds the recorder handles.
func Kinds() []events.Kind {
	return []events.Kind{
		events.KindTransition,
		events.KindLedger,
		events.KindReminder,
		events.KindStopTriggered,
		events.KindStopResumed,
		events.KindDisputeOpened,
		events.KindDisputeResolved,
		events.KindTrustAdjusted,
	}
}

func (r *Recorder) HandleEvent(ctx context.Context, e events.Event) error {
	record, ok := toRecord(e)
	if !ok {
		return nil
	}
	if err := r.emitter.Emit(ctx, record); err != nil {
		return fmt.Errorf("emit audit %s: %w", record.Action, err)
	}
	return nil
}

func toRecord(e events.Event) (audit.Event, bool) {
	switch ev := e.(type) {
	case events.TransitionEvent:
		if ev.Transaction == nil {
			return audit.Event{}, false
		}
		detail := map[string]string{
			"from":  string(ev.From),
			"to":    string(ev.To),
			"cause": string(ev.Cause),
		}
		if ev.StepOwner != "" {
			detail["step_owner"] = string(ev.StepOwner)
			detail["overage"] = ev.Overage.String()
		}
		return audit.Event{
			Timestamp: ev.At,
			Actor:     string(ev.Actor),
			Action:    string(audit.EventTransitionApplied),
			Entity:    audit.EntityTransaction,
			EntityID:  ev.Transaction.ID.String(),
			Detail:    detail,
		}, true

	case events.LedgerEvent:
		out := audit.Event{
			Timestamp: ev.At,
			Actor:     string(domain.SystemActorID),
			Action:    string(audit.EventLedgerRecorded),
			Entity:    audit.EntityTransaction,
			EntityID:  ev.TransactionID.String(),
		}
		if ev.Err != nil {
			out.Action = string(audit.EventLedgerFailed)
			out.Detail = map[string]string{"error": ev.Err.Error()}
		}
		return out, true

	case events.ReminderEvent:
		return audit.Event{
			Timestamp: ev.At,
			Actor:     string(domain.SystemActorID),
			Action:    string(audit.EventReminderSent),
			Entity:    audit.EntityTransaction,
			EntityID:  ev.TransactionID.String(),
			Detail: map[string]string{
				"reminder":   ev.Name,
				"state":      string(ev.State),
				"urgency":    string(ev.Urgency),
				"recipients": joinParties(ev.Recipients),
			},
		}, true

	case events.StopEvent:
		return audit.Event{
			Timestamp: ev.At,
			Actor:     string(ev.Actor),
			Action:    string(audit.EventStopTriggered),
			Entity:    audit.EntityStop,
			EntityID:  ev.StopID.String(),
			Detail: map[string]string{
				"trigger":  ev.Trigger,
				"severity": ev.Severity,
				"reason":   ev.Reason,
				"affected": strconv.Itoa(len(ev.Affected)),
			},
		}, true

	case events.ResumeEvent:
		action := audit.EventStopResumed
		if ev.StopCleared {
			action = audit.EventStopCleared
		}
		return audit.Event{
			Timestamp: ev.At,
			Actor:     string(ev.Actor),
			Action:    string(action),
			Entity:    audit.EntityStop,
			EntityID:  ev.StopID.String(),
			Detail: map[string]string{
				"resumed":    strconv.Itoa(len(ev.Resumed)),
				"reinstated": strconv.Itoa(len(ev.Reinstated)),
			},
		}, true

	case events.DisputeOpenedEvent:
		return audit.Event{
			Timestamp: ev.At,
			Actor:     string(ev.RaisedBy),
			Action:    string(audit.EventDisputeOpened),
			Entity:    audit.EntityDispute,
			EntityID:  ev.DisputeID.String(),
			Detail: map[string]string{
				"transaction_id": ev.TransactionID.String(),
				"automatic":      strconv.FormatBool(ev.Automatic),
				"reason":         ev.Reason,
			},
		}, true

	case events.DisputeResolvedEvent:
		return audit.Event{
			Timestamp: ev.At,
			Actor:     string(ev.ResolvedBy),
			Action:    string(audit.EventDisputeResolved),
			Entity:    audit.EntityDispute,
			EntityID:  ev.DisputeID.String(),
			Detail: map[string]string{
				"transaction_id": ev.TransactionID.String(),
				"outcome":        ev.Outcome,
				"winner":         string(ev.Winner),
			},
		}, true

	case events.TrustAdjustedEvent:
		action := audit.EventTrustAdjusted
		if ev.Reset {
			action = audit.EventTrustReset
		}
		actor := ev.Actor
		if actor == "" {
			actor = domain.SystemActorID
		}
		return audit.Event{
			Timestamp: ev.At,
			Actor:     string(actor),
			Action:    string(action),
			Entity:    audit.EntityParty,
			EntityID:  string(ev.Party),
			Detail: map[string]string{
				"event_type": ev.EventType,
				"applied":    strconv.FormatFloat(ev.Applied, 'f', -1, 64),
				"score":      strconv.FormatFloat(ev.Score, 'f', -1, 64),
			},
		}, true
	}
	return audit.Event{}, false
}

func joinParties(parties []domain.PartyID) string {
	out := make([]string, len(parties))
	for i, p := range parties {
		out[i] = string(p)
	}
	return strings.Join(out, ",")
}
