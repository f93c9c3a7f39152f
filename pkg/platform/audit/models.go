package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so stores
// can apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers state changes with contractual significance:
	// transitions, ledger writes, dispute resolutions.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers emergency stops, resumes and authorization failures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers reminders and trust adjustments.
	CategoryOperations EventCategory = "operations"
)

// Entity names the kind of record an event is about.
type Entity string

const (
	EntityTransaction Entity = "transaction"
	EntityParty       Entity = "party"
	EntityStop        Entity = "emergency_stop"
	EntityDispute     Entity = "dispute"
)

// Event is one appendable audit record: who did what to which entity, when.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Actor     string
	Action    string
	Entity    Entity
	EntityID  string
	Detail    map[string]string
}

type AuditEvent string

const (
	EventTransitionApplied AuditEvent = "transition_applied"
	EventLedgerRecorded    AuditEvent = "ledger_recorded"
	EventLedgerFailed      AuditEvent = "ledger_failed"
	EventTrustAdjusted     AuditEvent = "trust_adjusted"
	EventTrustReset        AuditEvent = "trust_reset"
	EventStopTriggered     AuditEvent = "emergency_stop_triggered"
	EventStopResumed       AuditEvent = "emergency_stop_resumed"
	EventStopCleared       AuditEvent = "emergency_stop_cleared"
	EventDisputeOpened     AuditEvent = "dispute_opened"
	EventDisputeResolved   AuditEvent = "dispute_resolved"
	EventReminderSent      AuditEvent = "reminder_sent"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventTransitionApplied: CategoryCompliance,
	EventLedgerRecorded:    CategoryCompliance,
	EventLedgerFailed:      CategoryCompliance,
	EventDisputeOpened:     CategoryCompliance,
	EventDisputeResolved:   CategoryCompliance,

	EventStopTriggered: CategorySecurity,
	EventStopResumed:   CategorySecurity,
	EventStopCleared:   CategorySecurity,
	EventTrustReset:    CategorySecurity,

	EventTrustAdjusted: CategoryOperations,
	EventReminderSent:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Filter narrows a List query. Zero fields match everything.
type Filter struct {
	Entity   Entity
	EntityID string
	Actor    string
	Since    time.Time
	Limit    int
}

// Matches reports whether the event satisfies the filter (Limit is applied by stores).
func (f Filter) Matches(e Event) bool {
	if f.Entity != "" && e.Entity != f.Entity {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Store persists audit events. Append is the only write; records are never
// updated or deleted.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
}
