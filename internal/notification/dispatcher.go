package notification

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HBlackfoxx/luxury-supply-chain-sub004/internal/events"
	"github.com/HBlackfoxx/luxury-supply-chain-sub004/pkg/domain"
)

// Dispatcher maps domain events to notifications.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	sent     *prometheus.CounterVec
	failed   *prometheus.CounterVec
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithRegisterer enables delivery counters.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(d *Dispatcher) {
		f := promauto.With(reg)
		d.sent = f.NewCounterVec(prometheus.CounterOpts{
			Name: "twocheck_notifications_sent_total",
			Help: "Notifications handed to the delivery collaborator by kind",
		}, []string{"kind"})
		d.failed = f.NewCounterVec(prometheus.CounterOpts{
			Name: "twocheck_notifications_failed_total",
			Help: "Notifications the delivery collaborator rejected by kind",
		}, []string{"kind"})
	}
}

func NewDispatcher(notifier Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{notifier: notifier, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleEvent is an events.Handler. It always returns nil: failures stop at
// this boundary.
func (d *Dispatcher) HandleEvent(ctx context.Context, e events.Event) error {
	n, ok := toNotification(e)
	if !ok {
		return nil
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		if d.failed != nil {
			d.failed.WithLabelValues(n.Kind).Inc()
		}
		d.logger.WarnContext(ctx, "notification delivery failed",
			"kind", n.Kind,
			"transaction_id", n.TransactionID,
			"stop_id", n.StopID,
			"error", err,
		)
		return nil
	}
	if d.sent != nil {
		d.sent.WithLabelValues(n.Kind).Inc()
	}
	return nil
}

func toNotification(e events.Event) (Notification, bool) {
	switch ev := e.(type) {
	case events.ReminderEvent:
		return Notification{
			Kind:          "reminder",
			TransactionID: ev.TransactionID.String(),
			Recipients:    ev.Recipients,
			Urgency:       ev.Urgency,
			Payload: map[string]string{
				"reminder":   ev.Name,
				"state":      string(ev.State),
				"timeout_at": ev.TimeoutAt.UTC().Format(time.RFC3339),
				"final":      strconv.FormatBool(ev.Final),
			},
			At: ev.At,
		}, true
	case events.StopEvent:
		return Notification{
			Kind:       "emergency_stop",
			StopID:     ev.StopID.String(),
			Recipients: ev.Recipients,
			Urgency:    urgencyForSeverity(ev.Severity),
			Payload: map[string]string{
				"trigger":  ev.Trigger,
				"severity": ev.Severity,
				"reason":   ev.Reason,
				"affected": strconv.Itoa(len(ev.Affected)),
			},
			At: ev.At,
		}, true
	case events.ResumeEvent:
		return Notification{
			Kind:    "emergency_resume",
			StopID:  ev.StopID.String(),
			Urgency: events.UrgencyNormal,
			Payload: map[string]string{
				"resumed":      strconv.Itoa(len(ev.Resumed)),
				"stop_cleared": strconv.FormatBool(ev.StopCleared),
			},
			At: ev.At,
		}, true
	case events.DisputeOpenedEvent:
		return Notification{
			Kind:          "dispute_opened",
			TransactionID: ev.TransactionID.String(),
			Recipients:    []domain.PartyID{ev.RaisedBy},
			Urgency:       events.UrgencyHigh,
			Payload: map[string]string{
				"dispute_id": ev.DisputeID.String(),
				"automatic":  strconv.FormatBool(ev.Automatic),
				"reason":     ev.Reason,
			},
			At: ev.At,
		}, true
	}
	return Notification{}, false
}

func urgencyForSeverity(severity string) events.Urgency {
	switch severity {
	case "critical":
		return events.UrgencyCritical
	case "high":
		return events.UrgencyHigh
	case "low":
		return events.UrgencyLow
	}
	return events.UrgencyNormal
}
