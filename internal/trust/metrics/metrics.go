package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the trust ledger.
type Metrics struct {
	Adjustments *prometheus.CounterVec
	// Clamped counts adjustments whose applied delta differs from the table.
	Clamped prometheus.Counter
}

// New registers the trust metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Adjustments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "twocheck_trust_adjustments_total",
			Help: "Trust score adjustments by event type",
		}, []string{"event_type"}),
		Clamped: f.NewCounter(prometheus.CounterOpts{
			Name: "twocheck_trust_adjustments_clamped_total",
			Help: "Trust adjustments cut short by the score bounds",
		}),
	}
}

func (m *Metrics) IncrementAdjustment(eventType string, clamped bool) {
	if m == nil {
		return
	}
	m.Adjustments.WithLabelValues(eventType).Inc()
	if clamped {
		m.Clamped.Inc()
	}
}
