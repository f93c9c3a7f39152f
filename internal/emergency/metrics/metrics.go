package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for emergency stops.
type Metrics struct {
	StopsTriggered *prometheus.CounterVec
	StopsCleared   prometheus.Counter
	// Transactions currently held by at least one stop entry
	HaltedTransactions prometheus.Gauge
	ScreeningFailures  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StopsTriggered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "twocheck_emergency_stops_total",
			Help: "Emergency stops triggered by trigger kind",
		}, []string{"trigger"}),
		StopsCleared: f.NewCounter(prometheus.CounterOpts{
			Name: "twocheck_emergency_stops_cleared_total",
			Help: "Emergency stops fully resumed",
		}),
		HaltedTransactions: f.NewGauge(prometheus.GaugeOpts{
			Name: "twocheck_emergency_halted_transactions",
			Help: "Halt entries held by active stops",
		}),
		ScreeningFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "twocheck_emergency_screening_failures_total",
			Help: "Screening runs where a trigger check failed",
		}),
	}
}

func (m *Metrics) IncrementTriggered(trigger string, halted int) {
	if m != nil {
		m.StopsTriggered.WithLabelValues(trigger).Inc()
		m.HaltedTransactions.Add(float64(halted))
	}
}

func (m *Metrics) RecordResume(released int, cleared bool) {
	if m == nil {
		return
	}
	m.HaltedTransactions.Sub(float64(released))
	if cleared {
		m.StopsCleared.Inc()
	}
}

func (m *Metrics) IncrementScreeningFailure() {
	if m != nil {
		m.ScreeningFailures.Inc()
	}
}
