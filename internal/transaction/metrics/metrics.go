package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the coordinator.
type Metrics struct {
	// Applied transitions by target state and cause
	Transitions *prometheus.CounterVec

	// Rejected requests by error code
	Rejections *prometheus.CounterVec

	// Ledger writes by result ("ok", "failed")
	LedgerWrites *prometheus.CounterVec

	// Time spent inside a transition request, lock wait included
	TransitionLatency prometheus.Histogram
}

// New registers the coordinator metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "twocheck_transitions_total",
			Help: "Applied state transitions by target state and cause",
		}, []string{"to", "cause"}),

		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "twocheck_transition_rejections_total",
			Help: "Rejected transition requests by error code",
		}, []string{"code"}),

		LedgerWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "twocheck_ledger_writes_total",
			Help: "Ledger record attempts by result",
		}, []string{"result"}),

		TransitionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "twocheck_transition_duration_seconds",
			Help:    "Duration of transition requests including lock wait",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementTransition(to, cause string) {
	if m != nil {
		m.Transitions.WithLabelValues(to, cause).Inc()
	}
}

func (m *Metrics) IncrementRejection(code string) {
	if m != nil {
		m.Rejections.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) IncrementLedgerWrite(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.LedgerWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveTransitionLatency(d time.Duration) {
	if m != nil {
		m.TransitionLatency.Observe(d.Seconds())
	}
}
