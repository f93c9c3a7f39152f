package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the scheduler loop.
type Metrics struct {
	Cycles        prometheus.Counter
	CycleDuration prometheus.Histogram
	// Ticks lost because a cycle outlasted the interval
	SkippedTicks prometheus.Counter
	Timeouts     prometheus.Counter
	Reminders    *prometheus.CounterVec
	WorkingSet   prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "twocheck_scheduler_cycles_total",
			Help: "Completed scheduler cycles",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "twocheck_scheduler_cycle_duration_seconds",
			Help:    "Duration of one scheduler cycle",
			Buckets: prometheus.DefBuckets,
		}),
		SkippedTicks: f.NewCounter(prometheus.CounterOpts{
			Name: "twocheck_scheduler_skipped_ticks_total",
			Help: "Ticks skipped because the previous cycle was still running",
		}),
		Timeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "twocheck_scheduler_timeouts_total",
			Help: "Transactions escalated for a missed deadline",
		}),
		Reminders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "twocheck_scheduler_reminders_total",
			Help: "Reminders dispatched by name",
		}, []string{"name"}),
		WorkingSet: f.NewGauge(prometheus.GaugeOpts{
			Name: "twocheck_scheduler_tracked_transactions",
			Help: "Non-terminal transactions tracked by the scheduler",
		}),
	}
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m != nil {
		m.Cycles.Inc()
		m.CycleDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) AddSkippedTicks(n int) {
	if m != nil {
		m.SkippedTicks.Add(float64(n))
	}
}

func (m *Metrics) IncrementTimeout() {
	if m != nil {
		m.Timeouts.Inc()
	}
}

func (m *Metrics) IncrementReminder(name string) {
	if m != nil {
		m.Reminders.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) SetWorkingSet(n int) {
	if m != nil {
		m.WorkingSet.Set(float64(n))
	}
}
