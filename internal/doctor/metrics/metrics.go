package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the doctor approval gate.
type Metrics struct {
	Decisions        *prometheus.CounterVec
	Conflicts        prometheus.Counter
	DecisionDuration prometheus.Histogram
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_doctor_decisions_total",
			Help: "Doctor approval decisions by decision and result",
		}, []string{"decision", "result"}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "healthtrack_doctor_decision_conflicts_total",
			Help: "Doctor decisions that lost an optimistic concurrency race",
		}),
		DecisionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthtrack_doctor_decision_duration_seconds",
			Help:    "Duration of approve and reject operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncDecision records an outcome: "applied", "noop" or "failed".
func (m *Metrics) IncDecision(decision, result string) {
	m.Decisions.WithLabelValues(decision, result).Inc()
}

func (m *Metrics) IncConflict() {
	m.Conflicts.Inc()
}

func (m *Metrics) ObserveDecision(start time.Time) {
	m.DecisionDuration.Observe(time.Since(start).Seconds())
}
