package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers submissions and reviews in the KYC pipeline.
type Metrics struct {
	Submissions        *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	Conflicts          prometheus.Counter
	TransitionDuration prometheus.Histogram
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_kyc_submissions_total",
			Help: "KYC submissions by result (created, invalid, duplicate, failed)",
		}, []string{"result"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_kyc_transitions_total",
			Help: "KYC review attempts by action and outcome",
		}, []string{"action", "outcome"}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "healthtrack_kyc_transition_conflicts_total",
			Help: "KYC reviews that lost an optimistic concurrency race",
		}),
		TransitionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthtrack_kyc_transition_duration_seconds",
			Help:    "Duration of verify and reject operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncSubmission(result string) {
	m.Submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) IncTransition(action, outcome string) {
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) IncConflict() {
	m.Conflicts.Inc()
}

func (m *Metrics) ObserveTransition(start time.Time) {
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}
