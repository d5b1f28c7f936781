package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "healthtrack/pkg/platform/audit"
)

// Metrics holds Prometheus metrics for compliance audit emission.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers the compliance audit metrics with the default registry.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewMetricsWithRegistry registers the metrics with reg. Tests pass a fresh
// registry to avoid duplicate registration panics.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_audit_compliance_emitted_total",
			Help: "Total number of compliance audit events written to the outbox",
		}, []string{"action"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "healthtrack_audit_compliance_persist_failures_total",
			Help: "Total number of compliance audit writes that failed and aborted their operation",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthtrack_audit_compliance_persist_duration_seconds",
			Help:    "Time spent writing compliance audit events to the outbox",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// IncEventsEmitted increments the emitted counter for action.
func (m *Metrics) IncEventsEmitted(action audit.AuditEvent) {
	m.EventsEmitted.WithLabelValues(string(action)).Inc()
}

// IncPersistFailures increments the persist failures counter.
func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

// ObservePersistDuration records how long an outbox write took.
func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}
