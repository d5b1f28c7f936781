package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts authorization decisions.
type Metrics struct {
	Decisions *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_authz_decisions_total",
			Help: "Authorization decisions by action, outcome and denial reason",
		}, []string{"action", "outcome", "reason"}),
	}
}

func (m *Metrics) ObserveDecision(action Action, d Decision) {
	outcome := "allow"
	if !d.Allowed {
		outcome = "deny"
	}
	m.Decisions.WithLabelValues(string(action), outcome, string(d.Reason)).Inc()
}
