package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Checks: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "healthtrack_ratelimit_checks_total",
			Help: "Rate limit checks on authentication endpoints by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveCheck records outcome: allowed, limited or error.
func (m *Metrics) ObserveCheck(outcome string) {
	m.Checks.WithLabelValues(outcome).Inc()
}
