package igd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by sessions. A nil
// *Metrics disables collection.
type Metrics struct {
	DiscoveryAttempts prometheus.Counter     // igd_discovery_attempts_total
	DiscoveryTimeouts prometheus.Counter     // igd_discovery_timeouts_total
	Actions           *prometheus.CounterVec // igd_actions_total{action,outcome}
}

// NewMetrics registers the collectors with registry, or with the default
// registry when registry is nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &Metrics{
		DiscoveryAttempts: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "igd_discovery_attempts_total",
			Help: "M-SEARCH requests sent",
		}),
		DiscoveryTimeouts: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "igd_discovery_timeouts_total",
			Help: "M-SEARCH attempts that received no reply in time",
		}),
		Actions: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "igd_actions_total",
			Help: "SOAP actions invoked on the gateway by outcome",
		}, []string{"action", "outcome"}),
	}
}

func (m *Metrics) attempt() {
	if m != nil {
		m.DiscoveryAttempts.Inc()
	}
}

func (m *Metrics) timeout() {
	if m != nil {
		m.DiscoveryTimeouts.Inc()
	}
}

func (m *Metrics) action(name string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Actions.WithLabelValues(name, outcome).Inc()
}
