// Package metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so tests can pass nil.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	operations  *prometheus.CounterVec
	escrowCents *prometheus.CounterVec
	expired     prometheus.Counter
	resolutions *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusquest_operations_total",
			Help: "Quest and dispute operations by outcome.",
		}, []string{"op", "outcome"}),
		escrowCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusquest_escrow_cents_total",
			Help: "Money moved through account balances, in minor units.",
		}, []string{"direction"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusquest_sweeper_expired_total",
			Help: "Quests expired by the sweeper.",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusquest_dispute_resolutions_total",
			Help: "Resolved disputes by policy.",
		}, []string{"resolution"}),
	}
	m.registry.MustRegister(
		m.operations, m.escrowCents, m.expired, m.resolutions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Observe counts one operation. outcome is "ok" or an error kind.
func (m *Metrics) Observe(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Moved(direction string, cents int64) {
	if m == nil || cents <= 0 {
		return
	}
	m.escrowCents.WithLabelValues(direction).Add(float64(cents))
}

func (m *Metrics) Expired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *Metrics) Resolved(resolution string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(resolution).Inc()
}
