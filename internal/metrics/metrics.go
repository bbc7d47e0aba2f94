// Package metrics defines the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	// Operations counts account operations by name and outcome kind.
	Operations *prometheus.CounterVec
	// TokensRevoked counts bearer tokens removed by logout and soft delete.
	TokensRevoked prometheus.Counter
	// APILatency measures HTTP request latencies.
	APILatency *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_operations_total",
			Help: "Total number of account operations by outcome",
		}, []string{"operation", "outcome"}),
		TokensRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "accounts_tokens_revoked_total",
			Help: "Total number of revoked bearer tokens",
		}),
		APILatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accounts_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// Observe records one finished operation. A nil receiver is a no-op.
func (m *Metrics) Observe(operation, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// Revoked adds n revoked tokens.
func (m *Metrics) Revoked(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensRevoked.Add(float64(n))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
