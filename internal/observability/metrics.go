// Package observability exposes prometheus instrumentation for the
// orchestrator. Dashboards are out of scope; only the raw counters live here.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for connect attempts.
const (
	OutcomeAlreadyConnected   = "already_connected"
	OutcomeAuthURLIssued      = "auth_url_issued"
	OutcomeOpenCodeIssued     = "open_code_issued"
	OutcomeConnected          = "connected"
	OutcomeCredentialsMissing = "credentials_missing"
	OutcomeVerificationFailed = "verification_failed"
	OutcomeError              = "error"
)

// Metrics holds the orchestrator's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	ConnectAttempts *prometheus.CounterVec
	CatalogReads    prometheus.Counter
	CallbackResults *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integrator_connect_attempts_total",
			Help: "Connect dispatches by provider and outcome.",
		}, []string{"provider", "outcome"}),
		CatalogReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "integrator_catalog_reads_total",
			Help: "Catalog list and get requests served.",
		}),
		CallbackResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integrator_oauth_callbacks_total",
			Help: "OAuth callback receptions by provider and result.",
		}, []string{"provider", "result"}),
	}

	registry.MustRegister(m.ConnectAttempts, m.CatalogReads, m.CallbackResults)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordConnect counts one connect dispatch. Nil-safe so callers can run
// without metrics in tests.
func (m *Metrics) RecordConnect(provider, outcome string) {
	if m == nil {
		return
	}
	m.ConnectAttempts.WithLabelValues(provider, outcome).Inc()
}

// RecordCatalogRead counts one catalog read.
func (m *Metrics) RecordCatalogRead() {
	if m == nil {
		return
	}
	m.CatalogReads.Inc()
}

// RecordCallback counts one callback reception.
func (m *Metrics) RecordCallback(provider, result string) {
	if m == nil {
		return
	}
	m.CallbackResults.WithLabelValues(provider, result).Inc()
}
