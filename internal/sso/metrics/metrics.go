// Package metrics holds the Prometheus collectors exported on /v1/metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	// AuditRecords counts audit records by type and status (ok or error).
	AuditRecords *prometheus.CounterVec
	// HTTPRequests counts served requests by method, route pattern and code.
	HTTPRequests *prometheus.CounterVec
}

// New registers the collectors on a private registry, so tests can build as
// many as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AuditRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sso",
			Name:      "audit_records_total",
			Help:      "Audit records written, by type and outcome.",
		}, []string{"type", "status"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sso",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status code.",
		}, []string{"method", "route", "code"}),
	}

	m.registry.MustRegister(
		m.AuditRecords,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Audit records one written audit record. Safe on a nil receiver.
func (m *Metrics) Audit(auditType string, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.AuditRecords.WithLabelValues(auditType, status).Inc()
}

// Request records one served HTTP request. Safe on a nil receiver.
func (m *Metrics) Request(method, route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, code).Inc()
}
