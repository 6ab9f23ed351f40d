// Package metrics exposes Prometheus metrics for the registry service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	submissions *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	refreshRuns *prometheus.CounterVec
	revisions   prometheus.Counter

	registry *prometheus.Registry
}

// New creates a metrics instance with all service metrics registered
// on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raido_metadata_submissions_total",
				Help: "Metadata submissions by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		fetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raido_remote_fetch_errors_total",
				Help: "Remote metadata fetch failures by reason",
			},
			[]string{"reason"},
		),
		refreshRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raido_metarefresh_runs_total",
				Help: "Background refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		revisions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "raido_metadata_revisions_total",
				Help: "Total metadata revisions written",
			},
		),
		registry: registry,
	}

	registry.MustRegister(m.submissions, m.fetchErrors, m.refreshRuns, m.revisions)
	return m
}

// Submission outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// RecordSubmission counts a metadata submission.
func (m *Metrics) RecordSubmission(source, outcome string) {
	m.submissions.WithLabelValues(source, outcome).Inc()
}

// RecordFetchError counts a remote fetch failure.
func (m *Metrics) RecordFetchError(reason string) {
	m.fetchErrors.WithLabelValues(reason).Inc()
}

// RecordRefresh counts a background refresh attempt.
func (m *Metrics) RecordRefresh(outcome string) {
	m.refreshRuns.WithLabelValues(outcome).Inc()
}

// RecordRevision counts a written revision.
func (m *Metrics) RecordRevision() {
	m.revisions.Inc()
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
