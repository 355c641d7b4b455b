// Package observability holds the Prometheus counters recorded while widgets
// are edited and committed.
//
// All methods are safe on a nil *Metrics, so callers that run without
// metrics never need to check.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================================
// METRIC DEFINITIONS
// ============================================================================

const metricsNamespace = "widgetkit"

// Metrics is the set of widgetkit collectors.
type Metrics struct {
	// EditsTotal counts applied edits.
	// Labels: report, kind (value, exclude, partial, custom_field, metadata, remove)
	EditsTotal *prometheus.CounterVec

	// CascadesTotal counts cascade rules that changed a state.
	// Labels: rule
	CascadesTotal *prometheus.CounterVec

	// ValidationFailuresTotal counts failed validation results.
	// Labels: report, key
	ValidationFailuresTotal *prometheus.CounterVec

	// CommitsTotal counts notifications handed to the state container.
	// Labels: mode (immediate, debounced, flush), status (success, error)
	CommitsTotal *prometheus.CounterVec

	// CommitLatencySeconds measures how long the notifier took.
	CommitLatencySeconds prometheus.Histogram

	// TableFetchesTotal counts table schema fetches.
	// Labels: status (success, error)
	TableFetchesTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		EditsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "edits_total",
			Help:      "Widget edits applied by report type and kind",
		}, []string{"report", "kind"}),
		CascadesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "cascades_total",
			Help:      "Cascade rules that changed a widget state",
		}, []string{"rule"}),
		ValidationFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "validation_failures_total",
			Help:      "Failed validation results by report type and key",
		}, []string{"report", "key"}),
		CommitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "commits_total",
			Help:      "State container notifications by mode and status",
		}, []string{"mode", "status"}),
		CommitLatencySeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "commit_latency_seconds",
			Help:      "Time spent in the state container notifier",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		TableFetchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "table",
			Name:      "fetches_total",
			Help:      "Table schema fetches by status",
		}, []string{"status"}),
	}
}

// ============================================================================
// RECORDING
// ============================================================================

// ObserveEdit counts one edit.
func (m *Metrics) ObserveEdit(report, kind string) {
	if m == nil {
		return
	}
	m.EditsTotal.WithLabelValues(report, kind).Inc()
}

// ObserveCascade counts one fired cascade rule.
func (m *Metrics) ObserveCascade(rule string) {
	if m == nil {
		return
	}
	m.CascadesTotal.WithLabelValues(rule).Inc()
}

// ObserveValidationFailure counts one failed validation result.
func (m *Metrics) ObserveValidationFailure(report, key string) {
	if m == nil {
		return
	}
	m.ValidationFailuresTotal.WithLabelValues(report, key).Inc()
}

// ObserveCommit records a notifier call.
func (m *Metrics) ObserveCommit(mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(mode, status(err)).Inc()
	m.CommitLatencySeconds.Observe(d.Seconds())
}

// ObserveTableFetch records a table schema fetch.
func (m *Metrics) ObserveTableFetch(err error) {
	if m == nil {
		return
	}
	m.TableFetchesTotal.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
