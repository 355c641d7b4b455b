package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestObserveEdit(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveEdit("tickets_report", "value")
	m.ObserveEdit("tickets_report", "value")
	m.ObserveEdit("tickets_report", "exclude")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EditsTotal.WithLabelValues("tickets_report", "value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EditsTotal.WithLabelValues("tickets_report", "exclude")))
}

func TestObserveCommitStatus(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveCommit("debounced", time.Millisecond, nil)
	m.ObserveCommit("debounced", time.Millisecond, errors.New("disk full"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("debounced", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("debounced", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEdit("r", "value")
		m.ObserveCascade("rule")
		m.ObserveValidationFailure("r", "weights")
		m.ObserveCommit("immediate", 0, nil)
		m.ObserveTableFetch(nil)
	})
}
