package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("penalties:accrue").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("penalties:accrue").End(boom), boom)
	m.AddItems("penalties:accrue", "accrued", 3)
	m.AddItems("penalties:accrue", "accrued", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("penalties:accrue", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("penalties:accrue", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("penalties:accrue")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.items.WithLabelValues("penalties:accrue", "accrued")))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("penalties:accrue")), 0.0)
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	err := errors.New("x")
	assert.Equal(t, err, m.Track("any").End(err))
	m.AddItems("any", "k", 1)
}
