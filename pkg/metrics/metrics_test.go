package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCollector_Record(t *testing.T) {
	c := NewCollector()

	c.RecordProcessed(int64(10 * time.Millisecond))
	c.RecordProcessed(int64(30 * time.Millisecond))
	c.RecordIteration()
	c.RecordIteration()
	c.RecordIteration()
	c.RecordError()

	m := c.GetMetrics()
	assert.Equal(t, int64(2), m.TotalProcessed)
	assert.Equal(t, int64(3), m.TotalIterations)
	assert.Equal(t, int64(1), m.TotalErrors)
	assert.Equal(t, 20*time.Millisecond, c.AverageProcessingTime())
	assert.InDelta(t, 33.33, c.ErrorRate(), 0.01)
}

func TestDefaultCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.RecordProcessed(5)
	c.RecordError()

	c.Reset()

	assert.Equal(t, Metrics{}, c.GetMetrics())
	assert.Zero(t, c.AverageProcessingTime())
	assert.Zero(t, c.ErrorRate())
}

func TestNoOpCollector(t *testing.T) {
	var c Collector = NoOpCollector{}
	c.RecordProcessed(5)
	c.RecordIteration()

	assert.Equal(t, Metrics{}, c.GetMetrics())
}

func TestPrometheusCollector_Record(t *testing.T) {
	registry := prometheus.NewRegistry()
	c, err := NewPrometheusCollector(registry, "orders")
	require.NoError(t, err)

	c.RecordProcessed(int64(time.Millisecond))
	c.RecordIteration()
	c.RecordIteration()
	c.RecordError()

	assert.Equal(t, float64(1), testutil.ToFloat64(c.processed))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.iterations))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.errors))
	assert.Equal(t, int64(2), c.GetMetrics().TotalIterations)

	count, err := testutil.GatherAndCount(registry, "foreach_process_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusCollector_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewPrometheusCollector(registry, "orders")
	require.NoError(t, err)

	_, err = NewPrometheusCollector(registry, "orders")

	assert.Error(t, err)
}
