package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports stage activity as Prometheus metrics and
// keeps an in-memory snapshot for GetMetrics.
type PrometheusCollector struct {
	local *DefaultCollector

	processed  prometheus.Counter
	iterations prometheus.Counter
	errors     prometheus.Counter
	duration   prometheus.Histogram
}

// NewPrometheusCollector creates a collector for the named stage and
// registers its metrics with registerer.
func NewPrometheusCollector(registerer prometheus.Registerer, stage string) (*PrometheusCollector, error) {
	labels := prometheus.Labels{"stage": stage}
	c := &PrometheusCollector{
		local: NewCollector(),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "foreach",
			Name:        "messages_processed_total",
			Help:        "Messages that completed their iteration",
			ConstLabels: labels,
		}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "foreach",
			Name:        "iterations_total",
			Help:        "Sub-messages routed through the inner chain",
			ConstLabels: labels,
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "foreach",
			Name:        "errors_total",
			Help:        "Failed foreach invocations",
			ConstLabels: labels,
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "foreach",
			Name:        "process_duration_seconds",
			Help:        "Duration of successful foreach invocations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}

	for _, collector := range []prometheus.Collector{c.processed, c.iterations, c.errors, c.duration} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordProcessed implements Collector.
func (c *PrometheusCollector) RecordProcessed(durationNs int64) {
	c.local.RecordProcessed(durationNs)
	c.processed.Inc()
	c.duration.Observe(time.Duration(durationNs).Seconds())
}

// RecordIteration implements Collector.
func (c *PrometheusCollector) RecordIteration() {
	c.local.RecordIteration()
	c.iterations.Inc()
}

// RecordError implements Collector.
func (c *PrometheusCollector) RecordError() {
	c.local.RecordError()
	c.errors.Inc()
}

// GetMetrics implements Collector.
func (c *PrometheusCollector) GetMetrics() Metrics {
	return c.local.GetMetrics()
}

// Reset resets the in-memory snapshot. Prometheus counters are monotonic
// and are not reset.
func (c *PrometheusCollector) Reset() {
	c.local.Reset()
}

var _ Collector = (*PrometheusCollector)(nil)
