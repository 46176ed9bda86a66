// Package metrics records foreach stage activity.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of collected counters.
type Metrics struct {
	TotalProcessed   int64
	TotalIterations  int64
	TotalErrors      int64
	ProcessingTimeNs int64
}

// Collector records stage activity. Implementations must be safe for
// concurrent use.
type Collector interface {
	// RecordProcessed records a message that completed its iteration
	RecordProcessed(durationNs int64)
	// RecordIteration records one sub-message routed through the inner chain
	RecordIteration()
	// RecordError records a failed invocation
	RecordError()
	// GetMetrics returns the current metrics
	GetMetrics() Metrics
	// Reset resets all metrics
	Reset()
}

// DefaultCollector is an in-memory Collector.
type DefaultCollector struct {
	processed        atomic.Int64
	iterations       atomic.Int64
	errors           atomic.Int64
	totalProcessTime atomic.Int64
}

// NewCollector creates an in-memory collector.
func NewCollector() *DefaultCollector {
	return &DefaultCollector{}
}

// RecordProcessed implements Collector.
func (m *DefaultCollector) RecordProcessed(durationNs int64) {
	m.processed.Add(1)
	m.totalProcessTime.Add(durationNs)
}

// RecordIteration implements Collector.
func (m *DefaultCollector) RecordIteration() {
	m.iterations.Add(1)
}

// RecordError implements Collector.
func (m *DefaultCollector) RecordError() {
	m.errors.Add(1)
}

// GetMetrics implements Collector.
func (m *DefaultCollector) GetMetrics() Metrics {
	return Metrics{
		TotalProcessed:   m.processed.Load(),
		TotalIterations:  m.iterations.Load(),
		TotalErrors:      m.errors.Load(),
		ProcessingTimeNs: m.totalProcessTime.Load(),
	}
}

// Reset implements Collector.
func (m *DefaultCollector) Reset() {
	m.processed.Store(0)
	m.iterations.Store(0)
	m.errors.Store(0)
	m.totalProcessTime.Store(0)
}

// AverageProcessingTime returns the average processing time per message.
func (m *DefaultCollector) AverageProcessingTime() time.Duration {
	processed := m.processed.Load()
	if processed == 0 {
		return 0
	}
	return time.Duration(m.totalProcessTime.Load() / processed)
}

// ErrorRate returns the error rate as a percentage.
func (m *DefaultCollector) ErrorRate() float64 {
	processed := m.processed.Load()
	errors := m.errors.Load()
	total := processed + errors
	if total == 0 {
		return 0
	}
	return float64(errors) / float64(total) * 100
}

var _ Collector = (*DefaultCollector)(nil)

// NoOpCollector is a collector that does nothing.
type NoOpCollector struct{}

func (NoOpCollector) RecordProcessed(durationNs int64) {}
func (NoOpCollector) RecordIteration()                 {}
func (NoOpCollector) RecordError()                     {}
func (NoOpCollector) GetMetrics() Metrics              { return Metrics{} }
func (NoOpCollector) Reset()                           {}

var _ Collector = NoOpCollector{}
