// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector tracks counters and simple latency histograms for the
// chat pipeline. Exposed read-only through the stats endpoint.
type MetricsCollector struct {
	counters   map[string]*counter
	histograms map[string]*histogram

	mu sync.RWMutex
}

type counter struct {
	value int64 // atomic
}

type histogram struct {
	count int64
	sum   int64 // milliseconds
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the global metrics collector.
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = &MetricsCollector{
			counters:   make(map[string]*counter),
			histograms: make(map[string]*histogram),
		}
	})
	return globalMetrics
}

// IncrementCounter increments a named counter.
func (m *MetricsCollector) IncrementCounter(name string) {
	m.mu.RLock()
	c, exists := m.counters[name]
	m.mu.RUnlock()

	if exists {
		atomic.AddInt64(&c.value, 1)
		return
	}

	m.mu.Lock()
	c, exists = m.counters[name]
	if !exists {
		c = &counter{}
		m.counters[name] = c
	}
	m.mu.Unlock()

	atomic.AddInt64(&c.value, 1)
}

// ObserveDuration records one latency sample for a named histogram.
func (m *MetricsCollector) ObserveDuration(name string, d time.Duration) {
	ms := d.Milliseconds()

	m.mu.RLock()
	h, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		h, exists = m.histograms[name]
		if !exists {
			h = &histogram{min: ms, max: ms}
			m.histograms[name] = h
		}
		m.mu.Unlock()
	}

	h.mu.Lock()
	h.count++
	h.sum += ms
	if ms < h.min {
		h.min = ms
	}
	if ms > h.max {
		h.max = ms
	}
	h.mu.Unlock()
}

// HistogramStats is a read-only histogram snapshot.
type HistogramStats struct {
	Count int64 `json:"count"`
	SumMS int64 `json:"sum_ms"`
	MinMS int64 `json:"min_ms"`
	MaxMS int64 `json:"max_ms"`
}

// Snapshot returns current counter values and histogram summaries.
func (m *MetricsCollector) Snapshot() (map[string]int64, map[string]HistogramStats) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		counters[name] = atomic.LoadInt64(&c.value)
	}

	histograms := make(map[string]HistogramStats, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = HistogramStats{Count: h.count, SumMS: h.sum, MinMS: h.min, MaxMS: h.max}
		h.mu.Unlock()
	}

	return counters, histograms
}
