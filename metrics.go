package firmstore

import (
	"sync"
	"time"
)

// Metrics interface for instrumenting store operations.
// Implementations must be safe for concurrent use.
type Metrics interface {
	// IncrementCounter increments a counter metric by 1
	IncrementCounter(name string, tags map[string]string)
	// RecordDuration records a duration metric
	RecordDuration(name string, duration time.Duration, tags map[string]string)
	// RecordGauge records a gauge value
	RecordGauge(name string, value float64, tags map[string]string)
}

// Metric names used throughout the store
const (
	MetricShardGet          = "firmstore.shard.get"
	MetricShardPut          = "firmstore.shard.put"
	MetricShardDelete       = "firmstore.shard.delete"
	MetricShardList         = "firmstore.shard.list"
	MetricShardError        = "firmstore.shard.error"
	MetricFanOutDuration    = "firmstore.fanout.duration"
	MetricProbeDuration     = "firmstore.probe.duration"
	MetricSearchDuration    = "firmstore.search.duration"
	MetricSearchResults     = "firmstore.search.results"
	MetricDownloadIncrement = "firmstore.downloads.increment"
	MetricIndexFallback     = "firmstore.index.fallback"
)

// NoOpMetrics discards all metrics. Used as the default when no metrics
// implementation is configured.
type NoOpMetrics struct{}

func (n *NoOpMetrics) IncrementCounter(name string, tags map[string]string) {}
func (n *NoOpMetrics) RecordDuration(name string, duration time.Duration, tags map[string]string) {}
func (n *NoOpMetrics) RecordGauge(name string, value float64, tags map[string]string)             {}

// InMemoryMetrics collects metrics in memory, mainly for tests and local
// inspection.
type InMemoryMetrics struct {
	mu        sync.RWMutex
	counters  map[string]int64
	durations map[string][]time.Duration
	gauges    map[string]float64
}

// NewInMemoryMetrics creates a new in-memory metrics collector
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters:  make(map[string]int64),
		durations: make(map[string][]time.Duration),
		gauges:    make(map[string]float64),
	}
}

func (m *InMemoryMetrics) IncrementCounter(name string, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metricKey(name, tags)]++
}

func (m *InMemoryMetrics) RecordDuration(name string, duration time.Duration, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := metricKey(name, tags)
	m.durations[key] = append(m.durations[key], duration)
}

func (m *InMemoryMetrics) RecordGauge(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metricKey(name, tags)] = value
}

// GetCounter returns the current value of a counter
func (m *InMemoryMetrics) GetCounter(name string, tags map[string]string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[metricKey(name, tags)]
}

// GetDurations returns all recorded durations for a metric
func (m *InMemoryMetrics) GetDurations(name string, tags map[string]string) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	durations := m.durations[metricKey(name, tags)]
	out := make([]time.Duration, len(durations))
	copy(out, durations)
	return out
}

// GetGauge returns the current value of a gauge
func (m *InMemoryMetrics) GetGauge(name string, tags map[string]string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[metricKey(name, tags)]
}

func metricKey(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	key := name
	// Deterministic enough for tests: shard and collection are the only tags
	// used, and they never collide.
	for _, tagName := range []string{"shard", "collection", "field", "status"} {
		if v, ok := tags[tagName]; ok {
			key += "," + tagName + "=" + v
		}
	}
	return key
}
