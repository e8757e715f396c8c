package firmstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements Metrics using prometheus collectors
type PrometheusMetrics struct {
	registry  *prometheus.Registry
	counters  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	gauges    *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a metrics implementation registered on the
// given registry. Pass prometheus.NewRegistry() for an isolated registry or
// nil to use the default one.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	var factory promauto.Factory
	if registry != nil {
		factory = promauto.With(registry)
	} else {
		factory = promauto.With(prometheus.DefaultRegisterer)
	}

	return &PrometheusMetrics{
		registry: registry,
		counters: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firmstore",
			Name:      "operations_total",
			Help:      "Total count of store operations by metric name",
		}, []string{"metric", "shard", "collection"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "firmstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations by metric name",
			Buckets:   prometheus.DefBuckets,
		}, []string{"metric", "shard", "collection"}),
		gauges: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "firmstore",
			Name:      "gauge_values",
			Help:      "Gauge values by metric name",
		}, []string{"metric", "shard", "collection"}),
	}
}

func (p *PrometheusMetrics) IncrementCounter(name string, tags map[string]string) {
	p.counters.WithLabelValues(name, tags["shard"], tags["collection"]).Inc()
}

func (p *PrometheusMetrics) RecordDuration(name string, duration time.Duration, tags map[string]string) {
	p.durations.WithLabelValues(name, tags["shard"], tags["collection"]).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) RecordGauge(name string, value float64, tags map[string]string) {
	p.gauges.WithLabelValues(name, tags["shard"], tags["collection"]).Set(value)
}
