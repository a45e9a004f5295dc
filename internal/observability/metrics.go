package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// flood notification pipeline.
type Metrics struct {
	FloodsProcessed prometheus.Counter
	FloodsUnchanged prometheus.Counter
	ResolveErrors   prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Run metrics.
	RunDuration       prometheus.Histogram
	PostcodesPerFlood prometheus.Histogram

	// Spatial store metrics.
	SpatialQueries *prometheus.CounterVec // labels: level={shardmap,area,district,postcode}, outcome={success,error}

	// Cache metrics.
	CacheLookups     *prometheus.CounterVec // labels: kind={severity,postcodes}, result={hit,miss}
	CacheUnavailable prometheus.Counter

	// Producer metrics.
	MessagesPublished *prometheus.CounterVec // labels: queue={tasks,email}
	PublishRetries    prometheus.Counter
	DeadLetters       prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FloodsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_notify",
			Name:      "floods_processed_total",
			Help:      "Total floods resolved or re-notified from cache.",
		}),
		FloodsUnchanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_notify",
			Name:      "floods_unchanged_total",
			Help:      "Total floods dropped because their cached severity was unchanged.",
		}),
		ResolveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_notify",
			Name:      "resolve_errors_total",
			Help:      "Total per-flood failures across fetch, subdivide, match and dispatch.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flood_notify",
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flood_notify",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-partition-resolve-dispatch run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PostcodesPerFlood: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flood_notify",
			Name:      "postcodes_per_flood",
			Help:      "Number of distinct postcodes resolved per flood.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		SpatialQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_notify",
			Name:      "spatial_queries_total",
			Help:      "Spatial store queries by level and outcome.",
		}, []string{"level", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_notify",
			Name:      "cache_lookups_total",
			Help:      "Flood state cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		CacheUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_notify",
			Name:      "cache_unavailable_total",
			Help:      "Cache operations degraded because the backing store was unreachable.",
		}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flood_notify",
			Name:      "messages_published_total",
			Help:      "Messages confirmed by the broker, by queue.",
		}, []string{"queue"}),
		PublishRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_notify",
			Name:      "publish_retries_total",
			Help:      "Publish attempts retried after a broker nack.",
		}),
		DeadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flood_notify",
			Name:      "dead_letters_total",
			Help:      "Messages written to the dead-letter log after exhausting retries.",
		}),
	}

	prometheus.MustRegister(
		m.FloodsProcessed,
		m.FloodsUnchanged,
		m.ResolveErrors,
		m.PipelineRunning,
		m.RunDuration,
		m.PostcodesPerFlood,
		m.SpatialQueries,
		m.CacheLookups,
		m.CacheUnavailable,
		m.MessagesPublished,
		m.PublishRetries,
		m.DeadLetters,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FloodsProcessed:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "flood_notify", Name: "floods_processed_total"}),
		FloodsUnchanged:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "flood_notify", Name: "floods_unchanged_total"}),
		ResolveErrors:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "flood_notify", Name: "resolve_errors_total"}),
		PipelineRunning:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "flood_notify", Name: "pipeline_running"}),
		RunDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "flood_notify", Name: "run_duration_seconds"}),
		PostcodesPerFlood: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "flood_notify", Name: "postcodes_per_flood"}),
		SpatialQueries:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "flood_notify", Name: "spatial_queries_total"}, []string{"level", "outcome"}),
		CacheLookups:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "flood_notify", Name: "cache_lookups_total"}, []string{"kind", "result"}),
		CacheUnavailable:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "flood_notify", Name: "cache_unavailable_total"}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "flood_notify", Name: "messages_published_total"}, []string{"queue"}),
		PublishRetries:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "flood_notify", Name: "publish_retries_total"}),
		DeadLetters:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "flood_notify", Name: "dead_letters_total"}),
	}
}
