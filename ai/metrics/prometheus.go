// Package metrics exports conversation-log metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leodock"

// Outcome labels shared by the counters below.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
	OutcomeMalformed   = "malformed"
	OutcomeSkipped     = "skipped"
	OutcomeDropped     = "dropped"
)

// Search kinds.
const (
	SearchKeyword  = "keyword"
	SearchSemantic = "semantic"
)

// PrometheusExporter records save, embedding, backfill and search metrics.
// A nil exporter is valid and records nothing.
type PrometheusExporter struct {
	registry *prometheus.Registry

	saves *prometheus.CounterVec

	embeddingRequests *prometheus.CounterVec
	embeddingLatency  prometheus.Histogram

	backfillJobs       *prometheus.CounterVec
	backfillQueueDepth prometheus.Gauge

	searchLatency *prometheus.HistogramVec
	searchResults *prometheus.HistogramVec

	queryCache *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.saves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "saves_total",
			Help:      "Conversation save attempts by outcome",
		},
		[]string{"outcome"},
	)

	e.embeddingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding requests by outcome",
		},
		[]string{"outcome"},
	)

	e.embeddingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "latency_seconds",
			Help:      "Embedding request latency in seconds, retries included",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.backfillJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "jobs_total",
			Help:      "Embedding backfill jobs by outcome",
		},
		[]string{"outcome"},
	)

	e.backfillQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "queue_depth",
			Help:      "Backfill jobs queued or running",
		},
	)

	e.searchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "Search latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"kind", "outcome"},
	)

	e.searchResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		},
		[]string{"kind"},
	)

	e.queryCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "query_cache_total",
			Help:      "Query embedding cache lookups by result",
		},
		[]string{"result"},
	)

	registry.MustRegister(
		e.saves,
		e.embeddingRequests,
		e.embeddingLatency,
		e.backfillJobs,
		e.backfillQueueDepth,
		e.searchLatency,
		e.searchResults,
		e.queryCache,
	)

	return e
}

// RecordSave records a conversation save.
func (e *PrometheusExporter) RecordSave(success bool) {
	if e == nil {
		return
	}
	e.saves.WithLabelValues(outcome(success)).Inc()
}

// RecordEmbedding records one embedding request and its total latency.
func (e *PrometheusExporter) RecordEmbedding(result string, latency time.Duration) {
	if e == nil {
		return
	}
	e.embeddingRequests.WithLabelValues(result).Inc()
	e.embeddingLatency.Observe(latency.Seconds())
}

// RecordBackfill records the outcome of one backfill job.
func (e *PrometheusExporter) RecordBackfill(result string) {
	if e == nil {
		return
	}
	e.backfillJobs.WithLabelValues(result).Inc()
}

// SetBackfillQueueDepth sets the number of outstanding backfill jobs.
func (e *PrometheusExporter) SetBackfillQueueDepth(depth int) {
	if e == nil {
		return
	}
	e.backfillQueueDepth.Set(float64(depth))
}

// RecordSearch records a keyword or semantic search.
func (e *PrometheusExporter) RecordSearch(kind string, latency time.Duration, results int, err error) {
	if e == nil {
		return
	}
	e.searchLatency.WithLabelValues(kind, outcome(err == nil)).Observe(latency.Seconds())
	if err == nil {
		e.searchResults.WithLabelValues(kind).Observe(float64(results))
	}
}

// RecordQueryCache records a query embedding cache lookup.
func (e *PrometheusExporter) RecordQueryCache(hit bool) {
	if e == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	e.queryCache.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler serving the registry.
func (e *PrometheusExporter) Handler() http.Handler {
	if e == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP implements http.Handler.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Handler().ServeHTTP(w, r)
}

func outcome(success bool) string {
	if success {
		return OutcomeOK
	}
	return OutcomeError
}
