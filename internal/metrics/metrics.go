package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "swapmatch"

// Metrics collects matching and valuation telemetry on its own registry
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	resultCount     *prometheus.HistogramVec
	mutualSources   *prometheus.CounterVec
	valuations      *prometheus.CounterVec
	semanticFailure prometheus.Counter
}

// New creates a Metrics instance with Go runtime and process collectors registered
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Matching and valuation operations by outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent computing an operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		resultCount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "matches_returned",
			Help:      "Number of matches returned per request.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		}, []string{"operation"}),
		mutualSources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutual_matches_total",
			Help:      "Mutual matches produced, by the matcher that found them.",
		}, []string{"source"}),
		valuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valuations_total",
			Help:      "Value estimates produced, by category.",
		}, []string{"category"}),
		semanticFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semantic_fallbacks_total",
			Help:      "Mutual match searches that fell back to text matching.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.resultCount,
		m.mutualSources,
		m.valuations,
		m.semanticFailure,
	)
	return m
}

// ObserveOperation records the outcome and latency of one operation.
// results is ignored when err is non-nil.
func (m *Metrics) ObserveOperation(operation string, start time.Time, results int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err == nil {
		m.resultCount.WithLabelValues(operation).Observe(float64(results))
	}
}

// MutualMatchFound counts one mutual match by its source
func (m *Metrics) MutualMatchFound(source string) {
	m.mutualSources.WithLabelValues(source).Inc()
}

// SemanticFallback counts a search that could not use the semantic matcher
func (m *Metrics) SemanticFallback() {
	m.semanticFailure.Inc()
}

// Valuation counts one estimate for category
func (m *Metrics) Valuation(category string) {
	m.valuations.WithLabelValues(category).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
