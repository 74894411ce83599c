// Package metrics exposes Prometheus collectors for the trust engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the engine-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trust_engine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trust_engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trust_engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	scoreComputations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trust_engine",
			Subsystem: "engine",
			Name:      "score_computations_total",
			Help:      "Total number of composite score computations.",
		},
		[]string{"status"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trust_engine",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by layer and outcome.",
		},
		[]string{"layer", "outcome"},
	)

	resolverFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trust_engine",
			Subsystem: "resolver",
			Name:      "fallbacks_total",
			Help:      "Field resolutions that degraded to the default value.",
		},
		[]string{"source"},
	)

	activeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trust_engine",
			Subsystem: "stream",
			Name:      "active_subscriptions",
			Help:      "Currently open score stream subscriptions.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		scoreComputations,
		cacheLookups,
		resolverFallbacks,
		activeSubscriptions,
	)
}

// Handler serves the registry on /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveScoreComputation records one composite computation outcome
// ("ok" or "error").
func ObserveScoreComputation(status string) {
	scoreComputations.WithLabelValues(status).Inc()
}

// ObserveCacheLookup records a cache hit or miss for a named layer
// (e.g. "core", "field").
func ObserveCacheLookup(layer string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookups.WithLabelValues(layer, outcome).Inc()
}

// ObserveResolverFallback records a field resolution that fell back to the
// spec default.
func ObserveResolverFallback(source string) {
	resolverFallbacks.WithLabelValues(source).Inc()
}

// SubscriptionOpened and SubscriptionClosed track the stream gauge.
func SubscriptionOpened() { activeSubscriptions.Inc() }
func SubscriptionClosed() { activeSubscriptions.Dec() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush preserves streaming support for SSE handlers behind the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Instrument wraps an HTTP handler with request counting and latency
// observation. The path label uses the route template supplied by the
// router, not the raw URL, to keep cardinality bounded.
func Instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
