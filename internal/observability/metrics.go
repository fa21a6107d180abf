package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Weather API call rate by outcome. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per attempt. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Retries per external component (weather_api, object_store, event_log).
	// Watch for: high retries = unstable dependency.
	RetriesTotal *prometheus.CounterVec

	// Cache lookups by result (hit, miss, error).
	CacheLookupsTotal *prometheus.CounterVec

	// Cache writes by outcome.
	CacheWritesTotal *prometheus.CounterVec

	// Object store uploads by outcome.
	ObjectStoreWritesTotal *prometheus.CounterVec

	// Event log writes by outcome.
	EventLogWritesTotal *prometheus.CounterVec

	// Failed lookups by error kind, as logged at the HTTP boundary.
	LookupFailuresTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker transitions for the weather API.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weather API calls (per attempt)",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather API latency in seconds (per attempt)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "externalRetriesTotal",
			Help: "Total number of retry attempts against external dependencies",
		},
		[]string{"component"},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Cache lookups by result",
		},
		[]string{"result"},
	)
	CacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheWritesTotal",
			Help: "Cache writes by outcome",
		},
		[]string{"outcome"},
	)
	ObjectStoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectStoreWritesTotal",
			Help: "Weather payload uploads by outcome",
		},
		[]string{"outcome"},
	)
	EventLogWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventLogWritesTotal",
			Help: "Audit log writes by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)
	LookupFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookupFailuresTotal",
			Help: "Failed weather lookups by error kind",
		},
		[]string{"kind"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, RetriesTotal,
		CacheLookupsTotal, CacheWritesTotal,
		ObjectStoreWritesTotal, EventLogWritesTotal,
		LookupFailuresTotal, RateLimitDeniedTotal,
		CircuitBreakerTransitionsTotal,
	)
}

// Outcome returns the metric label for an operation result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
