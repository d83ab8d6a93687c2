package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap API call rate per endpoint. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per endpoint. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	WeatherAPIDuration *prometheus.HistogramVec

	// Upstream errors by category. Watch for: which failure mode dominates.
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Cache hits. Hit rate = hits/(hits+misses).
	CacheHitsTotal *prometheus.CounterVec

	// Cache backend errors by operation. Watch for: backend outages.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache operation latency. Watch for: slow backend (memcached/redis) round-trips.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Total current-conditions lookups. Watch for: traffic volume, rate() for QPS.
	WeatherQueriesTotal prometheus.Counter

	// Total forecast lookups. Always uncached; each one is an upstream call.
	ForecastQueriesTotal prometheus.Counter

	// Per-location query count (allow-list; others go to "other"). Watch for: top locations.
	WeatherQueriesByLocationTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Concurrent cache misses racing on one key. Watch for: stampede pressure.
	CacheStampedeDetectedTotal *prometheus.CounterVec
	CacheStampedeConcurrency   *prometheus.HistogramVec

	// Requests that piggybacked on an in-flight upstream call.
	RequestCoalescingHitsTotal   *prometheus.CounterVec
	RequestCoalescingWaitSeconds prometheus.Histogram

	// Cache warming runs, failures, and durations.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// trackedLocations is built from config; used to resolve location for metrics.
	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}
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
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Upstream weather API errors by category",
		},
		[]string{"category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "status"},
	)
	WeatherQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Total number of current-conditions lookups",
		},
	)
	ForecastQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastQueriesTotal",
			Help: "Total number of forecast lookups (never cached)",
		},
	)
	WeatherQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByLocationTotal",
			Help: "Weather queries by location (allow-list; others use location=other)",
		},
		[]string{"location"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Cache misses that raced with another miss on the same key",
		},
		[]string{"location"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent misses observed per stampede",
			Buckets: []float64{2, 3, 5, 10, 25, 50},
		},
		[]string{"location"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests that waited on an in-flight upstream call instead of issuing their own",
		},
		[]string{"location"},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time spent waiting for a coalesced upstream result",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs that had at least one failed location",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		CacheHitsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		WeatherQueriesTotal, ForecastQueriesTotal, WeatherQueriesByLocationTotal,
		RateLimitDeniedTotal,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		RequestCoalescingHitsTotal, RequestCoalescingWaitSeconds,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
	)
}

// SetTrackedLocations sets the allow-list for location metrics. Non-tracked
// locations increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// MetricLocationLabel resolves a location to its metric label: the location
// itself when tracked, "other" otherwise. Keeps label cardinality bounded.
func MetricLocationLabel(location string) string {
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc] // nil map read is safe in Go
	trackedLocationsMu.RUnlock()
	if ok {
		return loc
	}
	return "other"
}

// RecordWeatherQuery records a current-conditions lookup for the given location.
func RecordWeatherQuery(location string) {
	WeatherQueriesTotal.Inc()
	WeatherQueriesByLocationTotal.WithLabelValues(MetricLocationLabel(location)).Inc()
}

// RecordForecastQuery records a forecast lookup for the given location.
func RecordForecastQuery(location string) {
	ForecastQueriesTotal.Inc()
	WeatherQueriesByLocationTotal.WithLabelValues(MetricLocationLabel(location)).Inc()
}

func normalizeLocationForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
