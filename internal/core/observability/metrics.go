// Package observability holds the Prometheus collectors recorded by the service.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	providerFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_fetch_total",
			Help: "Provider adapter calls by outcome (hit, ok, error, timeout, unauthorized).",
		},
		[]string{"provider", "outcome"},
	)

	providerLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_latency_seconds",
			Help:    "Latency of upstream provider calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"provider"},
	)

	providerVehiclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_vehicles_total",
			Help: "Vehicles returned per provider, cached or fresh.",
		},
		[]string{"provider"},
	)

	cacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_ops_total",
			Help: "Cache backend operations by result.",
		},
		[]string{"op", "result"},
	)

	cacheOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Cache backend operation latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregate_query_duration_seconds",
			Help:    "End-to-end aggregate query latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	queryProviders = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregate_query_providers",
			Help:    "Number of providers dispatched per query.",
			Buckets: prometheus.LinearBuckets(0, 2, 8),
		},
	)

	geocodeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_results_total",
			Help: "Reverse geocoding results by outcome (found, unknown, error).",
		},
		[]string{"outcome"},
	)

	hotKeys = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hotness_tracked_keys",
			Help: "Number of query cells tracked by the hotness model.",
		},
		[]string{"tier"},
	)

	queryEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "query_events_dropped_total",
			Help: "Query events dropped because the publish queue was full.",
		},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		providerFetchTotal, providerLatencySeconds, providerVehiclesTotal,
		cacheOpsTotal, cacheOpSeconds, cacheResults,
		queryDurationSeconds, queryProviders,
		geocodeResults, hotKeys, queryEventsDropped, buildInfo,
	}
}

// Init registers every collector on reg; a nil reg uses the default registerer.
// Registering twice on the same registry is a no-op.
func Init(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveProviderFetch(provider, outcome string) {
	providerFetchTotal.WithLabelValues(provider, outcome).Inc()
}

func ObserveProviderLatency(provider string, durationSeconds float64) {
	providerLatencySeconds.WithLabelValues(provider).Observe(durationSeconds)
}

func AddProviderVehicles(provider string, n int) {
	if n > 0 {
		providerVehiclesTotal.WithLabelValues(provider).Add(float64(n))
	}
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	cacheOpsTotal.WithLabelValues(op, res).Inc()
	cacheOpSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	if n > 0 {
		cacheResults.WithLabelValues("hit").Add(float64(n))
	}
}

func AddCacheMisses(n int) {
	if n > 0 {
		cacheResults.WithLabelValues("miss").Add(float64(n))
	}
}

func ObserveQuery(durationSeconds float64, providers int) {
	queryDurationSeconds.Observe(durationSeconds)
	queryProviders.Observe(float64(providers))
}

func ObserveGeocode(outcome string) {
	geocodeResults.WithLabelValues(outcome).Inc()
}

func SetHotKeysGauge(tier string, n int) {
	hotKeys.WithLabelValues(tier).Set(float64(n))
}

func IncQueryEventsDropped() {
	queryEventsDropped.Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
