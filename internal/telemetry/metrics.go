// Package telemetry provides observability primitives for the gencache service.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	UpstreamDuration *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec
	TokensProcessed  *prometheus.CounterVec

	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheBytesServed prometheus.Counter
	CacheEvictions   prometheus.Counter
	CacheExpired     prometheus.Counter
	CacheCorrupt     prometheus.Counter
	CacheRejected    *prometheus.CounterVec
	CacheEntries     prometheus.Gauge
	CacheBytes       prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gencache",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "gencache",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gencache",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "gencache",
			Name:                            "upstream_duration_seconds",
			Help:                            "Upstream generator call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"provider", "template"}),

		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gencache",
			Name:      "upstream_errors_total",
			Help:      "Total upstream generator errors.",
		}, []string{"provider", "status"}),

		TokensProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gencache",
			Name:      "tokens_processed_total",
			Help:      "Total tokens consumed by upstream generation.",
		}, []string{"model", "type"}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gencache",
			Name:      "cache_hits_total",
			Help:      "Total response cache hits.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gencache",
			Name:      "cache_misses_total",
			Help:      "Total response cache misses.",
		}),

		CacheBytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gencache",
			Name:      "cache_served_bytes_total",
			Help:      "Total decoded bytes returned from cache hits.",
		}),

		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gencache",
			Name:      "cache_evictions_total",
			Help:      "Total entries evicted to stay within the size budget.",
		}),

		CacheExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gencache",
			Name:      "cache_expired_total",
			Help:      "Total entries removed after their TTL elapsed.",
		}),

		CacheCorrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gencache",
			Name:      "cache_corrupt_total",
			Help:      "Total entries dropped because their payload failed to decode.",
		}),

		CacheRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gencache",
			Name:      "cache_rejected_sets_total",
			Help:      "Total cache writes that stored nothing.",
		}, []string{"reason"}),

		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gencache",
			Name:      "cache_entries",
			Help:      "Current number of cached entries.",
		}),

		CacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gencache",
			Name:      "cache_size_bytes",
			Help:      "Current stored payload size in bytes.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.UpstreamDuration,
		m.UpstreamErrors,
		m.TokensProcessed,
		m.CacheHits,
		m.CacheMisses,
		m.CacheBytesServed,
		m.CacheEvictions,
		m.CacheExpired,
		m.CacheCorrupt,
		m.CacheRejected,
		m.CacheEntries,
		m.CacheBytes,
	)

	return m
}
