package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache metrics
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blip0_cache_hits_total",
			Help: "Cache hits by entity kind",
		},
		[]string{"entity"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blip0_cache_misses_total",
			Help: "Cache misses by entity kind",
		},
		[]string{"entity"},
	)

	// Change-event metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blip0_events_published_total",
			Help: "Configuration change events published by channel",
		},
		[]string{"channel"},
	)

	// Quota metrics
	QuotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blip0_quota_rejections_total",
			Help: "Entity creations rejected by quota, by resource",
		},
		[]string{"resource"},
	)

	// Validator metrics
	ValidationProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blip0_validation_probes_total",
			Help: "RPC endpoint probes by network type and outcome",
		},
		[]string{"network_type", "outcome"},
	)

	// API metrics
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blip0_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route, and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheHits,
		CacheMisses,
		EventsPublished,
		QuotaRejections,
		ValidationProbes,
		HTTPRequestDuration,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
