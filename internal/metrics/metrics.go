package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Total HTTP requests partitioned by method, route, and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// One observation per provider channel table fetch; outcome is "ok" or "failed".
	RateFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_table_fetches_total",
			Help: "Rate table fetches by provider and outcome",
		},
		[]string{"company", "outcome"},
	)

	RateRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_rows_fetched_total",
			Help: "Normalized rate rows fetched by provider",
		},
		[]string{"company"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_cache_lookups_total",
			Help: "Rate cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
