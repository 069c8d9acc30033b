package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the KPI service.
type Metrics struct {
	// Registry cache metrics
	RegistryCacheHits   prometheus.Counter
	RegistryCacheMisses prometheus.Counter
	RegistryPreloads    *prometheus.CounterVec
	RegistryFallbacks   prometheus.Counter

	// Channel fetch metrics
	FetchDuration *prometheus.HistogramVec
	FetchOutcomes *prometheus.CounterVec

	// KPI metrics
	KpiRequests      *prometheus.CounterVec
	KpiCacheHits     prometheus.Counter
	KpiCacheMisses   prometheus.Counter
	RollupBuckets    *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RegistryCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_cache_hits_total",
			Help:      "Total table registry cache hits",
		}),
		RegistryCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_cache_misses_total",
			Help:      "Total table registry cache misses",
		}),
		RegistryPreloads: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_preloads_total",
				Help:      "Total whole-tenant registry preload queries by result",
			},
			[]string{"result"},
		),
		RegistryFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_fallback_lookups_total",
			Help:      "Single-row registry lookups issued after a preload miss",
		}),
		FetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "channel_fetch_duration_seconds",
				Help:      "Duration of per-channel data fetches",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		FetchOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_fetch_outcomes_total",
				Help:      "Per-channel fetch outcomes (ok, unconfigured, failed)",
			},
			[]string{"channel", "outcome"},
		),
		KpiRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kpi_requests_total",
				Help:      "Aggregated KPI computations by kind",
			},
			[]string{"kind"},
		),
		KpiCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kpi_snapshot_cache_hits_total",
			Help:      "Aggregated KPI snapshot cache hits",
		}),
		KpiCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kpi_snapshot_cache_misses_total",
			Help:      "Aggregated KPI snapshot cache misses",
		}),
		RollupBuckets: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rollup_duration_seconds",
				Help:      "Duration of rollup series builds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"granularity"},
		),
		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		HTTPLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		),
	}
}

// RecordHTTPRequest records an HTTP request with its latency.
func (m *Metrics) RecordHTTPRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordFetch records one channel fetch.
func (m *Metrics) RecordFetch(channel, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(channel).Observe(duration.Seconds())
	m.FetchOutcomes.WithLabelValues(channel, outcome).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
