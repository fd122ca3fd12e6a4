package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Buckets cover fast cache-backed responses up to slow remote attempts (25s max timeout)
	CustomAPIBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 34}

	// HTTP Metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: CustomAPIBuckets,
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_server_active_requests",
			Help: "Number of active HTTP requests",
		},
		[]string{"http_request_method"},
	)

	// Remote client metrics
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_client_operation_duration_seconds",
			Help:    "Remote client operation duration in seconds",
			Buckets: CustomAPIBuckets,
		},
		[]string{"operation", "status"},
	)

	RemoteRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_client_operation_total",
			Help: "Total number of remote client operations",
		},
		[]string{"operation", "status"},
	)

	// Resilient fetch metrics
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_fetch_attempts_total",
			Help: "Total number of resilient fetch attempts by outcome",
		},
		[]string{"operation", "outcome"},
	)

	FetchExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_fetch_exhausted_total",
			Help: "Total number of resilient fetches that ran out of attempts",
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_name"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_name"},
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_writes_total",
			Help: "Total number of cache writes",
		},
		[]string{"cache_name"},
	)

	// Business Metrics
	ListingServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calificaprofe_listing_served_total",
			Help: "Total number of listing snapshots served by source",
		},
		[]string{"source"},
	)

	SessionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calificaprofe_session_events_total",
			Help: "Total number of session events processed by kind",
		},
		[]string{"kind"},
	)

	SessionPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "calificaprofe_session_phase",
			Help: "Current session controller phase (1 for the active phase)",
		},
		[]string{"phase"},
	)

	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calificaprofe_auth_attempts_total",
			Help: "Total number of foreground authentication attempts",
		},
		[]string{"action", "status"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"breaker"},
	)

	// Infrastructure Metrics
	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_runtime_go_goroutines",
			Help: "Number of goroutines",
		},
	)

	HeapAlloc = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_runtime_go_mem_heap_alloc_bytes",
			Help: "Heap allocated bytes",
		},
	)
)

// RecordInfrastructureMetrics collects infrastructure metrics periodically
func RecordInfrastructureMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		for range ticker.C {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			GoRoutines.Set(float64(runtime.NumGoroutine()))
			HeapAlloc.Set(float64(m.HeapAlloc))
		}
	}()
}

// MeasureDuration measures the duration of an operation
func MeasureDuration(start time.Time) float64 {
	return time.Since(start).Seconds()
}
