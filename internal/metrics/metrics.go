// Package metrics holds the Prometheus collectors for cache, fetch and sync
// activity. Collectors are registered on the default registry at init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_cache_hits_total",
			Help: "Total number of fresh cache reads",
		},
		[]string{"dataset"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_cache_misses_total",
			Help: "Total number of cache reads that found no fresh entry",
		},
		[]string{"dataset", "reason"}, // "absent", "stale", "fault"
	)

	CacheFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_cache_faults_total",
			Help: "Total number of storage engine failures",
		},
		[]string{"kind"},
	)

	CacheReopens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tablesync_cache_reopens_total",
			Help: "Total number of times the storage handle was reopened after the first open",
		},
	)

	// Fetch metrics
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_pages_fetched_total",
			Help: "Total number of remote pages read",
		},
		[]string{"table"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablesync_fetch_duration_seconds",
			Help:    "Duration of a full dataset fetch in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dataset", "outcome"},
	)

	// Sync metrics
	Loads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_loads_total",
			Help: "Total number of Load calls by outcome",
		},
		[]string{"outcome"}, // "cache", "complete", "partial", "failed", "timeout"
	)

	BackgroundRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablesync_background_refreshes_total",
			Help: "Total number of background revalidations by outcome",
		},
		[]string{"outcome"}, // "complete", "partial", "failed", "shared"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tablesync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordFetch observes the duration of one dataset fetch.
func RecordFetch(dataset string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	FetchDuration.WithLabelValues(dataset, outcome).Observe(time.Since(start).Seconds())
}
