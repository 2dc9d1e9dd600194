// Package metrics registers the service's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MutationsTotal counts committed and failed mutations.
	// Labels: op ("add", "delete_subtree", "delete_forest"),
	// result ("ok", "validation", "not_found", "conflict", "error").
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_mutations_total",
		Help: "Tree mutations by operation and result",
	}, []string{"op", "result"})

	MutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "threads_mutation_duration_seconds",
		Help:    "Time spent in a mutation transaction, lock wait included",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"op"})

	// Shifted counts bounds renumbered by mutations.
	ShiftedRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "threads_shifted_rows",
		Help:    "Rows whose bounds moved in one mutation",
		Buckets: []float64{0, 1, 10, 100, 1000, 10000},
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_cache_hits_total",
		Help: "Aggregate reads served from cache",
	}, []string{"query"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_cache_misses_total",
		Help: "Aggregate reads computed from the store",
	}, []string{"query"})

	// CacheErrors counts cache backend failures; the read falls back to the store.
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_cache_errors_total",
		Help: "Cache backend failures by operation",
	}, []string{"op"})

	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_cache_invalidations_total",
		Help: "Prefix invalidations by origin (local or peer)",
	}, []string{"origin"})

	// EventsDropped counts payloads a full subscriber buffer refused.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_events_dropped_total",
		Help: "Event payloads dropped by a full subscription buffer",
	}, []string{"filter"})
)

// ObserveMutation records the outcome and latency of a mutation.
func ObserveMutation(op, result string, start time.Time) {
	MutationsTotal.WithLabelValues(op, result).Inc()
	MutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
