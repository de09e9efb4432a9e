/*
Package metrics holds the Prometheus instrumentation for the loyalty
engine. Counters are registered via promauto; every recording method is
nil-safe so components can run without metrics wired (tests, tools).
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
type Metrics struct {
	PointsAdjusted *prometheus.CounterVec
	LedgerEntries  *prometheus.CounterVec
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors on reg. Tests use a private
// registry to avoid duplicate-registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PointsAdjusted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalty_points_adjusted_total",
			Help: "Total points moved through the ledger engine, by kind.",
		}, []string{"kind"}),
		LedgerEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalty_ledger_entries_total",
			Help: "Total ledger entries appended, by kind.",
		}, []string{"kind"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_list_cache_hits_total",
			Help: "List cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_list_cache_misses_total",
			Help: "List cache misses (including cache outages).",
		}),
	}
}

// RecordAdjust counts a successful adjustment of `points` of `kind`.
func (m *Metrics) RecordAdjust(kind string, points int64) {
	if m == nil {
		return
	}
	m.PointsAdjusted.WithLabelValues(kind).Add(float64(points))
	m.LedgerEntries.WithLabelValues(kind).Inc()
}

// RecordCacheHit counts a list-cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// RecordCacheMiss counts a list-cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}
