// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CatalogArtifacts tracks the number of artifacts held by the catalog.
	CatalogArtifacts prometheus.Gauge

	// Searches counts search requests by sort mode.
	Searches *prometheus.CounterVec

	// SearchDuration observes end-to-end search latency in seconds.
	SearchDuration prometheus.Histogram

	// EngagementMutations counts applied ledger mutations by operation.
	EngagementMutations *prometheus.CounterVec

	// EngagementFlushes counts ledger flushes by outcome.
	EngagementFlushes *prometheus.CounterVec
)

func init() {
	CatalogArtifacts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_artifacts",
		Help: "Number of research artifacts in the catalog.",
	})
	Searches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "discovery_searches_total",
		Help: "Total number of search requests served.",
	}, []string{"sort"})
	SearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "discovery_search_duration_seconds",
		Help:    "Search latency in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	EngagementMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_mutations_total",
		Help: "Total number of applied engagement mutations.",
	}, []string{"op"})
	EngagementFlushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagement_flushes_total",
		Help: "Engagement ledger flushes to persistent storage.",
	}, []string{"result"})

	prometheus.MustRegister(CatalogArtifacts, Searches, SearchDuration, EngagementMutations, EngagementFlushes)
}
