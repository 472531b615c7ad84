package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesByIntent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salescope_queries_total",
			Help: "Total number of planned queries by resolved intent.",
		},
		[]string{"intent"},
	)
	resolverCorrectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salescope_resolver_corrections_total",
			Help: "Entity corrections applied, by resolution strategy.",
		},
		[]string{"strategy"},
	)
	statementsByBranch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salescope_compiled_statements_total",
			Help: "Compiled statements by planner branch.",
		},
		[]string{"branch"},
	)
	storeQueryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "salescope_store_query_duration_seconds",
			Help:    "Store execution latency for compiled statements.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
	retrievalCacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salescope_retrieval_cache_events_total",
			Help: "Document retrieval cache hits and misses.",
		},
		[]string{"event"},
	)
	contextTruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "salescope_context_truncations_total",
			Help: "Summaries truncated to fit the generation context budget.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queriesByIntent,
		resolverCorrectionsTotal,
		statementsByBranch,
		storeQueryDurationSeconds,
		retrievalCacheEvents,
		contextTruncationsTotal,
	)
}

func IncrementQueryIntent(intent string) {
	queriesByIntent.WithLabelValues(intent).Inc()
}

func IncrementResolverCorrection(strategy string) {
	resolverCorrectionsTotal.WithLabelValues(strategy).Inc()
}

func IncrementCompiledStatement(branch string) {
	statementsByBranch.WithLabelValues(branch).Inc()
}

func ObserveStoreQueryDuration(d time.Duration) {
	storeQueryDurationSeconds.Observe(d.Seconds())
}

func IncrementRetrievalCacheHit() {
	retrievalCacheEvents.WithLabelValues("hit").Inc()
}

func IncrementRetrievalCacheMiss() {
	retrievalCacheEvents.WithLabelValues("miss").Inc()
}

func IncrementContextTruncation() {
	contextTruncationsTotal.Inc()
}
