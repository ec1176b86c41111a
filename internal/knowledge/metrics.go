package knowledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	embedCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barker",
			Name:      "embed_calls_total",
			Help:      "Total embedding API calls",
		},
		[]string{"status"},
	)

	embedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "barker",
			Name:      "embed_duration_seconds",
			Help:      "Duration of embedding API calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	chunksFilteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barker",
			Name:      "kb_chunks_filtered_total",
			Help:      "Total chunks filtered during embedding",
		},
		[]string{"reason"},
	)

	chunksStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "barker",
			Name:      "kb_chunks_stored_total",
			Help:      "Total chunks written to the knowledge base",
		},
	)

	searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "barker",
			Name:      "kb_search_duration_seconds",
			Help:      "Duration of KB similarity searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
