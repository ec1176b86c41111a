package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barker",
			Name:      "chat_requests_total",
			Help:      "Total chat requests by reply type",
		},
		[]string{"type"},
	)

	chatDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "barker",
			Name:      "chat_duration_seconds",
			Help:      "End-to-end duration of chat requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 9), // 0.25s to ~64s
		},
	)

	configCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barker",
			Name:      "agent_config_cache_total",
			Help:      "Agent config cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)
