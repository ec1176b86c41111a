package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scrapeSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barker",
			Name:      "scrape_sessions_total",
			Help:      "Total crawl sessions started",
		},
		[]string{"status"},
	)

	scrapeSessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "barker",
			Name:      "scrape_session_duration_seconds",
			Help:      "Duration of full crawl sessions in seconds",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~42m
		},
	)

	scrapePagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barker",
			Name:      "scrape_pages_total",
			Help:      "Total pages processed during crawl sessions",
		},
		[]string{"status"},
	)

	pageFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "barker",
			Name:      "scrape_page_fetch_duration_seconds",
			Help:      "Duration of headless browser page loads in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~64s
		},
	)

	pageAnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "barker",
			Name:      "scrape_page_analysis_duration_seconds",
			Help:      "Duration of per-page LLM analysis in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		},
	)

	linksDiscoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "barker",
			Name:      "scrape_links_discovered_total",
			Help:      "Total internal links harvested from crawled pages",
		},
	)
)
