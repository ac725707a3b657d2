package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysisCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "komfyrvakt_analysis_cache_hits_total",
			Help: "The total number of analyses served from cache",
		},
	)
	analysisCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "komfyrvakt_analysis_cache_misses_total",
			Help: "The total number of analyses that had to be computed although the cache was allowed",
		},
	)
	insightFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "komfyrvakt_insight_failures_total",
			Help: "The total number of insight reports replaced by a placeholder",
		},
	)
	insightDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "komfyrvakt_insight_duration_seconds",
			Help:    "Duration of insight generation calls",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
)
