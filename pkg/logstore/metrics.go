package logstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	ingestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komfyrvakt_logs_ingested_total",
			Help: "The total number of stored log entries by level",
		},
		[]string{"level"},
	)
	ingestFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "komfyrvakt_ingest_failures_total",
			Help: "The total number of log entries whose primary write failed",
		},
	)
	indexWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komfyrvakt_index_write_failures_total",
			Help: "The total number of index keys that could not be written",
		},
		[]string{"dimension"},
	)
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "komfyrvakt_query_duration_seconds",
			Help:    "Duration of log queries by primary index dimension",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dimension"},
	)
	purgedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komfyrvakt_logs_purged_total",
			Help: "The total number of log entries removed by purge",
		},
		[]string{"scope"},
	)
)
