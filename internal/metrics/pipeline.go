package metrics

import "github.com/prometheus/client_golang/prometheus"

// Linkage pipeline Prometheus metrics.
var (
	BulkRowsProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "linkage",
			Name:      "bulk_rows_processed_total",
			Help:      "Total input rows emitted by bulk jobs",
		},
	)

	BulkRowErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "linkage",
			Name:      "bulk_row_errors_total",
			Help:      "Rows returned unmatched because of a per-row index error",
		},
	)

	BulkChunkAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkage",
			Name:      "bulk_chunk_attempts_total",
			Help:      "Chunk handler attempts by outcome",
		},
		[]string{"outcome"}, // "ok" / "error"
	)

	BulkJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkage",
			Name:      "bulk_jobs_total",
			Help:      "Bulk jobs by terminal state",
		},
		[]string{"state"}, // "completed" / "failed" / "cancelled"
	)

	IndexQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "linkage",
			Name:      "index_query_duration_seconds",
			Help:      "Registry index query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"}, // "search" / "msearch" / "scroll"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers the pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(BulkRowsProcessedTotal)
	prometheus.MustRegister(BulkRowErrorsTotal)
	prometheus.MustRegister(BulkChunkAttemptsTotal)
	prometheus.MustRegister(BulkJobsTotal)
	prometheus.MustRegister(IndexQueryDuration)
	pipelineMetricsRegistered = true
}
