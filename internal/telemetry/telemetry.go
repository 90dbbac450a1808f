// Package telemetry exposes Prometheus metrics for the search pipeline.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Search pipeline Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankfuse",
			Name:      "queries_total",
			Help:      "Total number of search queries",
		},
		[]string{"status"}, // "ok" / "degraded" / "failed"
	)

	RetrieverDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rankfuse",
			Name:      "retriever_duration_seconds",
			Help:      "Per-method retrieval duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.25, 0.5, 1},
		},
		[]string{"method"},
	)

	RetrieverFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankfuse",
			Name:      "retriever_failures_total",
			Help:      "Total retrieval failures recovered by degradation",
		},
		[]string{"method", "reason"}, // reason: "timeout" / "backend" / "model"
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rankfuse",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1, 2.5, 5},
		},
		[]string{"reranked"}, // "true" / "false"
	)

	RerankDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rankfuse",
			Name:      "rerank_duration_seconds",
			Help:      "Reranking stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	RerankerAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rankfuse",
			Name:      "reranker_available",
			Help:      "Whether the reranking model is currently available (1/0)",
		},
	)

	SparseJobBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rankfuse",
			Name:      "sparse_job_batches_total",
			Help:      "Sparse vector generation batches processed",
		},
		[]string{"status"}, // "ok" / "failed"
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers the search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(RetrieverDuration)
	prometheus.MustRegister(RetrieverFailuresTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(RerankDuration)
	prometheus.MustRegister(RerankerAvailable)
	prometheus.MustRegister(SparseJobBatchesTotal)
	searchMetricsRegistered = true
}
