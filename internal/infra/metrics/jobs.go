package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsProcessedTotal, batchChunksTotal) }

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_jobs_processed_total",
		Help: "Jobs resolved by the batch orchestrator, labeled by final status.",
	},
	[]string{"status"},
)

var batchChunksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pipeline_batch_chunks_total",
		Help: "Chunks executed across all batch runs.",
	},
)

func IncJobProcessed(status string) {
	jobsProcessedTotal.WithLabelValues(status).Inc()
}

func IncBatchChunk() { batchChunksTotal.Inc() }
