package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	extractionPipeline = "extraction_pipeline"

	jobsProcessedTotal    = "jobs_processed_total"
	processingDurationMs  = "file_processing_duration_milliseconds"
	batchesFinalizedTotal = "batches_finalized_total"
	queueDepth            = "queue_depth"
	sweeperRunsTotal      = "sweeper_runs_total"
	deadLetteredTotal     = "dead_lettered_total"

	// Labels
	jobTypeLabel     = "type"
	outcomeLabel     = "outcome"
	batchStatusLabel = "status"
	queueNameLabel   = "queue"
)

var jobsProcessedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: extractionPipeline,
		Name:      jobsProcessedTotal,
		Help:      "number of queue jobs processed, by job type and outcome",
	},
	[]string{jobTypeLabel, outcomeLabel},
)

var processingDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: extractionPipeline,
		Name:      processingDurationMs,
		Help:      "time spent processing one file, milliseconds",
		Buckets:   []float64{500, 1000, 5000, 15000, 60000, 300000},
	},
	[]string{outcomeLabel},
)

var batchesFinalizedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: extractionPipeline,
		Name:      batchesFinalizedTotal,
		Help:      "number of batches sealed into a terminal status",
	},
	[]string{batchStatusLabel},
)

var queueDepthMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: extractionPipeline,
		Name:      queueDepth,
		Help:      "current depth of the live work queue",
	},
	[]string{queueNameLabel},
)

var sweeperRunsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: extractionPipeline,
		Name:      sweeperRunsTotal,
		Help:      "number of stuck-batch sweeper ticks",
	},
)

var deadLetteredTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: extractionPipeline,
		Name:      deadLetteredTotal,
		Help:      "number of messages moved to the dead-letter list",
	},
	[]string{jobTypeLabel},
)

func IncreaseJobsProcessedMetric(jobType string, outcome string) {
	jobsProcessedTotalMetric.With(prometheus.Labels{jobTypeLabel: jobType, outcomeLabel: outcome}).Inc()
}

func ObserveProcessingDurationMetric(outcome string, durationMs int64) {
	processingDurationMetric.With(prometheus.Labels{outcomeLabel: outcome}).Observe(float64(durationMs))
}

func IncreaseBatchesFinalizedMetric(status string) {
	batchesFinalizedTotalMetric.With(prometheus.Labels{batchStatusLabel: status}).Inc()
}

func UpdateQueueDepthMetric(queue string, depth int64) {
	queueDepthMetric.With(prometheus.Labels{queueNameLabel: queue}).Set(float64(depth))
}

func IncreaseSweeperRunsMetric() {
	sweeperRunsTotalMetric.Inc()
}

func IncreaseDeadLetteredMetric(jobType string) {
	deadLetteredTotalMetric.With(prometheus.Labels{jobTypeLabel: jobType}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsProcessedTotalMetric)
	prometheus.MustRegister(processingDurationMetric)
	prometheus.MustRegister(batchesFinalizedTotalMetric)
	prometheus.MustRegister(queueDepthMetric)
	prometheus.MustRegister(sweeperRunsTotalMetric)
	prometheus.MustRegister(deadLetteredTotalMetric)
}
