package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "billing_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	pipelineJobs       *prometheus.CounterVec
	pipelineJobLatency *prometheus.HistogramVec
	pipelineRetries    *prometheus.CounterVec
	pipelineDeadJobs   *prometheus.CounterVec

	batchTransitions *prometheus.CounterVec

	transactionsGenerated *prometheus.CounterVec
	matchingErrors        *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers billing metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		pipelineJobs = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_jobs_total",
				Help: "Total pipeline job executions by stage and result",
			},
			[]string{"stage", "result"},
		)
		pipelineJobLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pipeline_job_latency_seconds",
				Help:    "Pipeline job execution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "result"},
		)
		pipelineRetries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_job_retries_total",
				Help: "Total pipeline job retries by stage",
			},
			[]string{"stage"},
		)
		pipelineDeadJobs = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_jobs_dead_total",
				Help: "Total pipeline jobs moved to the dead letter queue by stage",
			},
			[]string{"stage"},
		)

		batchTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_transitions_total",
				Help: "Total batch status transitions by target status",
			},
			[]string{"status"},
		)

		transactionsGenerated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transactions_generated_total",
				Help: "Total transactions generated by charge type",
			},
			[]string{"charge_type"},
		)
		matchingErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "two_part_tariff_matching_errors_total",
				Help: "Total two-part tariff matching errors by reason",
			},
			[]string{"reason"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_export_total",
				Help: "Total batch export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "batch_export_latency_seconds",
				Help:    "Batch export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			pipelineJobs,
			pipelineJobLatency,
			pipelineRetries,
			pipelineDeadJobs,
			batchTransitions,
			transactionsGenerated,
			matchingErrors,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObservePipelineJob records one job execution.
func ObservePipelineJob(stage, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if pipelineJobs != nil {
		pipelineJobs.WithLabelValues(stage, result).Inc()
	}
	if pipelineJobLatency != nil {
		pipelineJobLatency.WithLabelValues(stage, result).Observe(duration.Seconds())
	}
}

// IncPipelineRetry increments the retry counter for a stage.
func IncPipelineRetry(stage string) {
	if pipelineRetries != nil {
		pipelineRetries.WithLabelValues(stage).Inc()
	}
}

// IncPipelineDead increments the dead job counter for a stage.
func IncPipelineDead(stage string) {
	if pipelineDeadJobs != nil {
		pipelineDeadJobs.WithLabelValues(stage).Inc()
	}
}

// IncBatchTransition counts a batch status change.
func IncBatchTransition(status string) {
	if status == "" {
		status = "unknown"
	}
	if batchTransitions != nil {
		batchTransitions.WithLabelValues(status).Inc()
	}
}

// AddTransactionsGenerated counts generated transactions by charge type.
func AddTransactionsGenerated(chargeType string, count int) {
	if count <= 0 {
		return
	}
	if chargeType == "" {
		chargeType = "unknown"
	}
	if transactionsGenerated != nil {
		transactionsGenerated.WithLabelValues(chargeType).Add(float64(count))
	}
}

// IncMatchingError counts a two-part tariff matching error.
func IncMatchingError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if matchingErrors != nil {
		matchingErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
