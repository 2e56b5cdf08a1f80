// Package metrics provides Prometheus metrics for advisor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal tracks pipeline jobs by kind and outcome
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisor",
			Subsystem: "pipeline",
			Name:      "jobs_total",
			Help:      "Total number of pipeline jobs by kind and status",
		},
		[]string{"kind", "status"},
	)

	// JobDuration tracks pipeline job duration in seconds
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "advisor",
			Subsystem: "pipeline",
			Name:      "job_duration_seconds",
			Help:      "Duration of pipeline jobs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	// RowsTotal tracks parsed rows by outcome
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisor",
			Subsystem: "ingest",
			Name:      "rows_total",
			Help:      "Total number of input rows by outcome",
		},
		[]string{"outcome"},
	)

	// ClassificationsTotal tracks classifier results by category
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisor",
			Subsystem: "classifier",
			Name:      "classifications_total",
			Help:      "Total number of classified recommendations by commitment category",
		},
		[]string{"category"},
	)

	// ConversionsTotal tracks document conversions per engine
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisor",
			Subsystem: "convert",
			Name:      "attempts_total",
			Help:      "Total number of conversion attempts by engine and status",
		},
		[]string{"engine", "status"},
	)

	// ConversionDuration tracks conversion attempt duration per engine
	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "advisor",
			Subsystem: "convert",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of conversion attempts in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"engine"},
	)

	// QueueMessagesTotal tracks queue messages consumed and published
	QueueMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisor",
			Subsystem: "queue",
			Name:      "messages_total",
			Help:      "Total number of queue messages by direction and status",
		},
		[]string{"direction", "status"},
	)

	// QueueJobsInFlight tracks jobs currently being processed
	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "advisor",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)
)

// RecordJob records a pipeline job outcome
func RecordJob(kind, status string, durationSeconds float64) {
	JobsTotal.WithLabelValues(kind, status).Inc()
	JobDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordRows records parsed and skipped row counts
func RecordRows(parsed, skipped int) {
	RowsTotal.WithLabelValues("parsed").Add(float64(parsed))
	RowsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordClassification records one classifier result
func RecordClassification(category string) {
	ClassificationsTotal.WithLabelValues(category).Inc()
}

// RecordConversion records one conversion attempt
func RecordConversion(engine, status string, durationSeconds float64) {
	ConversionsTotal.WithLabelValues(engine, status).Inc()
	ConversionDuration.WithLabelValues(engine).Observe(durationSeconds)
}

// RecordQueueMessage records a consumed or published queue message
func RecordQueueMessage(direction, status string) {
	QueueMessagesTotal.WithLabelValues(direction, status).Inc()
}
