package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DecisionMetrics tracks decision evaluation.
//
// Metrics:
//   - lucid_decisions_total: decisions by model version
//   - lucid_decision_confidence: confidence distribution
//   - lucid_stage_duration_seconds: duration of each pipeline stage
//   - lucid_evaluation_errors_total: failed evaluations by error kind
//   - lucid_batch_size: inputs per batch
type DecisionMetrics struct {
	decisionsTotal *prometheus.CounterVec
	confidence     prometheus.Histogram
	stageDuration  *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	batchSize      prometheus.Histogram
}

// NewDecisionMetrics creates and registers decision metrics.
func NewDecisionMetrics(namespace string, confidenceBuckets []float64, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Total number of decisions evaluated",
			},
			[]string{"model_version"},
		),

		confidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_confidence",
				Help:      "Distribution of decision confidence",
				Buckets:   confidenceBuckets,
			},
		),

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each evaluation stage in seconds",
				// Stages are pure computation; 1µs to ~16ms.
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15),
			},
			[]string{"stage"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluation_errors_total",
				Help:      "Total number of failed evaluations",
			},
			[]string{"kind"},
		),

		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_size",
				Help:      "Number of inputs per batch evaluation",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}

	registry.MustRegister(
		dm.decisionsTotal,
		dm.confidence,
		dm.stageDuration,
		dm.errorsTotal,
		dm.batchSize,
	)

	return dm
}

// RecordDecision records one decision.
func (dm *DecisionMetrics) RecordDecision(modelVersion string, confidence float64) {
	dm.decisionsTotal.WithLabelValues(modelVersion).Inc()
	dm.confidence.Observe(confidence)
}

// RecordStage records a stage duration.
func (dm *DecisionMetrics) RecordStage(stage string, duration time.Duration) {
	dm.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordError records a failed evaluation.
func (dm *DecisionMetrics) RecordError(kind string) {
	dm.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordBatch records a batch size.
func (dm *DecisionMetrics) RecordBatch(size int) {
	dm.batchSize.Observe(float64(size))
}
