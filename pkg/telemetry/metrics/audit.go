package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AuditMetrics tracks the audit trail.
type AuditMetrics struct {
	storedTotal   prometheus.Counter
	failedTotal   prometheus.Counter
	droppedTotal  prometheus.Counter
	prunedTotal   prometheus.Counter
	writeDuration prometheus.Histogram
}

// NewAuditMetrics creates and registers audit metrics.
func NewAuditMetrics(namespace string, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		storedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "records_stored_total",
			Help:      "Total number of audit records stored",
		}),
		failedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "records_failed_total",
			Help:      "Total number of audit records that failed to store",
		}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "records_dropped_total",
			Help:      "Total number of audit records dropped on a full buffer",
		}),
		prunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "records_pruned_total",
			Help:      "Total number of audit records removed by retention",
		}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_duration_seconds",
			Help:      "Duration of audit record writes in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		am.storedTotal,
		am.failedTotal,
		am.droppedTotal,
		am.prunedTotal,
		am.writeDuration,
	)

	return am
}

// RecordStored records a successful write.
func (am *AuditMetrics) RecordStored(duration time.Duration) {
	am.storedTotal.Inc()
	am.writeDuration.Observe(duration.Seconds())
}

// RecordFailed records a failed write.
func (am *AuditMetrics) RecordFailed() {
	am.failedTotal.Inc()
}

// RecordDropped records a dropped record.
func (am *AuditMetrics) RecordDropped() {
	am.droppedTotal.Inc()
}

// RecordPruned records pruned records.
func (am *AuditMetrics) RecordPruned(count int64) {
	am.prunedTotal.Add(float64(count))
}
