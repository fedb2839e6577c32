// Package metrics provides Prometheus metrics for Lucid.
//
// # Metrics
//
//   - Decisions: count by model version, confidence histogram, stage
//     durations, evaluation errors, batch sizes
//   - Governance: verdicts by outcome, violations by rule ID, reloads
//   - Audit: records stored, failed, dropped and pruned; write latency
//
// All metrics live in the collector's own registry and are prefixed with
// the configured namespace (default "lucid").
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordDecision(artifact.ModelVersion, artifact.Confidence)
//	collector.RecordVerdict(verdict.Allowed, verdict.ViolatedRules())
//
//	mux.Handle("/metrics", collector.Handler())
package metrics
