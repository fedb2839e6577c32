// Package telemetry groups Lucid's observability packages.
//
//   - logging: slog loggers carrying decision trace IDs
//   - metrics: Prometheus metrics for decisions, verdicts and the audit trail
//   - tracing: OpenTelemetry spans per pipeline stage
//   - health: liveness and readiness probes
package telemetry
