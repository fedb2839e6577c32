// Package server provides the HTTP evaluation server.
//
// # Endpoints
//
//   - POST /v1/evaluate: evaluate a request document (JSON, or YAML with a
//     YAML content type) and return the audit document as JSON.
//   - GET /v1/audit/{trace_id}: fetch a stored audit record, when audit
//     storage is configured.
//   - GET /health: liveness; always 200 while the process serves.
//   - GET /ready: readiness; 503 while a registered check fails or the
//     server is draining.
//   - GET /metrics: Prometheus metrics, when a collector is configured.
//
// Evaluation errors map to status codes: malformed documents, schema
// violations and unscorable values are 400; out-of-domain governance in
// the request is 422; anything else is 500. Error bodies have the shape
//
//	{"error": {"type": "validation_error", "field": "features.labs", "message": "..."}}
//
// The decision trace ID is returned in the X-Lucid-Trace-ID header. Unknown
// governance keys are ignored and listed in X-Lucid-Ignored-Governance.
//
// # Lifecycle
//
// Start blocks until its context is cancelled, SIGINT or SIGTERM arrives,
// or the listener fails, then shuts down gracefully within the configured
// shutdown timeout.
//
//	srv := server.New(&cfg.Server, p,
//	    server.WithMetrics(collector, cfg.Telemetry.Metrics.Path),
//	    server.WithHealth(checker),
//	)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
package server
