// Package health provides liveness and readiness probes.
//
// Liveness only reports that the process runs. Readiness runs every
// registered check (for example an audit storage ping) concurrently with
// a per-check timeout and answers 503 when any fails or the server is
// draining:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("audit_storage", store.Ping)
//	mux.HandleFunc("/health", checker.LivenessHandler())
//	mux.HandleFunc("/ready", checker.ReadinessHandler())
package health
