// Package tracing provides OpenTelemetry tracing for Lucid.
//
// Each evaluation produces a span per pipeline stage (decision,
// explanation, responsibility) under a parent evaluation span. Spans are
// exported over OTLP gRPC. When tracing is disabled a noop tracer is used
// and spans cost next to nothing.
//
// # Sampling
//
//   - always: sample every evaluation
//   - never: sample nothing
//   - ratio: sample a fraction by trace ID
//
// All samplers respect the parent span's decision.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "decision.run")
//	defer span.End()
package tracing
