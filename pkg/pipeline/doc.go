// Package pipeline runs the decision, explanation and responsibility
// engines in sequence and joins their artifacts.
//
// Every evaluation is wrapped in an OpenTelemetry span with one child span
// per stage, counted in Prometheus, and logged with its trace ID. A
// Recorder, when configured, receives every successful evaluation; a
// recording failure is logged and does not fail the evaluation.
//
//	p, err := pipeline.NewFromConfig(cfg,
//	    pipeline.WithMetrics(collector),
//	    pipeline.WithTracer(tracer),
//	)
//	if err != nil {
//	    return err
//	}
//	result, err := p.Run(ctx, pipeline.Input{
//	    Features: decision.FeatureSet{"attendance": 0.82},
//	    Policy:   decision.Policy{"attendance": 0.4},
//	})
//
// RunBatch evaluates many inputs concurrently with a bounded number of
// workers and returns results in input order.
//
// SetResponsibility swaps the governance engine without stopping
// evaluations, which is how configuration hot reload applies new
// governance options.
package pipeline
