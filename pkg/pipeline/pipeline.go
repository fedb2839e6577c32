package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/config"
	"mercator-hq/lucid/pkg/decision"
	"mercator-hq/lucid/pkg/explanation"
	"mercator-hq/lucid/pkg/hashing"
	"mercator-hq/lucid/pkg/responsibility"
	"mercator-hq/lucid/pkg/telemetry/logging"
	"mercator-hq/lucid/pkg/telemetry/metrics"
	"mercator-hq/lucid/pkg/telemetry/tracing"
)

// Stage names used for spans and the stage duration histogram.
const (
	StageDecision       = "decision"
	StageExplanation    = "explanation"
	StageResponsibility = "responsibility"
)

// Error kinds reported to metrics and spans.
const (
	KindValidation    = "validation"
	KindConfiguration = "configuration"
	KindSerialization = "serialization"
	KindInternal      = "internal"
)

// Recorder persists evaluated decisions. *recorder.Recorder implements it.
type Recorder interface {
	Record(ctx context.Context, d *decision.Artifact, x *explanation.Artifact, v *responsibility.Verdict) (*audit.Record, error)
}

// Input is one evaluation request.
type Input struct {
	Features decision.FeatureSet
	Policy   decision.Policy

	// Governance overrides the pipeline's governance for this input only.
	Governance *responsibility.Governance
}

// Result holds the three artifacts of one evaluation.
type Result struct {
	Decision    *decision.Artifact
	Explanation *explanation.Artifact
	Verdict     *responsibility.Verdict

	// Record is the queued audit record, or nil when recording is off or
	// failed.
	Record *audit.Record
}

// Document joins the artifacts into an audit document.
func (r *Result) Document() (*audit.Document, error) {
	return audit.NewDocument(r.Decision, r.Explanation, r.Verdict)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder records every successful evaluation.
func WithRecorder(rec Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = rec
	}
}

// WithTracer wraps every stage in a span.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// WithMetrics reports decisions, verdicts and stage durations to collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(p *Pipeline) {
		p.metrics = collector
	}
}

// Pipeline runs Decision, Explanation and Responsibility in order.
//
// A Pipeline is safe for concurrent use. The governance engine can be
// swapped while evaluations are running; each evaluation uses the engine
// that was current when its responsibility stage started.
type Pipeline struct {
	decision       *decision.Engine
	explanation    *explanation.Engine
	responsibility atomic.Pointer[responsibility.Engine]

	recorder Recorder
	tracer   *tracing.Tracer
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// New creates a pipeline from the three engines.
func New(d *decision.Engine, x *explanation.Engine, r *responsibility.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		decision:    d,
		explanation: x,
		logger:      slog.Default().With("component", "pipeline"),
	}
	p.responsibility.Store(r)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig builds the engines described by cfg and wires them into a
// pipeline. It returns a *responsibility.ConfigurationError when the
// configured governance is out of domain.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	r, err := responsibility.NewEngine(cfg.Governance.Options())
	if err != nil {
		return nil, err
	}

	d := decision.NewEngine(
		decision.WithModelVersion(cfg.Decision.ModelVersion),
		decision.WithSeed(cfg.Decision.Seed),
	)
	x := explanation.NewEngine(cfg.Explanation.Audience)

	return New(d, x, r, opts...), nil
}

// Governance returns the governance the pipeline currently applies.
func (p *Pipeline) Governance() responsibility.Governance {
	return p.responsibility.Load().Governance()
}

// SetResponsibility replaces the governance engine. Evaluations already past
// their decision stage may still use the previous engine.
func (p *Pipeline) SetResponsibility(r *responsibility.Engine) {
	if r == nil {
		return
	}
	p.responsibility.Store(r)
	p.logger.Info("governance updated",
		"min_confidence", r.Governance().MinConfidence,
		"use_sensitive_attrs", r.Governance().UseSensitiveAttrs,
	)
}

// Run evaluates one input.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := p.tracer.Start(ctx, "lucid.evaluate",
		trace.WithAttributes(attribute.Int(tracing.AttrFeatureCount, len(in.Features))))
	defer span.End()

	result, err := p.run(ctx, span, in)
	if err != nil {
		kind := ErrorKind(err)
		p.metrics.RecordError(kind)
		tracing.SetErrorAttributes(span, err, kind)
		p.logger.Warn("evaluation failed",
			"error_kind", kind,
			"error", err,
		)
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, span trace.Span, in Input) (*Result, error) {
	var d *decision.Artifact
	err := p.stage(ctx, StageDecision, func() (err error) {
		d, err = p.decision.Run(in.Features, in.Policy)
		return err
	})
	if err != nil {
		return nil, err
	}

	tracing.SetDecisionAttributes(span, d.TraceID, d.ModelVersion, d.DataHash, d.Prediction, d.Confidence)
	ctx = logging.WithTraceID(ctx, d.TraceID)
	logger := logging.FromContext(ctx, p.logger)

	var x *explanation.Artifact
	err = p.stage(ctx, StageExplanation, func() (err error) {
		x, err = p.explanation.Run(d)
		return err
	})
	if err != nil {
		return nil, err
	}

	engine := p.responsibility.Load()
	if in.Governance != nil {
		engine, err = responsibility.NewEngine(*in.Governance)
		if err != nil {
			return nil, err
		}
	}

	var v *responsibility.Verdict
	err = p.stage(ctx, StageResponsibility, func() (err error) {
		v, err = engine.Run(d, x)
		return err
	})
	if err != nil {
		return nil, err
	}

	rules := v.ViolatedRules()
	tracing.SetVerdictAttributes(span, v.Allowed, rules)
	p.metrics.RecordDecision(d.ModelVersion, d.Confidence)
	p.metrics.RecordVerdict(v.Allowed, rules)

	logger.Info("decision evaluated",
		"model_version", d.ModelVersion,
		"confidence", d.Confidence,
		"allowed", v.Allowed,
		"violations", rules,
	)

	result := &Result{Decision: d, Explanation: x, Verdict: v}

	if p.recorder != nil {
		record, err := p.recorder.Record(ctx, d, x, v)
		if err != nil {
			// The verdict stands even when the audit trail cannot keep up.
			logger.Error("failed to record decision", "error", err)
		} else {
			result.Record = record
		}
	}

	return result, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func() error) error {
	_, span := p.tracer.Start(ctx, "lucid."+name)
	defer span.End()

	start := time.Now()
	err := fn()
	p.metrics.RecordStage(name, time.Since(start))

	if err != nil {
		tracing.SetError(span, err)
		return err
	}
	return nil
}

// RunBatch evaluates inputs with at most parallelism evaluations in
// flight. Results are in input order. The first failure cancels the
// evaluations not yet started and is returned with the index of the
// failing input. A parallelism below one selects the configured default.
func (p *Pipeline) RunBatch(ctx context.Context, inputs []Input, parallelism int) ([]*Result, error) {
	return p.RunBatchWithProgress(ctx, inputs, parallelism, nil)
}

// RunBatchWithProgress is RunBatch with a callback invoked with the number
// of completed evaluations after each one succeeds. The callback may be
// called from several goroutines at once.
func (p *Pipeline) RunBatchWithProgress(ctx context.Context, inputs []Input, parallelism int, progress func(completed int)) ([]*Result, error) {
	if parallelism < 1 {
		parallelism = config.DefaultBatchParallelism
	}

	ctx, span := p.tracer.Start(ctx, "lucid.batch",
		trace.WithAttributes(attribute.Int(tracing.AttrBatchSize, len(inputs))))
	defer span.End()

	p.metrics.RecordBatch(len(inputs))

	results := make([]*Result, len(inputs))
	var completed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, in := range inputs {
		g.Go(func() error {
			result, err := p.Run(gctx, in)
			if err != nil {
				return &BatchError{Index: i, Cause: err}
			}
			results[i] = result
			if progress != nil {
				progress(int(completed.Add(1)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		tracing.SetError(span, err)
		return nil, err
	}

	p.logger.Debug("batch evaluated",
		"batch_size", len(inputs),
		"parallelism", parallelism,
	)
	return results, nil
}

// BatchError identifies the input that failed a batch.
type BatchError struct {
	Index int
	Cause error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return fmt.Sprintf("batch input %d: %v", e.Index, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *BatchError) Unwrap() error {
	return e.Cause
}

// ErrorKind classifies an evaluation error.
func ErrorKind(err error) string {
	var (
		validationErr    *decision.ValidationError
		configurationErr *responsibility.ConfigurationError
		serializationErr *hashing.SerializationError
	)
	switch {
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &configurationErr):
		return KindConfiguration
	case errors.As(err, &serializationErr):
		return KindSerialization
	default:
		return KindInternal
	}
}
