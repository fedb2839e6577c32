package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	lucidtest "mercator-hq/lucid/internal/testutil"
	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/config"
	"mercator-hq/lucid/pkg/decision"
	"mercator-hq/lucid/pkg/explanation"
	"mercator-hq/lucid/pkg/responsibility"
	"mercator-hq/lucid/pkg/telemetry/metrics"
	"mercator-hq/lucid/pkg/telemetry/tracing"
)

func newTestPipeline(t *testing.T, gov responsibility.Governance, opts ...Option) *Pipeline {
	t.Helper()

	r, err := responsibility.NewEngine(gov)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	d := decision.NewEngine(decision.WithClock(func() time.Time { return lucidtest.FixedTime }))
	return New(d, explanation.NewEngine(""), r, opts...)
}

func scenarioInput() Input {
	return Input{Features: lucidtest.ScenarioFeatures(), Policy: lucidtest.ScenarioPolicy()}
}

func TestPipeline_Run(t *testing.T) {
	p := newTestPipeline(t, responsibility.DefaultGovernance())

	result, err := p.Run(context.Background(), scenarioInput())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	d, x, v := lucidtest.Artifacts(t, lucidtest.ScenarioFeatures(), lucidtest.ScenarioPolicy(), responsibility.DefaultGovernance())
	if diff := cmp.Diff(d, result.Decision); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(x, result.Explanation); diff != "" {
		t.Errorf("explanation mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(v, result.Verdict); diff != "" {
		t.Errorf("verdict mismatch (-want +got):\n%s", diff)
	}

	if result.Decision.TraceID != lucidtest.ScenarioTraceID {
		t.Errorf("Expected trace ID %s, got %s", lucidtest.ScenarioTraceID, result.Decision.TraceID)
	}
	if result.Explanation.TraceID != result.Decision.TraceID || result.Verdict.TraceID != result.Decision.TraceID {
		t.Error("Expected all artifacts to share the decision trace ID")
	}
	if !result.Verdict.Allowed {
		t.Errorf("Expected scenario to be allowed, got reasons %v", result.Verdict.Reasons)
	}
	if result.Record != nil {
		t.Error("Expected no record without a recorder")
	}

	doc, err := result.Document()
	if err != nil {
		t.Fatalf("Document() failed: %v", err)
	}
	if doc.TraceID != lucidtest.ScenarioTraceID {
		t.Errorf("Expected document trace ID %s, got %s", lucidtest.ScenarioTraceID, doc.TraceID)
	}
}

func TestPipeline_GovernanceScenarios(t *testing.T) {
	lowFeatures := decision.FeatureSet{"attendance": 0.50, "assignments": 0.40, "labs": 0.45}
	floor := func(v float64) *responsibility.Governance {
		g := responsibility.DefaultGovernance()
		g.MinConfidence = v
		return &g
	}

	tests := []struct {
		name        string
		features    decision.FeatureSet
		governance  *responsibility.Governance
		wantAllowed bool
		wantRules   []string
	}{
		{
			name:        "default governance allows scenario",
			features:    lucidtest.ScenarioFeatures(),
			wantAllowed: true,
			wantRules:   []string{},
		},
		{
			name:        "strict floor blocks",
			features:    lucidtest.ScenarioFeatures(),
			governance:  floor(0.9),
			wantAllowed: false,
			wantRules:   []string{responsibility.RuleConfidenceFloor},
		},
		{
			name:     "sensitive attributes block",
			features: lucidtest.ScenarioFeatures(),
			governance: &responsibility.Governance{
				MinConfidence:     0.7,
				UseSensitiveAttrs: true,
			},
			wantAllowed: false,
			wantRules:   []string{responsibility.RuleSensitiveAttrs},
		},
		{
			name:        "lenient floor allows weaker record",
			features:    lowFeatures,
			governance:  floor(0.5),
			wantAllowed: true,
			wantRules:   []string{},
		},
		{
			name:        "default floor blocks weaker record",
			features:    lowFeatures,
			wantAllowed: false,
			wantRules:   []string{responsibility.RuleConfidenceFloor},
		},
	}

	p := newTestPipeline(t, responsibility.DefaultGovernance())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Run(context.Background(), Input{
				Features:   tt.features,
				Policy:     lucidtest.ScenarioPolicy(),
				Governance: tt.governance,
			})
			if err != nil {
				t.Fatalf("Run() failed: %v", err)
			}
			if result.Verdict.Allowed != tt.wantAllowed {
				t.Errorf("Expected allowed=%v, got %v (reasons %v)", tt.wantAllowed, result.Verdict.Allowed, result.Verdict.Reasons)
			}
			if diff := cmp.Diff(tt.wantRules, result.Verdict.ViolatedRules()); diff != "" {
				t.Errorf("violated rules mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if p.Governance() != responsibility.DefaultGovernance() {
		t.Error("Expected per-input governance to leave the pipeline governance unchanged")
	}
}

func TestPipeline_RunErrors(t *testing.T) {
	p := newTestPipeline(t, responsibility.DefaultGovernance())

	tests := []struct {
		name     string
		input    Input
		wantKind string
	}{
		{
			name:     "non-finite feature",
			input:    Input{Features: decision.FeatureSet{"attendance": math.NaN()}},
			wantKind: KindValidation,
		},
		{
			name:     "empty feature name",
			input:    Input{Features: decision.FeatureSet{"": 1}},
			wantKind: KindValidation,
		},
		{
			name: "governance out of range",
			input: Input{
				Features:   lucidtest.ScenarioFeatures(),
				Governance: &responsibility.Governance{MinConfidence: 1.5},
			},
			wantKind: KindConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Run(context.Background(), tt.input)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if got := ErrorKind(err); got != tt.wantKind {
				t.Errorf("Expected error kind %s, got %s (%v)", tt.wantKind, got, err)
			}
		})
	}
}

func TestPipeline_RunCancelled(t *testing.T) {
	p := newTestPipeline(t, responsibility.DefaultGovernance())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Run(ctx, scenarioInput()); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestPipeline_SetResponsibility(t *testing.T) {
	p := newTestPipeline(t, responsibility.DefaultGovernance())

	strict, err := responsibility.NewEngine(responsibility.Governance{MinConfidence: 0.9})
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	p.SetResponsibility(strict)
	p.SetResponsibility(nil)

	result, err := p.Run(context.Background(), scenarioInput())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if result.Verdict.Allowed {
		t.Error("Expected swapped governance to block the scenario")
	}
	if p.Governance().MinConfidence != 0.9 {
		t.Errorf("Expected min confidence 0.9, got %v", p.Governance().MinConfidence)
	}
}

func TestPipeline_SetResponsibilityConcurrent(t *testing.T) {
	p := newTestPipeline(t, responsibility.DefaultGovernance())
	lenient, _ := responsibility.NewEngine(responsibility.Governance{MinConfidence: 0.1})
	strict, _ := responsibility.NewEngine(responsibility.Governance{MinConfidence: 0.9})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 100 {
			if i%2 == 0 {
				p.SetResponsibility(lenient)
			} else {
				p.SetResponsibility(strict)
			}
		}
	}()

	for range 100 {
		result, err := p.Run(context.Background(), scenarioInput())
		if err != nil {
			t.Fatalf("Run() failed: %v", err)
		}
		// Whichever engine ran, its verdict must be internally consistent.
		if result.Verdict.Allowed != (len(result.Verdict.Reasons) == 0) {
			t.Fatalf("Inconsistent verdict: %+v", result.Verdict)
		}
	}
	wg.Wait()
}

// stubRecorder collects records in memory.
type stubRecorder struct {
	mu      sync.Mutex
	records []*audit.Record
	err     error
}

func (s *stubRecorder) Record(_ context.Context, d *decision.Artifact, x *explanation.Artifact, v *responsibility.Verdict) (*audit.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	doc, err := audit.NewDocument(d, x, v)
	if err != nil {
		return nil, err
	}
	record, err := audit.NewRecord(doc, lucidtest.FixedTime)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	return record, nil
}

func TestPipeline_Recorder(t *testing.T) {
	rec := &stubRecorder{}
	p := newTestPipeline(t, responsibility.DefaultGovernance(), WithRecorder(rec))

	result, err := p.Run(context.Background(), scenarioInput())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if result.Record == nil {
		t.Fatal("Expected record on result")
	}
	if len(rec.records) != 1 || rec.records[0].TraceID != lucidtest.ScenarioTraceID {
		t.Errorf("Expected one recorded scenario, got %d records", len(rec.records))
	}
}

func TestPipeline_RecorderFailureKeepsVerdict(t *testing.T) {
	rec := &stubRecorder{err: audit.ErrBufferFull}
	p := newTestPipeline(t, responsibility.DefaultGovernance(), WithRecorder(rec))

	result, err := p.Run(context.Background(), scenarioInput())
	if err != nil {
		t.Fatalf("Expected recording failure to be tolerated, got %v", err)
	}
	if result.Record != nil {
		t.Error("Expected no record when recording fails")
	}
	if result.Verdict == nil {
		t.Error("Expected verdict despite recording failure")
	}
}

func TestPipeline_RunBatch(t *testing.T) {
	p := newTestPipeline(t, responsibility.DefaultGovernance())

	inputs := make([]Input, 25)
	for i := range inputs {
		inputs[i] = Input{
			Features: decision.FeatureSet{"attendance": float64(i) / 25},
			Policy:   decision.Policy{"attendance": 1},
		}
	}

	results, err := p.RunBatch(context.Background(), inputs, 4)
	if err != nil {
		t.Fatalf("RunBatch() failed: %v", err)
	}
	if len(results) != len(inputs) {
		t.Fatalf("Expected %d results, got %d", len(inputs), len(results))
	}

	for i, result := range results {
		want, err := p.Run(context.Background(), inputs[i])
		if err != nil {
			t.Fatalf("Run() failed: %v", err)
		}
		if result.Decision.TraceID != want.Decision.TraceID {
			t.Errorf("result %d: expected trace ID %s, got %s", i, want.Decision.TraceID, result.Decision.TraceID)
		}
	}
}

func TestPipeline_RunBatchWithProgress(t *testing.T) {
	p := newTestPipeline(t, responsibility.DefaultGovernance())
	inputs := []Input{scenarioInput(), scenarioInput(), scenarioInput()}

	var mu sync.Mutex
	var seen []int
	_, err := p.RunBatchWithProgress(context.Background(), inputs, 2, func(completed int) {
		mu.Lock()
		seen = append(seen, completed)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("RunBatchWithProgress() failed: %v", err)
	}

	sort.Ints(seen)
	if diff := cmp.Diff([]int{1, 2, 3}, seen); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestPipeline_RunBatchFailure(t *testing.T) {
	p := newTestPipeline(t, responsibility.DefaultGovernance())

	inputs := []Input{
		scenarioInput(),
		{Features: decision.FeatureSet{"attendance": math.Inf(1)}},
		scenarioInput(),
	}

	results, err := p.RunBatch(context.Background(), inputs, 1)
	if results != nil {
		t.Error("Expected no results on failure")
	}

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("Expected *BatchError, got %v", err)
	}
	if batchErr.Index != 1 {
		t.Errorf("Expected failing index 1, got %d", batchErr.Index)
	}
	var validationErr *decision.ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("Expected wrapped *decision.ValidationError, got %v", err)
	}
}

func TestPipeline_RunBatchEmpty(t *testing.T) {
	p := newTestPipeline(t, responsibility.DefaultGovernance())

	results, err := p.RunBatch(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("RunBatch() failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected 0 results, got %d", len(results))
	}
}

func TestPipeline_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, registry)
	p := newTestPipeline(t, responsibility.Governance{MinConfidence: 0.9}, WithMetrics(collector))

	if _, err := p.Run(context.Background(), scenarioInput()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if _, err := p.Run(context.Background(), Input{Features: decision.FeatureSet{"": 1}}); err == nil {
		t.Fatal("Expected validation error")
	}

	expected := `
# HELP test_decisions_total Total number of decisions evaluated
# TYPE test_decisions_total counter
test_decisions_total{model_version="v1.0"} 1
# HELP test_evaluation_errors_total Total number of failed evaluations
# TYPE test_evaluation_errors_total counter
test_evaluation_errors_total{kind="validation"} 1
# HELP test_rule_violations_total Total number of governance rule violations
# TYPE test_rule_violations_total counter
test_rule_violations_total{rule_id="confidence-floor"} 1
# HELP test_verdicts_total Total number of governance verdicts by outcome
# TYPE test_verdicts_total counter
test_verdicts_total{outcome="blocked"} 1
`
	err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"test_decisions_total", "test_evaluation_errors_total", "test_rule_violations_total", "test_verdicts_total")
	if err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}

	series, err := testutil.GatherAndCount(registry, "test_stage_duration_seconds")
	if err != nil {
		t.Fatalf("GatherAndCount() failed: %v", err)
	}
	if series != 3 {
		t.Errorf("Expected 3 stage series, got %d", series)
	}
}

func TestPipeline_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := tracing.NewWithExporter(&config.TracingConfig{Enabled: true, Sampler: "always"}, "test", exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() failed: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	p := newTestPipeline(t, responsibility.DefaultGovernance(), WithTracer(tracer))
	if _, err := p.Run(context.Background(), scenarioInput()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	spans := exporter.GetSpans()
	var names []string
	for _, s := range spans {
		names = append(names, s.Name)
	}
	want := []string{"lucid.decision", "lucid.explanation", "lucid.responsibility", "lucid.evaluate"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("span names mismatch (-want +got):\n%s", diff)
	}

	root := spans[len(spans)-1]
	attrs := make(map[string]string)
	for _, kv := range root.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs[tracing.AttrTraceID] != lucidtest.ScenarioTraceID {
		t.Errorf("Expected trace ID attribute %s, got %q", lucidtest.ScenarioTraceID, attrs[tracing.AttrTraceID])
	}
	if attrs[tracing.AttrAllowed] != "true" {
		t.Errorf("Expected allowed attribute true, got %q", attrs[tracing.AttrAllowed])
	}
	for _, s := range spans[:3] {
		if s.Parent.SpanID() != root.SpanContext.SpanID() {
			t.Errorf("Expected %s to be a child of the evaluation span", s.Name)
		}
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Decision.ModelVersion = "v2.3"
	floor := 0.95
	cfg.Governance.MinConfidence = &floor

	p, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig() failed: %v", err)
	}
	result, err := p.Run(context.Background(), scenarioInput())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if result.Decision.ModelVersion != "v2.3" {
		t.Errorf("Expected model version v2.3, got %s", result.Decision.ModelVersion)
	}
	if result.Verdict.Allowed {
		t.Error("Expected configured floor to block the scenario")
	}

	bad := 2.0
	cfg.Governance.MinConfidence = &bad
	_, err = NewFromConfig(cfg)
	var cfgErr *responsibility.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected *responsibility.ConfigurationError, got %v", err)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{decision.NewValidationError("features", "bad", nil), KindValidation},
		{fmt.Errorf("wrapped: %w", responsibility.NewConfigurationError("min_confidence", 2.0, "range", nil)), KindConfiguration},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}
