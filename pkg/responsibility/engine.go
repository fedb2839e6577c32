package responsibility

import (
	"fmt"
	"strconv"

	"mercator-hq/lucid/pkg/decision"
	"mercator-hq/lucid/pkg/explanation"
)

// Rule identifiers, in evaluation order.
const (
	RuleSensitiveAttrs  = "sensitive-attrs"
	RuleConfidenceFloor = "confidence-floor"
)

// Metric keys reported on every verdict.
const (
	MetricConfidence  = "confidence"
	MetricTopFeature1 = "top_feature_1"
	MetricTopFeature2 = "top_feature_2"
	MetricTopFeature3 = "top_feature_3"
)

const reasonSensitiveAttrs = "Sensitive attributes were used."

// Violation is a governance rule that blocked a decision.
type Violation struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// AuditBundle carries what a reviewer needs to reconstruct a verdict
// without re-running the pipeline.
type AuditBundle struct {
	TraceID           string             `json:"trace_id"`
	DataHash          string             `json:"data_hash"`
	ModelVersion      string             `json:"model_version"`
	Timestamp         float64            `json:"timestamp"`
	Summary           string             `json:"summary"`
	Caveats           []string           `json:"caveats"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	Confidence        float64            `json:"confidence"`
}

// Verdict is the outcome of the governance checks. Reasons is empty if and
// only if Allowed is true.
type Verdict struct {
	Allowed     bool               `json:"allowed"`
	Reasons     []string           `json:"reasons"`
	Metrics     map[string]float64 `json:"metrics"`
	AuditBundle AuditBundle        `json:"audit_bundle"`
	TraceID     string             `json:"trace_id"`
	Violations  []Violation        `json:"violations,omitempty"`
}

// ViolatedRules returns the IDs of the violated rules in evaluation order.
func (v *Verdict) ViolatedRules() []string {
	rules := make([]string, 0, len(v.Violations))
	for _, violation := range v.Violations {
		rules = append(rules, violation.RuleID)
	}
	return rules
}

// Engine applies governance rules to explained decisions. It is immutable
// and safe for concurrent use.
type Engine struct {
	governance Governance
}

// NewEngine creates a new Engine. It returns a *ConfigurationError when the
// governance options are out of domain.
func NewEngine(g Governance) (*Engine, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Engine{governance: g}, nil
}

// NewEngineFromMap decodes raw governance options and creates an Engine.
// Unrecognized keys are returned alongside the engine.
func NewEngineFromMap(raw map[string]any) (*Engine, []string, error) {
	g, unused, err := DecodeGovernance(raw)
	if err != nil {
		return nil, unused, err
	}
	e, err := NewEngine(g)
	return e, unused, err
}

// Governance returns the options the engine evaluates.
func (e *Engine) Governance() Governance {
	return e.governance
}

// Run evaluates every rule against d and x and builds the verdict. All rules
// are evaluated; a decision may be blocked for several reasons at once.
func (e *Engine) Run(d *decision.Artifact, x *explanation.Artifact) (*Verdict, error) {
	if err := explanation.CheckDecision(d); err != nil {
		return nil, err
	}
	if x == nil {
		return nil, fmt.Errorf("%w: explanation is nil", explanation.ErrMalformedDecision)
	}
	if x.TraceID != d.TraceID {
		return nil, fmt.Errorf("%w: %s != %s", ErrTraceMismatch, x.TraceID, d.TraceID)
	}

	violations := e.evaluate(d)
	reasons := make([]string, 0, len(violations))
	for _, v := range violations {
		reasons = append(reasons, v.Reason)
	}

	return &Verdict{
		Allowed:     len(reasons) == 0,
		Reasons:     reasons,
		Metrics:     buildMetrics(d),
		AuditBundle: buildAuditBundle(d, x),
		TraceID:     d.TraceID,
		Violations:  violations,
	}, nil
}

func (e *Engine) evaluate(d *decision.Artifact) []Violation {
	var violations []Violation

	if e.governance.UseSensitiveAttrs {
		violations = append(violations, Violation{
			RuleID: RuleSensitiveAttrs,
			Reason: reasonSensitiveAttrs,
		})
	}

	if d.Confidence < e.governance.MinConfidence {
		violations = append(violations, Violation{
			RuleID: RuleConfidenceFloor,
			Reason: confidenceReason(d.Confidence, e.governance.MinConfidence),
		})
	}

	return violations
}

func buildMetrics(d *decision.Artifact) map[string]float64 {
	top := decision.TopContributions(d.FeatureImportance, 3)
	metrics := map[string]float64{
		MetricConfidence:  d.Confidence,
		MetricTopFeature1: 0,
		MetricTopFeature2: 0,
		MetricTopFeature3: 0,
	}
	keys := []string{MetricTopFeature1, MetricTopFeature2, MetricTopFeature3}
	for i, c := range top {
		metrics[keys[i]] = c.Value
	}
	return metrics
}

func buildAuditBundle(d *decision.Artifact, x *explanation.Artifact) AuditBundle {
	importance := make(map[string]float64, len(d.FeatureImportance))
	for k, v := range d.FeatureImportance {
		importance[k] = v
	}
	caveats := make([]string, len(x.Caveats))
	copy(caveats, x.Caveats)

	return AuditBundle{
		TraceID:           d.TraceID,
		DataHash:          d.DataHash,
		ModelVersion:      d.ModelVersion,
		Timestamp:         d.Timestamp,
		Summary:           x.Summary,
		Caveats:           caveats,
		FeatureImportance: importance,
		Confidence:        d.Confidence,
	}
}

// confidenceReason prints both values with two decimals, or with as many
// more as it takes for them to differ.
func confidenceReason(confidence, floor float64) string {
	for prec := 2; prec <= 17; prec++ {
		c := strconv.FormatFloat(confidence, 'f', prec, 64)
		f := strconv.FormatFloat(floor, 'f', prec, 64)
		if c != f {
			return fmt.Sprintf("Confidence %s is below threshold %s.", c, f)
		}
	}
	return fmt.Sprintf("Confidence %s is below threshold %s.",
		strconv.FormatFloat(confidence, 'g', -1, 64), strconv.FormatFloat(floor, 'g', -1, 64))
}
