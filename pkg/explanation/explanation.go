package explanation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mercator-hq/lucid/pkg/decision"
)

const (
	// DefaultAudience is the audience tag of a new Engine.
	DefaultAudience = "default"

	// TopN is the number of contributors named in summaries and
	// counterfactuals.
	TopN = 3

	// CounterfactualChange describes the perturbation applied to each top
	// feature.
	CounterfactualChange = "+10%"

	counterfactualFactor = 0.1

	noContributorsSummary = "No significant features contributed to the decision."
	summaryPrefix         = "Prediction was primarily influenced by: "
)

// Caveats are attached, in this order, to every explanation.
var Caveats = []string{
	"No sensitive attributes were used.",
	"Feature weights are explicitly defined by policy.",
	"Confidence is derived from a logistic mapping of score.",
}

// ErrMalformedDecision is returned when a decision artifact is nil or lacks
// a trace ID.
var ErrMalformedDecision = errors.New("malformed decision artifact")

// Technical restates decision fields for audit consumption.
type Technical struct {
	Prediction        float64            `json:"prediction"`
	Confidence        float64            `json:"confidence"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	ModelVersion      string             `json:"model_version"`
}

// Counterfactual estimates the effect of nudging one feature.
//
// EstimatedImpact is the linear first-order estimate 0.1*importance rounded
// to four decimals. It approximates the change in the weighted sum, not in
// the normalized score or confidence.
type Counterfactual struct {
	Feature         string  `json:"feature"`
	Change          string  `json:"change"`
	EstimatedImpact float64 `json:"estimated_impact"`
}

// Artifact is the explanation of one decision. It is read-only once built.
type Artifact struct {
	Summary         string           `json:"summary"`
	Technical       Technical        `json:"technical"`
	Counterfactuals []Counterfactual `json:"counterfactuals"`
	Caveats         []string         `json:"caveats"`
	TraceID         string           `json:"trace_id"`
}

// Engine builds explanations. It is safe for concurrent use.
type Engine struct {
	audience string
}

// NewEngine creates a new Engine for the given audience. An empty audience
// selects DefaultAudience. The audience is recorded but does not change the
// output.
func NewEngine(audience string) *Engine {
	if audience == "" {
		audience = DefaultAudience
	}
	return &Engine{audience: audience}
}

// Audience returns the audience tag.
func (e *Engine) Audience() string { return e.audience }

// Run explains d.
func (e *Engine) Run(d *decision.Artifact) (*Artifact, error) {
	if err := CheckDecision(d); err != nil {
		return nil, err
	}

	top := decision.TopContributions(d.FeatureImportance, TopN)

	importance := make(map[string]float64, len(d.FeatureImportance))
	for k, v := range d.FeatureImportance {
		importance[k] = v
	}

	counterfactuals := make([]Counterfactual, 0, len(top))
	for _, c := range top {
		counterfactuals = append(counterfactuals, Counterfactual{
			Feature:         c.Feature,
			Change:          CounterfactualChange,
			EstimatedImpact: Round(counterfactualFactor*c.Value, 4),
		})
	}

	caveats := make([]string, len(Caveats))
	copy(caveats, Caveats)

	return &Artifact{
		Summary: Summarize(top),
		Technical: Technical{
			Prediction:        d.Prediction,
			Confidence:        d.Confidence,
			FeatureImportance: importance,
			ModelVersion:      d.ModelVersion,
		},
		Counterfactuals: counterfactuals,
		Caveats:         caveats,
		TraceID:         d.TraceID,
	}, nil
}

// Summarize renders the summary sentence for ranked contributors.
func Summarize(top []decision.Contribution) string {
	if len(top) == 0 {
		return noContributorsSummary
	}
	names := make([]string, len(top))
	for i, c := range top {
		names[i] = c.Feature
	}
	return summaryPrefix + strings.Join(names, ", ") + "."
}

// CheckDecision returns ErrMalformedDecision if d cannot be explained.
func CheckDecision(d *decision.Artifact) error {
	if d == nil {
		return fmt.Errorf("%w: decision is nil", ErrMalformedDecision)
	}
	if d.TraceID == "" {
		return fmt.Errorf("%w: missing trace_id", ErrMalformedDecision)
	}
	return nil
}

// Round rounds v to the given number of decimal places. Rounding is done on
// the exact binary value, so 0.00045 (stored just below the tie) rounds down.
func Round(v float64, places int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return f
}
