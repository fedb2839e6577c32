package decision

import (
	"math"
	"sort"
	"time"
)

// FeatureSet maps feature names to numeric values. Scoring visits features
// in ascending name order regardless of map iteration order.
type FeatureSet map[string]float64

// Names returns the feature names in ascending order.
func (f FeatureSet) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the feature set. A nil set clones to an empty one.
func (f FeatureSet) Clone() FeatureSet {
	out := make(FeatureSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// DefaultWeight is the weight of a feature the policy does not mention.
const DefaultWeight = 1.0

// Policy maps feature names to weights. It may omit features and may name
// features that are not present in a given FeatureSet.
type Policy map[string]float64

// Weight returns the weight for name, or DefaultWeight when unset.
func (p Policy) Weight(name string) float64 {
	if w, ok := p[name]; ok {
		return w
	}
	return DefaultWeight
}

// Clone returns a copy of the policy. A nil policy clones to an empty one.
func (p Policy) Clone() Policy {
	out := make(Policy, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Artifact is the output of a scoring run.
//
// An Artifact is produced once by Engine.Run and must be treated as
// read-only by every consumer. TraceID depends only on the features and
// policy, DataHash only on the features; neither depends on Timestamp.
type Artifact struct {
	Prediction        float64            `json:"prediction"`
	Confidence        float64            `json:"confidence"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	TraceID           string             `json:"trace_id"`
	ModelVersion      string             `json:"model_version"`
	DataHash          string             `json:"data_hash"`
	Timestamp         float64            `json:"timestamp"`
}

// Time returns Timestamp as a time.Time.
func (a *Artifact) Time() time.Time {
	sec, frac := math.Modf(a.Timestamp)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// Contribution is a single feature's signed contribution to a prediction.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// TopContributions returns at most n contributions ordered by descending
// absolute value. Ties keep ascending feature-name order.
func TopContributions(importance map[string]float64, n int) []Contribution {
	ranked := make([]Contribution, 0, len(importance))
	for name, v := range importance {
		ranked = append(ranked, Contribution{Feature: name, Value: v})
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Feature < ranked[j].Feature
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Value) > math.Abs(ranked[j].Value)
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
