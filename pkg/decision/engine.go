package decision

import (
	"fmt"
	"math"
	"time"

	"mercator-hq/lucid/pkg/hashing"
)

const (
	// DefaultModelVersion is the model version stamped on artifacts when
	// none is configured.
	DefaultModelVersion = "v1.0"

	// DefaultSeed is the reproducibility seed recorded by a new Engine.
	DefaultSeed int64 = 42

	// TraceIDPrefix prefixes every trace ID.
	TraceIDPrefix = "trace-"

	// TraceIDHexLen is the number of hash characters kept in a trace ID.
	TraceIDHexLen = 16

	// normEpsilon keeps the score defined when every weight is zero.
	normEpsilon = 1e-9
)

// Engine scores feature sets against weight policies.
//
// An Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	model        any
	modelVersion string
	seed         int64
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithModel attaches an opaque model handle. Scoring does not consult it.
func WithModel(model any) Option {
	return func(e *Engine) {
		e.model = model
	}
}

// WithModelVersion sets the model version stamped on every artifact.
// An empty version keeps DefaultModelVersion.
func WithModelVersion(version string) Option {
	return func(e *Engine) {
		if version != "" {
			e.modelVersion = version
		}
	}
}

// WithSeed records the seed handed to any randomized component. The current
// scoring path is deterministic and does not consume it.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.seed = seed
	}
}

// WithClock overrides the clock used for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a new Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		modelVersion: DefaultModelVersion,
		seed:         DefaultSeed,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the opaque model handle, if any.
func (e *Engine) Model() any { return e.model }

// ModelVersion returns the configured model version.
func (e *Engine) ModelVersion() string { return e.modelVersion }

// Seed returns the configured seed.
func (e *Engine) Seed() int64 { return e.seed }

// Run scores features against policy.
//
// The score is the dot product of weights and values divided by the L2 norm
// of the weights (plus a small epsilon), and confidence is its logistic
// transform. Each feature's importance is weight*value; importances are not
// normalized and do not sum to the score. An empty feature set scores 0.0
// with confidence 0.5.
func (e *Engine) Run(features FeatureSet, policy Policy) (*Artifact, error) {
	if err := validate(features, policy); err != nil {
		return nil, err
	}

	names := features.Names()
	importance := make(map[string]float64, len(names))

	var dot, sumSquares float64
	for _, name := range names {
		w := policy.Weight(name)
		x := features[name]
		dot += w * x
		sumSquares += w * w
		importance[name] = w * x
	}

	score := dot / (math.Sqrt(sumSquares) + normEpsilon)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, NewValidationError("policy", "weights overflow the score computation", nil)
	}
	confidence := Sigmoid(score)

	// Hash private copies so nil inputs canonicalize as empty objects.
	f := features.Clone()
	p := policy.Clone()

	dataHash, err := hashing.Hash(map[string]any{"features": f})
	if err != nil {
		return nil, fmt.Errorf("failed to hash features: %w", err)
	}

	traceHash, err := hashing.Hash(map[string]any{"features": f, "policy": p})
	if err != nil {
		return nil, fmt.Errorf("failed to hash features and policy: %w", err)
	}

	return &Artifact{
		Prediction:        score,
		Confidence:        confidence,
		FeatureImportance: importance,
		TraceID:           TraceIDPrefix + traceHash[:TraceIDHexLen],
		ModelVersion:      e.modelVersion,
		DataHash:          dataHash,
		Timestamp:         float64(e.now().UnixNano()) / 1e9,
	}, nil
}

// Sigmoid is the logistic function 1/(1+e^-x).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func validate(features FeatureSet, policy Policy) error {
	for _, name := range features.Names() {
		v := features[name]
		if name == "" {
			return NewValidationError("features", "feature name must not be empty", nil)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewValidationError("features."+name, fmt.Sprintf("value must be finite, got %v", v), nil)
		}
	}
	for _, name := range FeatureSet(policy).Names() {
		w := policy[name]
		if name == "" {
			return NewValidationError("policy", "feature name must not be empty", nil)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return NewValidationError("policy."+name, fmt.Sprintf("weight must be finite, got %v", w), nil)
		}
	}
	return nil
}

// IsTraceID reports whether s has the shape of a trace ID.
func IsTraceID(s string) bool {
	if len(s) != len(TraceIDPrefix)+TraceIDHexLen || s[:len(TraceIDPrefix)] != TraceIDPrefix {
		return false
	}
	for _, c := range s[len(TraceIDPrefix):] {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
