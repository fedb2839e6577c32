package responsibility

import (
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
)

const (
	// DefaultMinConfidence is the confidence floor applied when none is set.
	DefaultMinConfidence = 0.7

	// DefaultUseSensitiveAttrs is the default sensitive-attribute disclosure.
	DefaultUseSensitiveAttrs = false
)

// Governance holds the options the responsibility rules evaluate.
type Governance struct {
	// MinConfidence blocks decisions whose confidence is strictly below it.
	// Must lie in [0, 1].
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence" mapstructure:"min_confidence"`

	// UseSensitiveAttrs declares that sensitive attributes were used to
	// produce the decision. When true every decision is blocked. The
	// feature names themselves are never inspected.
	UseSensitiveAttrs bool `yaml:"use_sensitive_attrs" json:"use_sensitive_attrs" mapstructure:"use_sensitive_attrs"`
}

// DefaultGovernance returns the default governance options.
func DefaultGovernance() Governance {
	return Governance{
		MinConfidence:     DefaultMinConfidence,
		UseSensitiveAttrs: DefaultUseSensitiveAttrs,
	}
}

// Validate returns a *ConfigurationError if an option is out of domain.
func (g Governance) Validate() error {
	// NaN fails both comparisons, so test the accepted range directly.
	if !(g.MinConfidence >= 0 && g.MinConfidence <= 1) {
		return NewConfigurationError("min_confidence", g.MinConfidence, "must be between 0 and 1", nil)
	}
	return nil
}

// DecodeGovernance decodes a dynamic governance mapping on top of the
// defaults. Keys it does not recognize are ignored and returned, sorted, so
// callers can report them. The result is validated.
func DecodeGovernance(raw map[string]any) (Governance, []string, error) {
	g := DefaultGovernance()
	if len(raw) == 0 {
		return g, nil, nil
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: &md,
		Result:   &g,
		TagName:  "mapstructure",
	})
	if err != nil {
		return Governance{}, nil, fmt.Errorf("failed to create governance decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return Governance{}, nil, NewConfigurationError("governance", raw, "invalid option type", err)
	}

	var unused []string
	if len(md.Unused) > 0 {
		unused = append(unused, md.Unused...)
		sort.Strings(unused)
	}

	if err := g.Validate(); err != nil {
		return Governance{}, unused, err
	}
	return g, unused, nil
}

// Map returns the governance options as a plain mapping.
func (g Governance) Map() map[string]any {
	return map[string]any{
		"min_confidence":      g.MinConfidence,
		"use_sensitive_attrs": g.UseSensitiveAttrs,
	}
}
