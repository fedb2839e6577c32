package responsibility

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultGovernance(t *testing.T) {
	g := DefaultGovernance()
	if g.MinConfidence != 0.7 {
		t.Errorf("Expected min_confidence 0.7, got %v", g.MinConfidence)
	}
	if g.UseSensitiveAttrs {
		t.Error("Expected use_sensitive_attrs false")
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestDecodeGovernance(t *testing.T) {
	tests := []struct {
		name       string
		raw        map[string]any
		want       Governance
		wantUnused []string
	}{
		{
			name: "nil map",
			raw:  nil,
			want: DefaultGovernance(),
		},
		{
			name: "partial override",
			raw:  map[string]any{"min_confidence": 0.9},
			want: Governance{MinConfidence: 0.9},
		},
		{
			name: "full override",
			raw:  map[string]any{"min_confidence": 0.5, "use_sensitive_attrs": true},
			want: Governance{MinConfidence: 0.5, UseSensitiveAttrs: true},
		},
		{
			name: "integer threshold",
			raw:  map[string]any{"min_confidence": 1},
			want: Governance{MinConfidence: 1},
		},
		{
			name:       "unknown keys ignored",
			raw:        map[string]any{"use_sensitive_attrs": false, "region": "eu", "audit_level": 3},
			want:       DefaultGovernance(),
			wantUnused: []string{"audit_level", "region"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unused, err := DecodeGovernance(tt.raw)
			if err != nil {
				t.Fatalf("DecodeGovernance() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
			if diff := cmp.Diff(tt.wantUnused, unused); diff != "" {
				t.Errorf("Unused keys mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeGovernance_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"threshold above one", map[string]any{"min_confidence": 1.5}},
		{"negative threshold", map[string]any{"min_confidence": -0.2}},
		{"string threshold", map[string]any{"min_confidence": "high"}},
		{"string flag", map[string]any{"use_sensitive_attrs": "yes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeGovernance(tt.raw)
			var cerr *ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("Expected *ConfigurationError, got %v", err)
			}
		})
	}
}

func TestNewEngineFromMap(t *testing.T) {
	e, unused, err := NewEngineFromMap(map[string]any{"min_confidence": 0.8, "note": "x"})
	if err != nil {
		t.Fatalf("NewEngineFromMap() error = %v", err)
	}
	if e.Governance().MinConfidence != 0.8 {
		t.Errorf("Expected min_confidence 0.8, got %v", e.Governance().MinConfidence)
	}
	if diff := cmp.Diff([]string{"note"}, unused); diff != "" {
		t.Errorf("Unused keys mismatch (-want +got):\n%s", diff)
	}

	if _, _, err := NewEngineFromMap(map[string]any{"min_confidence": 2}); err == nil {
		t.Error("Expected error for out-of-range threshold")
	}
}

func TestGovernance_Map(t *testing.T) {
	want := map[string]any{"min_confidence": 0.7, "use_sensitive_attrs": false}
	if diff := cmp.Diff(want, DefaultGovernance().Map()); diff != "" {
		t.Errorf("Map() mismatch (-want +got):\n%s", diff)
	}
}
