package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func computeSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{"nil", nil, "null"},
		{"true", true, "true"},
		{"int", 42, "42"},
		{"negative int", int64(-7), "-7"},
		{"uint", uint8(255), "255"},
		{"integral float", 1.0, "1.0"},
		{"zero float", 0.0, "0.0"},
		{"negative zero", math.Copysign(0, -1), "-0.0"},
		{"fraction", 0.82, "0.82"},
		{"small fixed", 0.0001, "0.0001"},
		{"small exponent", 0.00001, "1e-05"},
		{"large fixed", 1e15, "1000000000000000.0"},
		{"large exponent", 1e16, "1e+16"},
		{"large exponent fraction", 1.5e16, "1.5e+16"},
		{"huge", 1e100, "1e+100"},
		{"shortest repr", func() float64 { a, b := 0.1, 0.2; return a + b }(), "0.30000000000000004"},
		{"json number int", json.Number("12"), "12"},
		{"json number float", json.Number("12.50"), "12.5"},
		{"string", "hello", `"hello"`},
		{"escapes", "a\"b\\c\n\r\t\b\f", `"a\"b\\c\n\r\t\b\f"`},
		{"control", "\x01\x7f", `"\u0001\u007f"`},
		{"non-ascii", "é", `"\u00e9"`},
		{"astral", "😀", `"\ud83d\ude00"`},
		{"empty map", map[string]any{}, "{}"},
		{"nil map", map[string]float64(nil), "{}"},
		{"nil slice", []any(nil), "[]"},
		{"sorted keys", map[string]int{"b": 2, "a": 1, "B": 3}, `{"B":3,"a":1,"b":2}`},
		{"array", [2]string{"x", "y"}, `["x","y"]`},
		{"pointer", func() *float64 { f := 2.5; return &f }(), "2.5"},
		{
			"nested",
			map[string]any{"features": map[string]float64{"labs": 0.74, "attendance": 0.82, "assignments": 0.67}},
			`{"features":{"assignments":0.67,"attendance":0.82,"labs":0.74}}`,
		},
		{
			"mixed",
			map[string]any{
				"b": []any{1, 2.5, nil, true, false, "xé\n\"q"},
				"a": 1e-7,
				"c": 1e16,
				"d": 123456789012345.0,
				"e": math.Copysign(0, -1),
				"f": 0.1,
			},
			`{"a":1e-07,"b":[1,2.5,null,true,false,"x\u00e9\n\"q"],"c":1e+16,"d":123456789012345.0,"e":-0.0,"f":0.1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.value)
			if err != nil {
				t.Fatalf("Canonicalize() error = %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("Canonicalize() = %s, want %s", got, tt.expected)
			}
		})
	}
}

type namedFeatures map[string]float64

func TestCanonicalize_NamedTypes(t *testing.T) {
	got, err := Canonicalize(map[string]any{"features": namedFeatures{"a": 1}})
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}
	if string(got) != `{"features":{"a":1.0}}` {
		t.Errorf("Expected named map to encode like its underlying type, got %s", got)
	}
}

func TestCanonicalize_Errors(t *testing.T) {
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	list := []any{nil}
	list[0] = list

	tests := []struct {
		name string
		val  any
		path string
	}{
		{"nan", math.NaN(), "$"},
		{"positive inf", math.Inf(1), "$"},
		{"nested nan", map[string]any{"features": map[string]float64{"x": math.NaN()}}, "$.features.x"},
		{"negative inf in list", []any{1, math.Inf(-1)}, "$[1]"},
		{"cyclic map", cyclic, "$.self"},
		{"cyclic slice", list, "$[0]"},
		{"struct", struct{ A int }{1}, "$"},
		{"func", func() {}, "$"},
		{"channel", make(chan int), "$"},
		{"complex", complex(1, 2), "$"},
		{"int keys", map[int]string{1: "a"}, "$"},
		{"invalid utf8", "\xff", "$"},
		{"bad json number", json.Number("abc"), "$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.val)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			var serr *SerializationError
			if !errors.As(err, &serr) {
				t.Fatalf("Expected *SerializationError, got %T", err)
			}
			if serr.Path != tt.path {
				t.Errorf("Expected path %q, got %q", tt.path, serr.Path)
			}
		})
	}
}

func TestCanonicalize_SharedReferencesAreNotCycles(t *testing.T) {
	shared := map[string]any{"k": 1}
	v := map[string]any{"a": shared, "b": shared}

	got, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}
	if string(got) != `{"a":{"k":1},"b":{"k":1}}` {
		t.Errorf("Unexpected encoding: %s", got)
	}
}

func TestHash_ReferenceDigests(t *testing.T) {
	// Digests computed independently with a sorted-key, compact, ASCII-only
	// JSON encoder followed by SHA-256.
	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{
			name:     "empty object",
			value:    map[string]any{},
			expected: "44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a",
		},
		{
			name:     "empty features",
			value:    map[string]any{"features": map[string]float64{}},
			expected: "69b74503365b54990581bab8b47f3c2dab97b19bb50e2f8e7a8e01bb3708c76c",
		},
		{
			name:     "single feature",
			value:    map[string]any{"features": map[string]float64{"a": 1.0}},
			expected: "c4232e318dc4ce37dd541e7d9252c701869dd23e50424bc05a19bcf0d0808803",
		},
		{
			name:     "single feature with empty policy",
			value:    map[string]any{"features": map[string]float64{"a": 1.0}, "policy": map[string]float64{}},
			expected: "aec668c083a8fa82928ea4cd9e4da8ec1050200090bf543d91bc88fd9cff6fcf",
		},
		{
			name: "student scenario features",
			value: map[string]any{"features": map[string]float64{
				"attendance": 0.82, "assignments": 0.67, "labs": 0.74,
			}},
			expected: "2ecca7ab0f480af23b24f43c7cab5f87519fbd5a64cea80929087b78bf90c5b3",
		},
		{
			name: "student scenario features and policy",
			value: map[string]any{
				"features": map[string]float64{"attendance": 0.82, "assignments": 0.67, "labs": 0.74},
				"policy":   map[string]float64{"attendance": 0.4, "assignments": 0.3, "labs": 0.3},
			},
			expected: "659e2219dea89d28008e2ff3f5d0e5dbdd8f93ee74f682310cbed4668b1ff9bb",
		},
		{
			name: "mixed values",
			value: map[string]any{
				"a": 1e-7,
				"b": []any{1, 2.5, nil, true, false, "xé\n\"q"},
				"c": 1e16,
				"d": 123456789012345.0,
				"e": math.Copysign(0, -1),
				"f": 0.1,
			},
			expected: "38597ce1a0c650cf58bf82249df164d4013acfdc733279840d972c660051e4fe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Hash(tt.value)
			if err != nil {
				t.Fatalf("Hash() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("Hash() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestHash_KeyOrderInvariance(t *testing.T) {
	a := map[string]any{"x": 1.0, "y": []any{"b", "a"}, "z": map[string]any{"q": 1, "p": 2}}
	b := map[string]any{"z": map[string]any{"p": 2, "q": 1}, "y": []any{"b", "a"}, "x": 1.0}

	for i := 0; i < 20; i++ {
		if MustHash(a) != MustHash(b) {
			t.Fatal("Expected equal hashes for maps that differ only in insertion order")
		}
	}

	// List order is significant.
	c := map[string]any{"x": 1.0, "y": []any{"a", "b"}, "z": map[string]any{"q": 1, "p": 2}}
	if MustHash(a) == MustHash(c) {
		t.Error("Expected different hashes for different list order")
	}
}

func TestHash_Format(t *testing.T) {
	h, err := Hash("anything")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if len(h) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(h))
	}
	if strings.ToLower(h) != h {
		t.Errorf("Expected lowercase hex, got %s", h)
	}
	if h != computeSHA256(`"anything"`) {
		t.Errorf("Expected digest of canonical text, got %s", h)
	}
}

func TestHash_Error(t *testing.T) {
	if _, err := Hash(map[string]any{"v": math.NaN()}); err == nil {
		t.Error("Expected error for NaN")
	}
}

func TestMustHash_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected MustHash to panic on unsupported value")
		}
	}()
	MustHash(math.Inf(1))
}
