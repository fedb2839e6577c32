package request

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"mercator-hq/lucid/pkg/decision"
	"mercator-hq/lucid/pkg/pipeline"
	"mercator-hq/lucid/pkg/responsibility"
)

// Format is the encoding of a request document.
type Format string

// Supported request formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

const schemaName = "request.schema.json"

//go:embed schema.json
var schemaJSON []byte

var (
	requestSchema = mustCompileSchema(schemaJSON)
	printer       = message.NewPrinter(language.English)
)

func mustCompileSchema(raw []byte) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", schemaName, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaName, doc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", schemaName, err))
	}

	schema, err := compiler.Compile(schemaName)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", schemaName, err))
	}
	return schema
}

// Schema returns the JSON Schema request documents are validated against.
func Schema() []byte {
	out := make([]byte, len(schemaJSON))
	copy(out, schemaJSON)
	return out
}

// Document is one evaluation request.
type Document struct {
	Features   decision.FeatureSet `json:"features" yaml:"features" mapstructure:"features"`
	Policy     decision.Policy     `json:"policy,omitempty" yaml:"policy,omitempty" mapstructure:"policy"`
	Governance map[string]any      `json:"governance,omitempty" yaml:"governance,omitempty" mapstructure:"governance"`
}

// Sample returns the built-in demonstration request.
func Sample() *Document {
	return &Document{
		Features: decision.FeatureSet{"attendance": 0.82, "assignments": 0.67, "labs": 0.74},
		Policy:   decision.Policy{"attendance": 0.4, "assignments": 0.3, "labs": 0.3},
		Governance: map[string]any{
			"use_sensitive_attrs": false,
			"min_confidence":      0.7,
		},
	}
}

// FormatFromPath infers the format from a file extension. Anything other
// than .json is read as YAML, which also accepts JSON.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads and parses the request document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request %s: %w", path, err)
	}
	return Parse(data, FormatFromPath(path))
}

// Parse decodes and validates a request document. Malformed input and
// schema violations are reported as *decision.ValidationError.
func Parse(data []byte, format Format) (*Document, error) {
	raw, err := decode(data, format)
	if err != nil {
		return nil, decision.NewValidationError("document", fmt.Sprintf("malformed %s", format), err)
	}

	if err := checkFinite(raw, nil); err != nil {
		return nil, err
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var doc Document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &doc,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create request decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, decision.NewValidationError("document", "cannot decode request", err)
	}
	if doc.Features == nil {
		doc.Features = decision.FeatureSet{}
	}
	return &doc, nil
}

func decode(data []byte, format Format) (any, error) {
	var raw any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if dec.More() {
			return nil, errors.New("trailing data after document")
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return normalize(raw), nil
}

// normalize turns YAML mappings with non-string keys into string-keyed
// maps so the schema validator can walk them.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v2 := range val {
			out[k] = normalize(v2)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v2 := range val {
			out[fmt.Sprint(k)] = normalize(v2)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v2 := range val {
			out[i] = normalize(v2)
		}
		return out
	default:
		return val
	}
}

// checkFinite rejects the NaN and infinity values YAML can express.
func checkFinite(v any, path []string) error {
	switch val := v.(type) {
	case map[string]any:
		for k, v2 := range val {
			if err := checkFinite(v2, append(path, k)); err != nil {
				return err
			}
		}
	case []any:
		for i, v2 := range val {
			if err := checkFinite(v2, append(path, fmt.Sprint(i))); err != nil {
				return err
			}
		}
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decision.NewValidationError(strings.Join(path, "."), fmt.Sprintf("value must be finite, got %v", val), nil)
		}
	}
	return nil
}

func validate(raw any) error {
	err := requestSchema.Validate(raw)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return decision.NewValidationError("document", "schema validation failed", err)
	}

	var violations []violation
	collectViolations(ve, nil, &violations)
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].field < violations[j].field
	})

	messages := make([]string, 0, len(violations))
	for _, v := range violations {
		messages = append(messages, v.field+": "+v.message)
	}
	return decision.NewValidationError(violations[0].field, strings.Join(messages, "; "), nil)
}

type violation struct {
	field   string
	message string
}

func collectViolations(ve *jsonschema.ValidationError, parent []string, out *[]violation) {
	// Causes of propertyNames carry no instance location; they belong to
	// the object whose keys were checked.
	location := ve.InstanceLocation
	if len(location) == 0 {
		location = parent
	}

	if len(ve.Causes) == 0 {
		field := "document"
		if len(location) > 0 {
			field = strings.Join(location, ".")
		}
		*out = append(*out, violation{field: field, message: ve.ErrorKind.LocalizedString(printer)})
		return
	}
	for _, c := range ve.Causes {
		collectViolations(c, location, out)
	}
}

// Input converts the document into a pipeline input. A governance block is
// decoded over the defaults; unrecognized keys are ignored and returned so
// callers can report them. Out-of-domain governance options are returned as
// *responsibility.ConfigurationError.
func (d *Document) Input() (pipeline.Input, []string, error) {
	in := pipeline.Input{
		Features: d.Features,
		Policy:   d.Policy,
	}
	if d.Governance == nil {
		return in, nil, nil
	}

	gov, unused, err := responsibility.DecodeGovernance(d.Governance)
	if err != nil {
		return pipeline.Input{}, unused, err
	}
	in.Governance = &gov
	return in, unused, nil
}
