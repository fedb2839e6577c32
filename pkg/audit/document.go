package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mercator-hq/lucid/pkg/decision"
	"mercator-hq/lucid/pkg/explanation"
	"mercator-hq/lucid/pkg/hashing"
	"mercator-hq/lucid/pkg/responsibility"
)

// NewDocument joins the three artifacts of one evaluation. All three must
// carry the same trace ID. Maps and slices are copied so the document does
// not alias the artifacts.
func NewDocument(d *decision.Artifact, x *explanation.Artifact, v *responsibility.Verdict) (*Document, error) {
	if err := explanation.CheckDecision(d); err != nil {
		return nil, err
	}
	if x == nil || v == nil {
		return nil, fmt.Errorf("%w: missing explanation or verdict", explanation.ErrMalformedDecision)
	}
	if x.TraceID != d.TraceID {
		return nil, fmt.Errorf("%w: explanation %s != decision %s", responsibility.ErrTraceMismatch, x.TraceID, d.TraceID)
	}
	if v.TraceID != d.TraceID {
		return nil, fmt.Errorf("%w: verdict %s != decision %s", responsibility.ErrTraceMismatch, v.TraceID, d.TraceID)
	}

	technical := x.Technical
	technical.FeatureImportance = copyFloats(x.Technical.FeatureImportance)

	bundle := v.AuditBundle
	bundle.FeatureImportance = copyFloats(v.AuditBundle.FeatureImportance)
	bundle.Caveats = copyStrings(v.AuditBundle.Caveats)

	return &Document{
		TraceID: d.TraceID,
		Decision: DecisionSection{
			Prediction:        d.Prediction,
			Confidence:        d.Confidence,
			FeatureImportance: copyFloats(d.FeatureImportance),
			ModelVersion:      d.ModelVersion,
			DataHash:          d.DataHash,
			Timestamp:         d.Timestamp,
		},
		Explanation: ExplanationSection{
			Summary:         x.Summary,
			Technical:       technical,
			Counterfactuals: append([]explanation.Counterfactual{}, x.Counterfactuals...),
			Caveats:         copyStrings(x.Caveats),
		},
		Responsibility: ResponsibilitySection{
			Allowed: v.Allowed,
			Reasons: copyStrings(v.Reasons),
			Metrics: copyFloats(v.Metrics),
		},
		AuditBundle: bundle,
	}, nil
}

// DecidedAt returns the decision timestamp as a time.Time.
func (d *Document) DecidedAt() time.Time {
	a := decision.Artifact{Timestamp: d.Decision.Timestamp}
	return a.Time()
}

// Stamp returns a copy of d with ExportedAt set to t in RFC 3339 UTC.
func (d *Document) Stamp(t time.Time) *Document {
	stamped := *d
	stamped.ExportedAt = t.UTC().Format(time.RFC3339)
	return &stamped
}

// ContentHash returns the canonical hash of d with ExportedAt cleared.
// Re-exporting a document never changes its hash.
func (d *Document) ContentHash() (string, error) {
	unstamped := *d
	unstamped.ExportedAt = ""

	data, err := json.Marshal(&unstamped)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("failed to decode document: %w", err)
	}

	return hashing.Hash(generic)
}

// NewRecord wraps doc in a storage envelope with a fresh UUID, recorded at
// now.
func NewRecord(doc *Document, now time.Time) (*Record, error) {
	contentHash, err := doc.ContentHash()
	if err != nil {
		return nil, err
	}

	unstamped := *doc
	unstamped.ExportedAt = ""

	return &Record{
		ID:           uuid.New().String(),
		TraceID:      doc.TraceID,
		DataHash:     doc.Decision.DataHash,
		ModelVersion: doc.Decision.ModelVersion,
		Allowed:      doc.Responsibility.Allowed,
		Confidence:   doc.Decision.Confidence,
		Reasons:      copyStrings(doc.Responsibility.Reasons),
		DecidedAt:    doc.DecidedAt(),
		RecordedAt:   now.UTC(),
		ContentHash:  contentHash,
		Document:     &unstamped,
	}, nil
}

// VerifyRecord recomputes the content hash of r's document and compares it
// with the recorded one. It returns an *IntegrityError on mismatch.
func VerifyRecord(r *Record) error {
	if r == nil || r.Document == nil {
		return fmt.Errorf("%w: record has no document", ErrNotFound)
	}
	actual, err := r.Document.ContentHash()
	if err != nil {
		return err
	}
	if actual != r.ContentHash || r.Document.TraceID != r.TraceID {
		return &IntegrityError{TraceID: r.TraceID, Expected: r.ContentHash, Actual: actual}
	}
	return nil
}

func copyFloats(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
