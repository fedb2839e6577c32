package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for Lucid spans.
const (
	AttrTraceID      = "lucid.trace_id"
	AttrModelVersion = "lucid.model_version"
	AttrDataHash     = "lucid.data_hash"
	AttrFeatureCount = "lucid.feature_count"
	AttrConfidence   = "lucid.confidence"
	AttrPrediction   = "lucid.prediction"

	AttrAllowed    = "lucid.verdict.allowed"
	AttrViolations = "lucid.verdict.violations"

	AttrBatchSize = "lucid.batch.size"

	AttrErrorKind    = "lucid.error.kind"
	AttrErrorMessage = "error.message"
)

// SetDecisionAttributes sets decision attributes on a span.
func SetDecisionAttributes(span trace.Span, traceID, modelVersion, dataHash string, prediction, confidence float64) {
	span.SetAttributes(
		attribute.String(AttrTraceID, traceID),
		attribute.String(AttrModelVersion, modelVersion),
		attribute.String(AttrDataHash, dataHash),
		attribute.Float64(AttrPrediction, prediction),
		attribute.Float64(AttrConfidence, confidence),
	)
}

// SetVerdictAttributes sets governance verdict attributes on a span.
func SetVerdictAttributes(span trace.Span, allowed bool, violatedRules []string) {
	span.SetAttributes(
		attribute.Bool(AttrAllowed, allowed),
		attribute.StringSlice(AttrViolations, violatedRules),
	)
}

// SetErrorAttributes records err on span, tagged with its kind.
func SetErrorAttributes(span trace.Span, err error, kind string) {
	if err == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrErrorKind, kind))
	SetError(span, err)
}
