package audit

import (
	"context"
	"io"
	"time"

	"mercator-hq/lucid/pkg/explanation"
	"mercator-hq/lucid/pkg/responsibility"
)

// DecisionSection is the decision part of an audit document.
type DecisionSection struct {
	Prediction        float64            `json:"prediction"`
	Confidence        float64            `json:"confidence"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	ModelVersion      string             `json:"model_version"`
	DataHash          string             `json:"data_hash"`
	Timestamp         float64            `json:"timestamp"`
}

// ExplanationSection is the explanation part of an audit document.
type ExplanationSection struct {
	Summary         string                       `json:"summary"`
	Technical       explanation.Technical        `json:"technical"`
	Counterfactuals []explanation.Counterfactual `json:"counterfactuals"`
	Caveats         []string                     `json:"caveats"`
}

// ResponsibilitySection is the governance part of an audit document.
type ResponsibilitySection struct {
	Allowed bool               `json:"allowed"`
	Reasons []string           `json:"reasons"`
	Metrics map[string]float64 `json:"metrics"`
}

// Document is the self-contained record of one evaluation: the three
// artifacts joined by their shared trace ID. It is what gets exported and
// handed to reviewers.
type Document struct {
	TraceID        string                     `json:"trace_id"`
	Decision       DecisionSection            `json:"decision"`
	Explanation    ExplanationSection         `json:"explanation"`
	Responsibility ResponsibilitySection      `json:"responsibility"`
	AuditBundle    responsibility.AuditBundle `json:"audit_bundle"`

	// ExportedAt is the RFC 3339 UTC time the document was written out.
	// It is excluded from the content hash.
	ExportedAt string `json:"exported_at,omitempty"`
}

// Record is the storage envelope of a Document.
type Record struct {
	// ID is a UUID assigned when the record is built.
	ID string `json:"id"`

	// TraceID is unique across the store; storing a record with a known
	// trace ID replaces the previous one.
	TraceID string `json:"trace_id"`

	DataHash     string    `json:"data_hash"`
	ModelVersion string    `json:"model_version"`
	Allowed      bool      `json:"allowed"`
	Confidence   float64   `json:"confidence"`
	Reasons      []string  `json:"reasons"`
	DecidedAt    time.Time `json:"decided_at"`
	RecordedAt   time.Time `json:"recorded_at"`

	// ContentHash is the canonical hash of Document without ExportedAt.
	ContentHash string `json:"content_hash"`

	Document *Document `json:"document"`
}

// Sort fields accepted by Query.SortBy.
const (
	SortByDecidedAt  = "decided_at"
	SortByRecordedAt = "recorded_at"
	SortByConfidence = "confidence"
)

// Query defines filter parameters for audit records. All filters combine
// with AND; zero values do not filter.
type Query struct {
	// Decision time range, inclusive.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// RecordedBefore matches records stored strictly before this time.
	RecordedBefore *time.Time `json:"recorded_before,omitempty"`

	TraceIDs     []string `json:"trace_ids,omitempty"`
	ModelVersion string   `json:"model_version,omitempty"`
	DataHash     string   `json:"data_hash,omitempty"`
	Allowed      *bool    `json:"allowed,omitempty"`

	MinConfidence *float64 `json:"min_confidence,omitempty"`
	MaxConfidence *float64 `json:"max_confidence,omitempty"`

	// Pagination. A zero Limit returns every match.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting: "decided_at", "recorded_at" or "confidence"; "asc" or "desc".
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage persists audit records. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Store persists record, replacing any record with the same trace ID.
	Store(ctx context.Context, record *Record) error

	// Get returns the record for traceID, or an error wrapping ErrNotFound.
	Get(ctx context.Context, traceID string) (*Record, error)

	// Query returns the records matching query. It returns an empty slice
	// when nothing matches.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// QueryStream delivers matching records on a channel. Both channels
	// are closed when the query completes; errCh carries at most one error.
	QueryStream(ctx context.Context, query *Query) (<-chan *Record, <-chan error, error)

	// Count returns the number of records matching query.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes the records matching query and returns how many were
	// removed.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// Exporter writes audit records in some format.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
}
