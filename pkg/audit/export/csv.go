package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/decision"
)

// ReasonSeparator joins verdict reasons inside one CSV cell.
const ReasonSeparator = "; "

// csvFlushEvery is how many streamed rows are written between flushes.
const csvFlushEvery = 100

// CSVHeader lists the exported columns in order.
var CSVHeader = []string{
	"id", "trace_id",
	"decided_at", "recorded_at",
	"model_version", "data_hash",
	"prediction", "confidence",
	"allowed", "reasons",
	"top_feature", "top_importance",
	"summary", "content_hash",
}

// CSVExporter exports audit records as CSV, one row per record.
type CSVExporter struct {
	// IncludeHeader writes CSVHeader as the first row.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Export writes records to w.
func (e *CSVExporter) Export(ctx context.Context, records []*audit.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(CSVHeader); err != nil {
			return audit.NewExportError("csv", len(records), err)
		}
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return audit.NewExportError("csv", len(records), err)
		}
		if err := writer.Write(recordToRow(record)); err != nil {
			return audit.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return audit.NewExportError("csv", len(records), err)
	}
	return nil
}

// ExportStream writes the records received on recordsCh, flushing
// periodically so long exports show progress.
func (e *CSVExporter) ExportStream(ctx context.Context, recordsCh <-chan *audit.Record, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(CSVHeader); err != nil {
			return audit.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return audit.NewExportError("csv", count, ctx.Err())

		case record, ok := <-recordsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", count, err)
				}
				return nil
			}

			if err := writer.Write(recordToRow(record)); err != nil {
				return audit.NewExportError("csv", count, err)
			}
			count++

			if count%csvFlushEvery == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", count, err)
				}
			}
		}
	}
}

func recordToRow(record *audit.Record) []string {
	formatTime := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339Nano)
	}
	formatFloat := func(f float64) string {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}

	var prediction, topImportance, topFeature, summary string
	if doc := record.Document; doc != nil {
		prediction = formatFloat(doc.Decision.Prediction)
		summary = doc.Explanation.Summary
		if top := decision.TopContributions(doc.Decision.FeatureImportance, 1); len(top) > 0 {
			topFeature = top[0].Feature
			topImportance = formatFloat(top[0].Value)
		}
	}

	return []string{
		record.ID,
		record.TraceID,
		formatTime(record.DecidedAt),
		formatTime(record.RecordedAt),
		record.ModelVersion,
		record.DataHash,
		prediction,
		formatFloat(record.Confidence),
		strconv.FormatBool(record.Allowed),
		strings.Join(record.Reasons, ReasonSeparator),
		topFeature,
		topImportance,
		summary,
		record.ContentHash,
	}
}
