package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/audit/export"
	"mercator-hq/lucid/pkg/decision"
	"mercator-hq/lucid/pkg/pipeline"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is human-readable output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is JSON output.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV output, for audit records only.
	FormatCSV OutputFormat = "csv"
)

// ParseOutputFormat validates a --format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", NewConfigError("format", fmt.Sprintf("unknown output format %q (use text, json or csv)", s))
	}
}

// Formatter writes command results.
type Formatter interface {
	FormatTo(w io.Writer, data any) error
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{IncludeHeader: true}
	default:
		return &TextFormatter{}
	}
}

// JSONFormatter formats output as JSON. Pipeline results are written as
// their audit document.
type JSONFormatter struct {
	Indent bool
}

// FormatTo writes data to w in JSON format.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	switch v := data.(type) {
	case *pipeline.Result:
		doc, err := v.Document()
		if err != nil {
			return err
		}
		data = doc
	case []*pipeline.Result:
		docs := make([]*audit.Document, 0, len(v))
		for _, r := range v {
			doc, err := r.Document()
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		data = docs
	}

	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// CSVFormatter writes audit records as CSV rows.
type CSVFormatter struct {
	IncludeHeader bool
}

// FormatTo writes data to w in CSV format.
func (f *CSVFormatter) FormatTo(w io.Writer, data any) error {
	var records []*audit.Record
	switch v := data.(type) {
	case []*audit.Record:
		records = v
	case *audit.Record:
		records = []*audit.Record{v}
	default:
		return fmt.Errorf("CSV output is not supported for %T", data)
	}
	return export.NewCSVExporter(f.IncludeHeader).Export(context.Background(), records, w)
}

// TextFormatter formats output for a terminal.
type TextFormatter struct{}

// FormatTo writes data to w as text.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	switch v := data.(type) {
	case *pipeline.Result:
		return WriteResult(w, v)
	case []*pipeline.Result:
		return writeResultTable(w, v)
	case *audit.Record:
		return writeRecord(w, v)
	case []*audit.Record:
		return writeRecordTable(w, v)
	default:
		_, err := fmt.Fprintf(w, "%v\n", data)
		return err
	}
}

// WriteResult prints the three artifacts of one evaluation section by
// section.
func WriteResult(w io.Writer, r *pipeline.Result) error {
	d, x, v := r.Decision, r.Explanation, r.Verdict
	p := &printer{w: w}

	p.section("DECISION OUTPUT")
	p.line("Prediction: %.4f", d.Prediction)
	p.line("Confidence: %.4f", d.Confidence)
	p.line("Feature Importance: %s", rankedFloats(d.FeatureImportance))
	p.line("Trace ID: %s", d.TraceID)
	p.line("Data Hash: %s", d.DataHash)
	p.line("Model Version: %s", d.ModelVersion)
	p.line("Timestamp: %.2f", d.Timestamp)

	p.section("EXPLANATION OUTPUT")
	p.line("Summary: %s", x.Summary)
	p.line("Technical: prediction=%.4f confidence=%.4f model_version=%s",
		x.Technical.Prediction, x.Technical.Confidence, x.Technical.ModelVersion)
	p.line("Counterfactuals:")
	if len(x.Counterfactuals) == 0 {
		p.line("  (none)")
	}
	for _, cf := range x.Counterfactuals {
		p.line("  - %s %s: estimated impact %s", cf.Feature, cf.Change, formatFloat(cf.EstimatedImpact))
	}
	p.line("Caveats:")
	for _, c := range x.Caveats {
		p.line("  - %s", c)
	}
	p.line("Trace ID: %s", x.TraceID)

	p.section("RESPONSIBILITY VERDICT")
	p.line("Allowed: %t", v.Allowed)
	if len(v.Reasons) == 0 {
		p.line("Reasons: (none)")
	} else {
		p.line("Reasons:")
		for _, reason := range v.Reasons {
			p.line("  - %s", reason)
		}
	}
	p.line("Metrics: %s", sortedFloats(v.Metrics))
	p.line("Audit Bundle: data_hash=%s model_version=%s summary=%q",
		v.AuditBundle.DataHash, v.AuditBundle.ModelVersion, v.AuditBundle.Summary)
	p.line("Trace ID: %s", v.TraceID)

	return p.err
}

func writeResultTable(w io.Writer, results []*pipeline.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTRACE ID\tPREDICTION\tCONFIDENCE\tALLOWED\tREASONS")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\t%t\t%s\n",
			i, r.Decision.TraceID, r.Decision.Prediction, r.Decision.Confidence,
			r.Verdict.Allowed, strings.Join(r.Verdict.Reasons, "; "))
	}
	return tw.Flush()
}

func writeRecord(w io.Writer, r *audit.Record) error {
	p := &printer{w: w}
	p.line("ID: %s", r.ID)
	p.line("Trace ID: %s", r.TraceID)
	p.line("Decided At: %s", r.DecidedAt.UTC().Format(time.RFC3339Nano))
	p.line("Recorded At: %s", r.RecordedAt.UTC().Format(time.RFC3339Nano))
	p.line("Model Version: %s", r.ModelVersion)
	p.line("Data Hash: %s", r.DataHash)
	p.line("Confidence: %.4f", r.Confidence)
	p.line("Allowed: %t", r.Allowed)
	for _, reason := range r.Reasons {
		p.line("  - %s", reason)
	}
	p.line("Content Hash: %s", r.ContentHash)
	if r.Document != nil {
		p.line("Summary: %s", r.Document.Explanation.Summary)
		p.line("Feature Importance: %s", rankedFloats(r.Document.Decision.FeatureImportance))
	}
	return p.err
}

func writeRecordTable(w io.Writer, records []*audit.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACE ID\tDECIDED AT\tMODEL\tCONFIDENCE\tALLOWED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%t\n",
			r.TraceID, r.DecidedAt.UTC().Format(time.RFC3339), r.ModelVersion, r.Confidence, r.Allowed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d record(s)\n", len(records))
	return err
}

// printer keeps the first write error so formatting code stays linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) section(title string) {
	p.line("\n=== %s ===", title)
}

// rankedFloats lists a contribution map by descending magnitude.
func rankedFloats(m map[string]float64) string {
	parts := make([]string, 0, len(m))
	for _, c := range decision.TopContributions(m, -1) {
		parts = append(parts, c.Feature+"="+formatFloat(c.Value))
	}
	return strings.Join(parts, ", ")
}

func sortedFloats(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatFloat(m[k]))
	}
	return strings.Join(parts, ", ")
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.4f", f)
}
