package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/config"
	"mercator-hq/lucid/pkg/decision"
)

// exportFileMode is the mode of exported documents.
const exportFileMode = 0o644

// FileExporter writes one audit document per trace into a directory. The
// file for trace T is audit_T.json (audit_T.json.gz when compressed) and is
// replaced on re-export.
type FileExporter struct {
	dir      string
	compress bool
	now      func() time.Time
	logger   *slog.Logger
}

// FileOption configures a FileExporter.
type FileOption func(*FileExporter)

// WithCompression gzips every written document.
func WithCompression(enabled bool) FileOption {
	return func(e *FileExporter) {
		e.compress = enabled
	}
}

// WithExportClock overrides the clock used for exported_at.
func WithExportClock(now func() time.Time) FileOption {
	return func(e *FileExporter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewFileExporter creates an exporter writing into dir. An empty dir
// selects the default reports/audits.
func NewFileExporter(dir string, opts ...FileOption) *FileExporter {
	if dir == "" {
		dir = config.DefaultAuditExportDir
	}
	e := &FileExporter{
		dir:    dir,
		now:    time.Now,
		logger: slog.Default().With("component", "audit.export.file"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dir returns the output directory.
func (e *FileExporter) Dir() string { return e.dir }

// Path returns the file path used for traceID.
func (e *FileExporter) Path(traceID string) string {
	name := "audit_" + traceID + ".json"
	if e.compress {
		name += ".gz"
	}
	return filepath.Join(e.dir, name)
}

// ExportDocument stamps doc with the current time and writes it with
// four-space indentation. It returns the written path.
func (e *FileExporter) ExportDocument(doc *audit.Document) (string, error) {
	if doc == nil || doc.TraceID == "" {
		return "", audit.NewExportError("file", 0, fmt.Errorf("document has no trace ID"))
	}
	// The trace ID becomes part of a file name.
	if !decision.IsTraceID(doc.TraceID) {
		return "", audit.NewExportError("file", 1, fmt.Errorf("invalid trace ID %q", doc.TraceID))
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", audit.NewExportError("file", 1, err)
	}

	data, err := json.MarshalIndent(doc.Stamp(e.now()), "", "    ")
	if err != nil {
		return "", audit.NewExportError("file", 1, err)
	}

	path := e.Path(doc.TraceID)
	if err := e.writeAtomic(path, data); err != nil {
		return "", audit.NewExportError("file", 1, err)
	}

	e.logger.Info("audit document exported", "trace_id", doc.TraceID, "path", path)
	return path, nil
}

// ExportRecords writes the document of every record and returns the paths
// in record order.
func (e *FileExporter) ExportRecords(ctx context.Context, records []*audit.Record) ([]string, error) {
	paths := make([]string, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return paths, audit.NewExportError("file", len(records), err)
		}
		if record.Document == nil {
			return paths, audit.NewExportError("file", len(records),
				fmt.Errorf("record %s has no document", record.TraceID))
		}
		path, err := e.ExportDocument(record.Document)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// writeAtomic writes through a temporary file in the same directory and
// renames it over path.
func (e *FileExporter) writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(e.dir, ".audit-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	var zw *gzip.Writer
	if e.compress {
		zw = gzip.NewWriter(tmp)
		zw.Name = filepath.Base(path)
		zw.ModTime = e.now()
		w = zw
	}

	if _, err = w.Write(data); err != nil {
		return err
	}
	if zw != nil {
		if err = zw.Close(); err != nil {
			return err
		}
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), exportFileMode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadDocument reads a document written by ExportDocument, decompressing
// when the path ends in .gz.
func ReadDocument(path string) (*audit.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var doc audit.Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode audit document: %w", err)
	}
	return &doc, nil
}
