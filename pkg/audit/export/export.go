package export

import (
	"context"
	"fmt"
	"io"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/config"
)

// Format names accepted by New.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// StreamExporter is an exporter that can also consume a record channel.
type StreamExporter interface {
	audit.Exporter
	ExportStream(ctx context.Context, recordsCh <-chan *audit.Record, w io.Writer) error
}

// New returns the exporter for format configured from cfg.
func New(format string, cfg config.ExportConfig) (StreamExporter, error) {
	switch format {
	case FormatJSON:
		return NewJSONExporter(!cfg.JSONCompact), nil
	case FormatCSV:
		return NewCSVExporter(!cfg.CSVOmitHeader), nil
	default:
		return nil, audit.NewExportError(format, 0, fmt.Errorf("unsupported format %q (must be %s or %s)", format, FormatJSON, FormatCSV))
	}
}
