package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/lucid/pkg/audit"
)

// JSONExporter exports audit records as JSON.
type JSONExporter struct {
	// Pretty indents the output by two spaces.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Export writes records to w. A single record is written as an object,
// anything else as an array.
func (e *JSONExporter) Export(ctx context.Context, records []*audit.Record, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return audit.NewExportError("json", len(records), err)
	}

	var payload any = records
	if len(records) == 1 {
		payload = records[0]
	} else if records == nil {
		payload = []*audit.Record{}
	}

	data, err := e.marshal(payload, "")
	if err != nil {
		return audit.NewExportError("json", len(records), err)
	}
	if _, err := w.Write(data); err != nil {
		return audit.NewExportError("json", len(records), err)
	}
	return nil
}

// ExportStream writes the records received on recordsCh as one JSON array.
// It returns when the channel is closed or ctx is done.
func (e *JSONExporter) ExportStream(ctx context.Context, recordsCh <-chan *audit.Record, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return audit.NewExportError("json", 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return audit.NewExportError("json", count, ctx.Err())

		case record, ok := <-recordsCh:
			if !ok {
				closing := "]"
				if e.Pretty && count > 0 {
					closing = "\n]"
				}
				if _, err := io.WriteString(w, closing); err != nil {
					return audit.NewExportError("json", count, err)
				}
				return nil
			}

			sep := ""
			if count > 0 {
				sep = ","
			}
			if e.Pretty {
				sep += "\n  "
			}
			if _, err := io.WriteString(w, sep); err != nil {
				return audit.NewExportError("json", count, err)
			}

			data, err := e.marshal(record, "  ")
			if err != nil {
				return audit.NewExportError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return audit.NewExportError("json", count, err)
			}
			count++
		}
	}
}

func (e *JSONExporter) marshal(v any, prefix string) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(v, prefix, "  ")
	}
	return json.Marshal(v)
}
