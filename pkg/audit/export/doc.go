// Package export writes audit records and documents out of the store.
//
// # Formats
//
//   - JSON: one object for a single record, an array otherwise; indented
//     unless compact output is configured.
//   - CSV: one flattened row per record with an optional header row.
//     Reasons are joined with "; ".
//   - Files: one document per trace, audit_<trace_id>.json, indented by
//     four spaces and stamped with exported_at. Optional gzip compression
//     writes audit_<trace_id>.json.gz instead.
//
// JSON and CSV exporters can consume the channel returned by
// Storage.QueryStream, so large exports never hold every record in memory:
//
//	recordsCh, errCh, err := store.QueryStream(ctx, query)
//	if err != nil {
//	    return err
//	}
//	if err := export.NewCSVExporter(true).ExportStream(ctx, recordsCh, out); err != nil {
//	    return err
//	}
//	return <-errCh
//
// Failures are reported as *audit.ExportError.
package export
