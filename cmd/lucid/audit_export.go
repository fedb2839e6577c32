package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/audit/export"
	"mercator-hq/lucid/pkg/cli"
	"mercator-hq/lucid/pkg/config"
)

// formatBundles writes one audit bundle file per record instead of a single
// stream.
const formatBundles = "bundles"

var auditExportFlags struct {
	filter recordFilter
	format string
	output string
	dir    string
	limit  int
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit records",
	Long: `Export audit records matching the given filters.

Formats:
  json     - a JSON array of records (a single object for one record)
  csv      - one flattened row per record
  bundles  - one audit_<trace_id>.json document per record in --dir

Examples:
  # Everything blocked this week as CSV
  lucid audit export --verdict blocked --since 168h --format csv -o blocked.csv

  # Rewrite audit bundles for one model
  lucid audit export --model-version v1.0 --format bundles --dir reports/audits`,
	RunE: exportAudit,
}

var auditVerifyFlags struct {
	filter recordFilter
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [trace-id...]",
	Short: "Verify audit record integrity",
	Long: `Recompute the content hash of audit records and compare it with the hash
stored when the record was written. A mismatch means the stored document was
changed after recording; the command then exits with status 4.

Without trace IDs every record matching the filters is verified.

Examples:
  # Verify two records
  lucid audit verify trace-659e2219dea89d28 trace-0123456789abcdef

  # Verify the last day
  lucid audit verify --since 24h`,
	RunE: verifyAudit,
}

func init() {
	auditCmd.AddCommand(auditExportCmd, auditVerifyCmd)

	auditExportFlags.filter.register(auditExportCmd)
	auditExportCmd.Flags().StringVar(&auditExportFlags.format, "format", export.FormatJSON, "export format: json, csv, bundles")
	auditExportCmd.Flags().StringVarP(&auditExportFlags.output, "output", "o", "", "output file (default: stdout)")
	auditExportCmd.Flags().StringVar(&auditExportFlags.dir, "dir", "", "bundle directory (default from config)")
	auditExportCmd.Flags().IntVar(&auditExportFlags.limit, "limit", 0, "max records (default: the configured export size)")

	auditVerifyFlags.filter.register(auditVerifyCmd)
}

func exportAudit(cmd *cobra.Command, args []string) error {
	format := auditExportFlags.format
	switch format {
	case export.FormatJSON, export.FormatCSV, formatBundles:
	default:
		return cli.NewConfigError("format", fmt.Sprintf("unknown export format %q (use json, csv or bundles)", format))
	}

	return withAuditStorage(cmd, func(ctx context.Context, cfg *config.Config, store audit.Storage) error {
		q, err := auditExportFlags.filter.query(time.Now())
		if err != nil {
			return err
		}
		q.Limit = auditExportFlags.limit
		maxSize := cfg.Audit.Export.MaxExportSize
		if err := checkQuery(q, maxSize, maxSize); err != nil {
			return err
		}

		if format == formatBundles {
			return exportBundles(ctx, cmd, cfg, store, q)
		}

		exporter, err := export.New(format, cfg.Audit.Export)
		if err != nil {
			return err
		}
		recordsCh, errCh, err := store.QueryStream(ctx, q)
		if err != nil {
			return cli.NewCommandError("audit export", err)
		}

		w, closeOutput, err := openOutput(auditExportFlags.output, stdout(cmd))
		if err != nil {
			// Drain so the producer can exit.
			for range recordsCh {
			}
			return err
		}
		if err := exporter.ExportStream(ctx, recordsCh, w); err != nil {
			closeOutput()
			return cli.NewCommandError("audit export", err)
		}
		if err := <-errCh; err != nil {
			closeOutput()
			return cli.NewCommandError("audit export", err)
		}
		return closeOutput()
	})
}

func exportBundles(ctx context.Context, cmd *cobra.Command, cfg *config.Config, store audit.Storage, q *audit.Query) error {
	records, err := store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("audit export", err)
	}

	dir := auditExportFlags.dir
	if dir == "" {
		dir = cfg.Audit.Export.Dir
	}
	exporter := export.NewFileExporter(dir, export.WithCompression(cfg.Audit.Export.Compress))

	paths, err := exporter.ExportRecords(ctx, records)
	if err != nil {
		return cli.NewCommandError("audit export", err)
	}
	fmt.Fprintf(stdout(cmd), "✓ %d audit bundle(s) exported to %s\n", len(paths), exporter.Dir())
	return nil
}

func verifyAudit(cmd *cobra.Command, args []string) error {
	return withAuditStorage(cmd, func(ctx context.Context, cfg *config.Config, store audit.Storage) error {
		q, err := auditVerifyFlags.filter.query(time.Now())
		if err != nil {
			return err
		}
		if len(args) > 0 {
			q.TraceIDs = append(q.TraceIDs, args...)
		}
		if err := checkQuery(q, 0, 0); err != nil {
			return err
		}
		q.Limit = 0

		recordsCh, errCh, err := store.QueryStream(ctx, q)
		if err != nil {
			return cli.NewCommandError("audit verify", err)
		}

		out := stdout(cmd)
		var firstErr error
		checked, failed := 0, 0
		seen := make(map[string]bool)
		for record := range recordsCh {
			checked++
			seen[record.TraceID] = true
			if err := audit.VerifyRecord(record); err != nil {
				failed++
				fmt.Fprintf(out, "✗ %s: %v\n", record.TraceID, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			fmt.Fprintf(out, "✓ %s\n", record.TraceID)
		}
		if err := <-errCh; err != nil {
			return cli.NewCommandError("audit verify", err)
		}

		missing := 0
		for _, id := range args {
			if !seen[id] {
				missing++
				fmt.Fprintf(out, "? %s: %v\n", id, audit.ErrNotFound)
			}
		}

		fmt.Fprintf(out, "%d record(s) checked, %d failed\n", checked, failed)
		if firstErr != nil {
			return fmt.Errorf("%d of %d record(s) failed verification: %w", failed, checked, firstErr)
		}
		if missing > 0 {
			return cli.NewCommandError("audit verify", fmt.Errorf("%d trace(s): %w", missing, audit.ErrNotFound))
		}
		return nil
	})
}

