package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/audit/query"
	"mercator-hq/lucid/pkg/cli"
	"mercator-hq/lucid/pkg/config"
)

// recordFilter holds the record selection flags shared by the audit
// subcommands.
type recordFilter struct {
	since         string
	until         string
	traceIDs      []string
	modelVersion  string
	dataHash      string
	verdict       string
	minConfidence string
	maxConfidence string
}

func (f *recordFilter) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.since, "since", "", "decided at or after (RFC3339 or a duration such as 24h)")
	flags.StringVar(&f.until, "until", "", "decided at or before (RFC3339 or a duration such as 1h)")
	flags.StringArrayVar(&f.traceIDs, "trace-id", nil, "filter by trace ID (repeatable)")
	flags.StringVar(&f.modelVersion, "model-version", "", "filter by model version")
	flags.StringVar(&f.dataHash, "data-hash", "", "filter by input data hash")
	flags.StringVar(&f.verdict, "verdict", "", "filter by verdict: allowed, blocked")
	flags.StringVar(&f.minConfidence, "min-confidence", "", "minimum confidence")
	flags.StringVar(&f.maxConfidence, "max-confidence", "", "maximum confidence")
}

// query converts the flags into an audit query. Durations are taken back
// from now.
func (f *recordFilter) query(now time.Time) (*audit.Query, error) {
	q := &audit.Query{
		TraceIDs:     f.traceIDs,
		ModelVersion: f.modelVersion,
		DataHash:     f.dataHash,
	}

	var err error
	if q.StartTime, err = parseTimeFlag("since", f.since, now); err != nil {
		return nil, err
	}
	if q.EndTime, err = parseTimeFlag("until", f.until, now); err != nil {
		return nil, err
	}
	if q.Allowed, err = query.ParseVerdict(f.verdict); err != nil {
		return nil, cli.NewConfigError("verdict", err.Error())
	}
	if q.MinConfidence, err = parseFloatFlag("min-confidence", f.minConfidence); err != nil {
		return nil, err
	}
	if q.MaxConfidence, err = parseFloatFlag("max-confidence", f.maxConfidence); err != nil {
		return nil, err
	}
	return q, nil
}

func parseTimeFlag(name, value string, now time.Time) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		t := now.Add(-d)
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, cli.NewConfigError(name, fmt.Sprintf("invalid time %q (use RFC3339 or a duration)", value))
	}
	return &t, nil
}

func parseFloatFlag(name, value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, cli.NewConfigError(name, fmt.Sprintf("invalid number %q", value))
	}
	return &f, nil
}

// checkQuery applies defaults and validates q against maxLimit, reporting
// problems as flag errors.
func checkQuery(q *audit.Query, defaultLimit, maxLimit int) error {
	query.ApplyDefaults(q, defaultLimit)
	if err := query.Validate(q, maxLimit); err != nil {
		var queryErr *audit.QueryError
		if errors.As(err, &queryErr) {
			return cli.NewConfigError("query", queryErr.Cause.Error())
		}
		return err
	}
	return nil
}

// withAuditStorage loads the configuration, opens the audit store and runs
// fn with a context bounded by the query timeout.
func withAuditStorage(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, store audit.Storage) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := commandContext(cmd)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Audit.Query.Timeout)
	defer cancel()

	return fn(ctx, cfg, store)
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and maintain the audit trail",
	Long: `Query, export, verify and prune recorded evaluations.

Evaluations are recorded by "lucid evaluate --record", "lucid batch --record"
and by "lucid serve" when audit.enabled is set. Each record carries the full
audit document and a content hash over it.

Subcommands:
  query   - list records matching filters
  show    - print one record
  report  - summarize records
  export  - write records as JSON, CSV or audit bundle files
  verify  - recompute content hashes
  prune   - apply the retention policy now`,
}

var auditQueryFlags struct {
	filter    recordFilter
	limit     int
	offset    int
	sortBy    string
	sortOrder string
	format    string
	output    string
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit records",
	Long: `List audit records matching the given filters, newest decision first.

Examples:
  # Blocked decisions of the last day
  lucid audit query --verdict blocked --since 24h

  # Low confidence decisions of one model as CSV
  lucid audit query --model-version v1.0 --max-confidence 0.7 --format csv

  # Second page, oldest first
  lucid audit query --limit 50 --offset 50 --sort-order asc`,
	RunE: queryAudit,
}

var auditShowFlags struct {
	format string
}

var auditShowCmd = &cobra.Command{
	Use:   "show <trace-id>",
	Short: "Show one audit record",
	Args:  cobra.ExactArgs(1),
	RunE:  showAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditShowCmd)

	auditQueryFlags.filter.register(auditQueryCmd)
	auditQueryCmd.Flags().IntVar(&auditQueryFlags.limit, "limit", 0, "max results (default from config)")
	auditQueryCmd.Flags().IntVar(&auditQueryFlags.offset, "offset", 0, "pagination offset")
	auditQueryCmd.Flags().StringVar(&auditQueryFlags.sortBy, "sort-by", audit.SortByDecidedAt, "sort field: decided_at, recorded_at, confidence")
	auditQueryCmd.Flags().StringVar(&auditQueryFlags.sortOrder, "sort-order", "desc", "sort order: asc, desc")
	auditQueryCmd.Flags().StringVar(&auditQueryFlags.format, "format", "text", "output format: text, json, csv")
	auditQueryCmd.Flags().StringVarP(&auditQueryFlags.output, "output", "o", "", "output file (default: stdout)")

	auditShowCmd.Flags().StringVar(&auditShowFlags.format, "format", "text", "output format: text, json")
}

func queryAudit(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(auditQueryFlags.format)
	if err != nil {
		return err
	}

	return withAuditStorage(cmd, func(ctx context.Context, cfg *config.Config, store audit.Storage) error {
		q, err := auditQueryFlags.filter.query(time.Now())
		if err != nil {
			return err
		}
		q.Limit = auditQueryFlags.limit
		q.Offset = auditQueryFlags.offset
		q.SortBy = auditQueryFlags.sortBy
		q.SortOrder = auditQueryFlags.sortOrder
		if err := checkQuery(q, cfg.Audit.Query.DefaultLimit, cfg.Audit.Query.MaxLimit); err != nil {
			return err
		}

		records, err := store.Query(ctx, q)
		if err != nil {
			return cli.NewCommandError("audit query", err)
		}

		w, closeOutput, err := openOutput(auditQueryFlags.output, stdout(cmd))
		if err != nil {
			return err
		}
		if err := cli.NewFormatter(format).FormatTo(w, records); err != nil {
			closeOutput()
			return cli.NewCommandError("audit query", err)
		}
		return closeOutput()
	})
}

func showAudit(cmd *cobra.Command, args []string) error {
	format, err := resultFormat(auditShowFlags.format)
	if err != nil {
		return err
	}
	traceID := args[0]

	return withAuditStorage(cmd, func(ctx context.Context, cfg *config.Config, store audit.Storage) error {
		record, err := store.Get(ctx, traceID)
		if err != nil {
			return cli.NewCommandError("audit show", err)
		}
		return cli.NewFormatter(format).FormatTo(stdout(cmd), record)
	})
}
