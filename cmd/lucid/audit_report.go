package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/cli"
	"mercator-hq/lucid/pkg/config"
)

var auditReportFlags struct {
	filter recordFilter
	format string
	output string
	top    int
}

var auditReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize audit records",
	Long: `Summarize the audit records matching the given filters: verdict counts,
confidence statistics, model versions and the most frequent block reasons.

Examples:
  # Report on the last week
  lucid audit report --since 168h

  # JSON report for one model
  lucid audit report --model-version v1.0 --format json -o report.json`,
	RunE: generateReport,
}

func init() {
	auditCmd.AddCommand(auditReportCmd)

	auditReportFlags.filter.register(auditReportCmd)
	auditReportCmd.Flags().StringVar(&auditReportFlags.format, "format", "text", "output format: text, json")
	auditReportCmd.Flags().StringVarP(&auditReportFlags.output, "output", "o", "", "output file (default: stdout)")
	auditReportCmd.Flags().IntVar(&auditReportFlags.top, "top", 5, "number of block reasons to list")
}

// auditReport summarizes a set of audit records.
type auditReport struct {
	GeneratedAt    time.Time        `json:"generated_at"`
	Since          *time.Time       `json:"since,omitempty"`
	Until          *time.Time       `json:"until,omitempty"`
	Total          int64            `json:"total"`
	Allowed        int64            `json:"allowed"`
	Blocked        int64            `json:"blocked"`
	AllowRate      float64          `json:"allow_rate"`
	Confidence     confidenceStats  `json:"confidence"`
	ModelVersions  map[string]int64 `json:"model_versions"`
	TopReasons     []reasonCount    `json:"top_reasons"`
	FirstDecidedAt *time.Time       `json:"first_decided_at,omitempty"`
	LastDecidedAt  *time.Time       `json:"last_decided_at,omitempty"`
}

type confidenceStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

type reasonCount struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// reportBuilder accumulates records one at a time so that reports over
// large stores never hold every record in memory.
type reportBuilder struct {
	report  auditReport
	sum     float64
	reasons map[string]int64
}

func newReportBuilder(now time.Time, q *audit.Query) *reportBuilder {
	return &reportBuilder{
		report: auditReport{
			GeneratedAt:   now.UTC(),
			Since:         q.StartTime,
			Until:         q.EndTime,
			ModelVersions: make(map[string]int64),
			Confidence:    confidenceStats{Min: math.Inf(1), Max: math.Inf(-1)},
		},
		reasons: make(map[string]int64),
	}
}

func (b *reportBuilder) add(r *audit.Record) {
	rep := &b.report
	rep.Total++
	if r.Allowed {
		rep.Allowed++
	} else {
		rep.Blocked++
	}
	rep.ModelVersions[r.ModelVersion]++
	for _, reason := range r.Reasons {
		b.reasons[reason]++
	}

	b.sum += r.Confidence
	rep.Confidence.Min = math.Min(rep.Confidence.Min, r.Confidence)
	rep.Confidence.Max = math.Max(rep.Confidence.Max, r.Confidence)

	decided := r.DecidedAt.UTC()
	if rep.FirstDecidedAt == nil || decided.Before(*rep.FirstDecidedAt) {
		rep.FirstDecidedAt = &decided
	}
	if rep.LastDecidedAt == nil || decided.After(*rep.LastDecidedAt) {
		rep.LastDecidedAt = &decided
	}
}

func (b *reportBuilder) build(top int) *auditReport {
	rep := b.report
	if rep.Total == 0 {
		rep.Confidence = confidenceStats{}
	} else {
		rep.Confidence.Mean = b.sum / float64(rep.Total)
		rep.AllowRate = float64(rep.Allowed) / float64(rep.Total)
	}

	rep.TopReasons = make([]reasonCount, 0, len(b.reasons))
	for reason, count := range b.reasons {
		rep.TopReasons = append(rep.TopReasons, reasonCount{Reason: reason, Count: count})
	}
	sort.Slice(rep.TopReasons, func(i, j int) bool {
		if rep.TopReasons[i].Count != rep.TopReasons[j].Count {
			return rep.TopReasons[i].Count > rep.TopReasons[j].Count
		}
		return rep.TopReasons[i].Reason < rep.TopReasons[j].Reason
	})
	if top >= 0 && len(rep.TopReasons) > top {
		rep.TopReasons = rep.TopReasons[:top]
	}
	return &rep
}

func generateReport(cmd *cobra.Command, args []string) error {
	format, err := resultFormat(auditReportFlags.format)
	if err != nil {
		return err
	}

	return withAuditStorage(cmd, func(ctx context.Context, cfg *config.Config, store audit.Storage) error {
		now := time.Now()
		q, err := auditReportFlags.filter.query(now)
		if err != nil {
			return err
		}
		if err := checkQuery(q, 0, 0); err != nil {
			return err
		}
		// Reports cover every matching record.
		q.Limit = 0

		rep, err := buildReport(ctx, store, q, now, auditReportFlags.top)
		if err != nil {
			return cli.NewCommandError("audit report", err)
		}

		w, closeOutput, err := openOutput(auditReportFlags.output, stdout(cmd))
		if err != nil {
			return err
		}
		if format == cli.FormatJSON {
			err = cli.NewFormatter(format).FormatTo(w, rep)
		} else {
			err = writeReport(w, rep)
		}
		if err != nil {
			closeOutput()
			return cli.NewCommandError("audit report", err)
		}
		return closeOutput()
	})
}

func buildReport(ctx context.Context, store audit.Storage, q *audit.Query, now time.Time, top int) (*auditReport, error) {
	recordsCh, errCh, err := store.QueryStream(ctx, q)
	if err != nil {
		return nil, err
	}

	b := newReportBuilder(now, q)
	for r := range recordsCh {
		b.add(r)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return b.build(top), nil
}

func writeReport(w io.Writer, rep *auditReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "=== AUDIT REPORT ===")
	fmt.Fprintf(tw, "Generated At:\t%s\n", rep.GeneratedAt.Format(time.RFC3339))
	if rep.FirstDecidedAt != nil {
		fmt.Fprintf(tw, "Decisions:\t%s .. %s\n",
			rep.FirstDecidedAt.Format(time.RFC3339), rep.LastDecidedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "Total:\t%d\n", rep.Total)
	fmt.Fprintf(tw, "Allowed:\t%d\n", rep.Allowed)
	fmt.Fprintf(tw, "Blocked:\t%d\n", rep.Blocked)
	fmt.Fprintf(tw, "Allow Rate:\t%.1f%%\n", rep.AllowRate*100)
	fmt.Fprintf(tw, "Confidence:\tmin %.4f  mean %.4f  max %.4f\n",
		rep.Confidence.Min, rep.Confidence.Mean, rep.Confidence.Max)

	versions := make([]string, 0, len(rep.ModelVersions))
	for v := range rep.ModelVersions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	fmt.Fprintln(tw, "Model Versions:")
	for _, v := range versions {
		fmt.Fprintf(tw, "  %s\t%d\n", v, rep.ModelVersions[v])
	}

	fmt.Fprintln(tw, "Top Block Reasons:")
	if len(rep.TopReasons) == 0 {
		fmt.Fprintln(tw, "  (none)")
	}
	for _, rc := range rep.TopReasons {
		fmt.Fprintf(tw, "  %d\t%s\n", rc.Count, rc.Reason)
	}
	return tw.Flush()
}

