package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/lucid/pkg/cli"
	"mercator-hq/lucid/pkg/config"
	"mercator-hq/lucid/pkg/pipeline"
)

var evaluateFlags struct {
	input       string
	export      bool
	exportDir   string
	format      string
	record      bool
	failOnBlock bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a request document",
	Long: `Evaluate one request document through decision, explanation and
responsibility, and print the three artifacts.

A request document is JSON or YAML (chosen by file extension) with a
"features" mapping, an optional "policy" mapping of weights and an optional
"governance" block overriding the configured governance options.

Examples:
  # Print the artifacts
  lucid evaluate --input request.yaml

  # Print the audit document as JSON
  lucid evaluate --input request.json --format json

  # Export the audit bundle to reports/audits/audit_<trace_id>.json
  lucid evaluate --input request.yaml --export

  # Record in the audit store and fail when the decision is blocked
  lucid evaluate --input request.yaml --record --fail-on-block`,
	RunE: evaluateRequest,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evaluateFlags.input, "input", "i", "", "request document (JSON or YAML)")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.export, "export", false, "export the audit bundle to the configured directory")
	evaluateCmd.Flags().StringVar(&evaluateFlags.exportDir, "export-dir", "", "export the audit bundle to this directory")
	evaluateCmd.Flags().StringVar(&evaluateFlags.format, "format", "text", "output format: text, json")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.record, "record", false, "record the evaluation in the audit store")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.failOnBlock, "fail-on-block", false, "exit with status 3 when the decision is blocked")
}

func evaluateRequest(cmd *cobra.Command, args []string) error {
	if evaluateFlags.input == "" {
		return cli.NewConfigError("input", "--input is required")
	}
	format, err := resultFormat(evaluateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	in, err := loadInput(evaluateFlags.input)
	if err != nil {
		return err
	}

	return evaluateAndReport(cmd, cfg, in, evaluationOutput{
		format:      format,
		export:      evaluateFlags.export,
		exportDir:   evaluateFlags.exportDir,
		record:      evaluateFlags.record,
		failOnBlock: evaluateFlags.failOnBlock,
	})
}

// evaluationOutput controls what happens with a single evaluation result.
type evaluationOutput struct {
	format      cli.OutputFormat
	export      bool
	exportDir   string
	record      bool
	failOnBlock bool
}

func evaluateAndReport(cmd *cobra.Command, cfg *config.Config, in pipeline.Input, opts evaluationOutput) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	e, err := newEvaluator(cfg, opts.record)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.pipeline.Run(ctx, in)
	if err != nil {
		return err
	}

	if err := cli.NewFormatter(opts.format).FormatTo(stdout(cmd), result); err != nil {
		return cli.NewCommandError("output", err)
	}

	if dir := exportDirectory(cfg, opts.export, opts.exportDir); dir != "" {
		paths, err := exportResults(cfg, dir, []*pipeline.Result{result})
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr(cmd), "✓ Audit bundle exported to %s\n", paths[0])
	}
	if result.Record != nil {
		fmt.Fprintf(stderr(cmd), "✓ Recorded as %s\n", result.Record.ID)
	}

	if opts.failOnBlock && !result.Verdict.Allowed {
		return fmt.Errorf("trace %s: %w", result.Verdict.TraceID, cli.ErrBlocked)
	}
	return nil
}

// resultFormat accepts the formats that can render pipeline results.
func resultFormat(s string) (cli.OutputFormat, error) {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		return "", err
	}
	if format == cli.FormatCSV {
		return "", cli.NewConfigError("format", "csv output is only available for audit records")
	}
	return format, nil
}

// exportDirectory resolves the export flags: an explicit directory wins,
// --export alone selects the configured one.
func exportDirectory(cfg *config.Config, export bool, dir string) string {
	if dir != "" {
		return dir
	}
	if export {
		return cfg.Audit.Export.Dir
	}
	return ""
}
