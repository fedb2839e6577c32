package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/lucid/pkg/cli"
	"mercator-hq/lucid/pkg/pipeline"
)

var batchFlags struct {
	inputs      []string
	parallel    int
	format      string
	export      bool
	exportDir   string
	record      bool
	failOnBlock bool
	quiet       bool
}

var batchCmd = &cobra.Command{
	Use:   "batch [files...]",
	Short: "Evaluate many request documents concurrently",
	Long: `Evaluate several request documents with bounded parallelism.

Results are printed in input order. The first document that fails to load
or evaluate stops the batch.

Examples:
  # Evaluate two documents
  lucid batch --input a.json --input b.yaml

  # Evaluate a directory listing with 8 workers
  lucid batch --parallel 8 requests/*.yaml

  # Export every audit bundle
  lucid batch --export-dir out/ requests/*.json`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringArrayVarP(&batchFlags.inputs, "input", "i", nil, "request document (repeatable)")
	batchCmd.Flags().IntVarP(&batchFlags.parallel, "parallel", "p", 0, "concurrent evaluations (default from config)")
	batchCmd.Flags().StringVar(&batchFlags.format, "format", "text", "output format: text, json")
	batchCmd.Flags().BoolVar(&batchFlags.export, "export", false, "export audit bundles to the configured directory")
	batchCmd.Flags().StringVar(&batchFlags.exportDir, "export-dir", "", "export audit bundles to this directory")
	batchCmd.Flags().BoolVar(&batchFlags.record, "record", false, "record every evaluation in the audit store")
	batchCmd.Flags().BoolVar(&batchFlags.failOnBlock, "fail-on-block", false, "exit with status 3 when any decision is blocked")
	batchCmd.Flags().BoolVarP(&batchFlags.quiet, "quiet", "q", false, "do not report progress")
}

func runBatch(cmd *cobra.Command, args []string) error {
	paths := append(append([]string(nil), batchFlags.inputs...), args...)
	if len(paths) == 0 {
		return cli.NewConfigError("input", "at least one request document is required")
	}
	format, err := resultFormat(batchFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	parallel := batchFlags.parallel
	if parallel <= 0 {
		parallel = cfg.Batch.Parallelism
	}

	inputs := make([]pipeline.Input, 0, len(paths))
	for _, path := range paths {
		in, err := loadInput(path)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	e, err := newEvaluator(cfg, batchFlags.record)
	if err != nil {
		return err
	}
	defer e.Close()

	var progress *cli.SimpleProgress
	var onProgress func(int)
	if !batchFlags.quiet {
		progress = cli.NewProgressReporter(stderr(cmd), "evaluations")
		progress.Start(int64(len(inputs)))
		onProgress = func(completed int) { progress.Update(int64(completed)) }
	}

	results, err := e.pipeline.RunBatchWithProgress(ctx, inputs, parallel, onProgress)
	if err != nil {
		var batchErr *pipeline.BatchError
		if progress != nil {
			progress.Error(err)
		}
		if errors.As(err, &batchErr) {
			return fmt.Errorf("%s: %w", paths[batchErr.Index], batchErr.Cause)
		}
		return err
	}
	if progress != nil {
		progress.Finish()
	}

	if err := cli.NewFormatter(format).FormatTo(stdout(cmd), results); err != nil {
		return cli.NewCommandError("output", err)
	}

	if dir := exportDirectory(cfg, batchFlags.export, batchFlags.exportDir); dir != "" {
		exported, err := exportResults(cfg, dir, results)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr(cmd), "✓ %d audit bundle(s) exported to %s\n", len(exported), dir)
	}

	blocked := 0
	for _, r := range results {
		if !r.Verdict.Allowed {
			blocked++
		}
	}
	slog.Debug("batch complete", "count", len(results), "blocked", blocked, "parallel", parallel)

	if batchFlags.failOnBlock && blocked > 0 {
		return fmt.Errorf("%d of %d decision(s): %w", blocked, len(results), cli.ErrBlocked)
	}
	return nil
}
