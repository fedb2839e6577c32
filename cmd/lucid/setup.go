package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/audit/export"
	"mercator-hq/lucid/pkg/audit/recorder"
	"mercator-hq/lucid/pkg/audit/storage"
	"mercator-hq/lucid/pkg/cli"
	"mercator-hq/lucid/pkg/config"
	"mercator-hq/lucid/pkg/pipeline"
	"mercator-hq/lucid/pkg/request"
	"mercator-hq/lucid/pkg/telemetry/logging"
)

// loadConfig loads the configuration named by --config with environment
// overrides, makes it live and initializes logging. Only the default file
// may be missing.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = defaultConfigFile
	}

	cfg, err := config.LoadConfigWithEnvOverrides(path, path == defaultConfigFile)
	if err != nil {
		return nil, cli.NewConfigError(path, err.Error())
	}
	config.SetConfig(cfg)

	if err := initLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging installs the default logger. Command output goes to stdout,
// so logs always go to stderr.
func initLogging(cfg *config.Config) error {
	logCfg := logging.FromConfig(cfg.Telemetry.Logging, os.Stderr)
	if verbose {
		logCfg.Level = "debug"
	}
	if _, err := logging.Init(logCfg); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	return nil
}

// commandContext returns the command's context, cancelled on SIGINT or
// SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := context.Background()
	if cmd != nil && cmd.Context() != nil {
		parent = cmd.Context()
	}
	return cli.SignalContext(parent)
}

func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

func stderr(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stderr
	}
	return cmd.ErrOrStderr()
}

// openOutput returns the file named by path, or w when path is empty. The
// returned close function must always be called.
func openOutput(path string, w io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return w, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// openStorage opens the configured audit store.
func openStorage(cfg *config.Config) (audit.Storage, error) {
	store, err := storage.New(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit storage: %w", err)
	}
	return store, nil
}

// evaluator is the pipeline used by the one-shot evaluation commands,
// optionally recording into the audit store.
type evaluator struct {
	pipeline *pipeline.Pipeline
	store    audit.Storage
	recorder *recorder.Recorder
}

func newEvaluator(cfg *config.Config, record bool) (*evaluator, error) {
	e := &evaluator{}

	var opts []pipeline.Option
	if record {
		store, err := openStorage(cfg)
		if err != nil {
			return nil, err
		}
		e.store = store
		e.recorder = recorder.NewRecorder(store, cfg.Audit.Recorder)
		opts = append(opts, pipeline.WithRecorder(e.recorder))
	}

	p, err := pipeline.NewFromConfig(cfg, opts...)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.pipeline = p
	return e, nil
}

// Close drains the recorder before closing the store.
func (e *evaluator) Close() {
	if e.recorder != nil {
		e.recorder.Close()
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			slog.Warn("failed to close audit storage", "error", err)
		}
	}
}

// loadInput reads a request document and converts it to a pipeline input,
// logging governance keys that were ignored.
func loadInput(path string) (pipeline.Input, error) {
	doc, err := request.Load(path)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("%s: %w", path, err)
	}
	in, ignored, err := doc.Input()
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("%s: %w", path, err)
	}
	if len(ignored) > 0 {
		slog.Warn("ignoring unknown governance keys", "path", path, "keys", ignored)
	}
	return in, nil
}

// exportResults writes the audit bundle of every result into dir.
func exportResults(cfg *config.Config, dir string, results []*pipeline.Result) ([]string, error) {
	exporter := export.NewFileExporter(dir, export.WithCompression(cfg.Audit.Export.Compress))

	paths := make([]string, 0, len(results))
	for _, r := range results {
		doc, err := r.Document()
		if err != nil {
			return paths, err
		}
		path, err := exporter.ExportDocument(doc)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
