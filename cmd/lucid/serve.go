package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/audit/recorder"
	"mercator-hq/lucid/pkg/audit/retention"
	"mercator-hq/lucid/pkg/cli"
	"mercator-hq/lucid/pkg/config"
	"mercator-hq/lucid/pkg/pipeline"
	"mercator-hq/lucid/pkg/responsibility"
	"mercator-hq/lucid/pkg/server"
	"mercator-hq/lucid/pkg/telemetry/health"
	"mercator-hq/lucid/pkg/telemetry/metrics"
	"mercator-hq/lucid/pkg/telemetry/tracing"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the evaluation server",
	Long: `Start the HTTP evaluation server with the specified configuration.

Endpoints:
  POST /v1/evaluate          evaluate a request document (JSON or YAML)
  GET  /v1/audit/{trace_id}  fetch a recorded evaluation (audit enabled)
  GET  /health               liveness
  GET  /ready                readiness
  GET  /metrics              Prometheus metrics (metrics enabled)

Requests carrying their own governance block are rejected unless
server.allow_inline_governance is set.

With governance.watch set, governance options are reloaded when the
configuration file changes; other settings require a restart.

Examples:
  # Start with the default config
  lucid serve

  # Start with a custom config and listen address
  lucid serve --config /etc/lucid/config.yaml --listen 0.0.0.0:8080

  # Validate config without starting the server
  lucid serve --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting server")
}

// service owns everything the server depends on.
type service struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	server   *server.Server
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	health   *health.Checker
	store    audit.Storage
	recorder *recorder.Recorder
	pruner   *retention.Pruner
	logger   *slog.Logger
}

func newService(cfg *config.Config) (svc *service, err error) {
	s := &service{
		cfg:    cfg,
		health: health.New(0),
		logger: slog.Default().With("component", "serve"),
	}
	defer func() {
		if err != nil {
			s.Close(context.Background())
		}
	}()

	if cfg.Telemetry.Metrics.Enabled {
		s.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	}

	s.tracer, err = tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithMetrics(s.metrics),
		pipeline.WithTracer(s.tracer),
	}
	serverOpts := []server.Option{
		server.WithHealth(s.health),
		server.WithTracer(s.tracer),
	}
	if s.metrics != nil {
		serverOpts = append(serverOpts, server.WithMetrics(s.metrics, cfg.Telemetry.Metrics.Path))
	}

	if cfg.Audit.Enabled {
		s.store, err = openStorage(cfg)
		if err != nil {
			return nil, err
		}
		s.health.RegisterCheck("audit_storage", s.store.Ping)

		s.recorder = recorder.NewRecorder(s.store, cfg.Audit.Recorder, recorder.WithMetrics(s.metrics))
		s.pruner = retention.NewPruner(s.store, cfg.Audit.Retention, retention.WithMetrics(s.metrics))

		pipelineOpts = append(pipelineOpts, pipeline.WithRecorder(s.recorder))
		serverOpts = append(serverOpts, server.WithAuditStorage(s.store))
	}

	s.pipeline, err = pipeline.NewFromConfig(cfg, pipelineOpts...)
	if err != nil {
		return nil, err
	}
	s.server = server.New(&cfg.Server, s.pipeline, serverOpts...)
	return s, nil
}

// applyGovernance swaps in the governance options of a reloaded
// configuration.
func (s *service) applyGovernance(cfg *config.Config) error {
	engine, err := responsibility.NewEngine(cfg.Governance.Options())
	if err != nil {
		s.metrics.RecordGovernanceReload(false)
		s.logger.Error("governance reload rejected", "error", err)
		return err
	}
	s.pipeline.SetResponsibility(engine)
	s.metrics.RecordGovernanceReload(true)
	return nil
}

// run serves until ctx is done or a shutdown signal arrives.
func (s *service) run(ctx context.Context) error {
	if s.pruner != nil && s.cfg.Audit.Retention.PruneSchedule != "" {
		if err := s.pruner.Start(ctx); err != nil {
			s.logger.Warn("failed to start retention scheduler", "error", err)
		} else if next := s.pruner.NextPruning(); next != nil {
			s.logger.Debug("audit retention scheduler started", "next_pruning", next)
		}
	}

	if s.cfg.Governance.Watch {
		watcher, err := config.NewWatcher(cfgFile, s.cfg.Governance.DebounceInterval, nil)
		if err != nil {
			return fmt.Errorf("failed to watch configuration: %w", err)
		}
		defer watcher.Stop()

		go func() {
			err := watcher.Watch(ctx, func(cfg *config.Config) {
				s.applyGovernance(cfg)
			})
			if err != nil {
				s.logger.Error("configuration watcher failed", "error", err)
			}
		}()
	}

	return s.server.Start(ctx)
}

// Close releases resources in dependency order: the scheduler stops, the
// recorder drains into the store, then the store and tracer close.
func (s *service) Close(ctx context.Context) {
	if s.pruner != nil {
		s.pruner.Stop()
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("failed to close audit storage", "error", err)
		}
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to flush spans", "error", err)
		}
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
		if err := initLogging(cfg); err != nil {
			return err
		}
	}

	out := stdout(cmd)
	if serveFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	printBanner(cmd, cfg)

	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	ctx, stop := commandContext(cmd)
	defer stop()

	if err := svc.run(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := stdout(cmd)
	fmt.Fprintf(out, "Lucid v%s\n", Version)
	fmt.Fprintf(out, "✓ Configuration loaded from %s\n", cfgFile)
	fmt.Fprintf(out, "✓ Governance: min_confidence=%.2f use_sensitive_attrs=%t\n",
		cfg.Governance.Options().MinConfidence, cfg.Governance.UseSensitiveAttrs)
	if cfg.Audit.Enabled {
		fmt.Fprintf(out, "✓ Audit store: %s\n", cfg.Audit.Backend)
	}
	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
