package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/config"
	"mercator-hq/lucid/pkg/pipeline"
	"mercator-hq/lucid/pkg/telemetry/health"
	"mercator-hq/lucid/pkg/telemetry/metrics"
	"mercator-hq/lucid/pkg/telemetry/tracing"
)

// Option configures a Server.
type Option func(*Server)

// WithHealth serves liveness and readiness from checker.
func WithHealth(checker *health.Checker) Option {
	return func(s *Server) {
		s.health = checker
	}
}

// WithMetrics serves collector's registry at path.
func WithMetrics(collector *metrics.Collector, path string) Option {
	return func(s *Server) {
		s.metrics = collector
		if path != "" {
			s.metricsPath = path
		}
	}
}

// WithTracer starts a server span for every request.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithAuditStorage serves stored audit records by trace ID.
func WithAuditStorage(storage audit.Storage) Option {
	return func(s *Server) {
		s.storage = storage
	}
}

// WithClock overrides the clock used to stamp returned documents.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server is the HTTP evaluation server.
type Server struct {
	config   *config.ServerConfig
	pipeline *pipeline.Pipeline

	health      *health.Checker
	metrics     *metrics.Collector
	metricsPath string
	tracer      *tracing.Tracer
	storage     audit.Storage
	now         func() time.Time
	logger      *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// New creates a server evaluating requests with p.
func New(cfg *config.ServerConfig, p *pipeline.Pipeline, opts ...Option) *Server {
	serverCfg := *cfg
	s := &Server{
		config:      &serverCfg,
		pipeline:    p,
		health:      health.New(0),
		metricsPath: config.DefaultMetricsPath,
		now:         time.Now,
		logger:      slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.MaxBodyBytes <= 0 {
		s.config.MaxBodyBytes = config.DefaultMaxBodyBytes
	}
	if s.config.ShutdownTimeout <= 0 {
		s.config.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	return s
}

// Start listens on the configured address and serves until ctx is done,
// SIGINT or SIGTERM arrives, or the listener fails. It then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}

	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.addr = listener.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting evaluation server", "address", listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown stops accepting requests and waits for in-flight ones, bounded
// by the configured shutdown timeout. Readiness fails from the moment
// shutdown begins.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		s.health.SetDraining(true)
		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("evaluation server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the address the server listens on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/v1/evaluate", s.evaluateHandler())
	mux.Handle("/health", s.health.LivenessHandler())
	mux.Handle("/ready", s.health.ReadinessHandler())
	if s.storage != nil {
		mux.Handle("GET /v1/audit/{trace_id}", s.auditHandler())
	}
	if s.metrics != nil {
		mux.Handle(s.metricsPath, s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = loggingMiddleware(s.logger)(handler)
	handler = requestIDMiddleware(handler)
	if s.tracer.Enabled() {
		handler = tracing.HTTPMiddleware(s.tracer, handler)
	}
	handler = recoveryMiddleware(s.logger)(handler)

	return handler
}
