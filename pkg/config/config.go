package config

import (
	"time"

	"mercator-hq/lucid/pkg/responsibility"
)

// Config is the root configuration structure for Lucid.
type Config struct {
	// Decision configures the scoring engine.
	Decision DecisionConfig `yaml:"decision"`

	// Explanation configures the explanation engine.
	Explanation ExplanationConfig `yaml:"explanation"`

	// Governance holds the default governance options applied to every
	// evaluation that does not carry its own.
	Governance GovernanceConfig `yaml:"governance"`

	// Audit configures persistence, export and retention of audit documents.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Server configures the HTTP evaluation server.
	Server ServerConfig `yaml:"server"`

	// Batch configures batch evaluation.
	Batch BatchConfig `yaml:"batch"`
}

// DecisionConfig contains configuration for the decision engine.
type DecisionConfig struct {
	// ModelVersion is stamped on every decision artifact.
	// Default: "v1.0"
	ModelVersion string `yaml:"model_version"`

	// Seed is recorded for reproducibility. Scoring is deterministic and
	// does not consume it. Zero selects the default.
	// Default: 42
	Seed int64 `yaml:"seed"`
}

// ExplanationConfig contains configuration for the explanation engine.
type ExplanationConfig struct {
	// Audience tags explanations with their intended reader.
	// Default: "default"
	Audience string `yaml:"audience"`
}

// GovernanceConfig contains the default governance options.
type GovernanceConfig struct {
	// MinConfidence is the confidence floor in [0, 1]. A nil value selects
	// the default so that an explicit 0 can disable the floor.
	// Default: 0.7
	MinConfidence *float64 `yaml:"min_confidence"`

	// UseSensitiveAttrs declares that sensitive attributes were used.
	// Default: false
	UseSensitiveAttrs bool `yaml:"use_sensitive_attrs"`

	// Watch reloads governance when the configuration file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a reload is applied.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// Options returns the governance options with defaults applied.
func (g GovernanceConfig) Options() responsibility.Governance {
	opts := responsibility.DefaultGovernance()
	if g.MinConfidence != nil {
		opts.MinConfidence = *g.MinConfidence
	}
	opts.UseSensitiveAttrs = g.UseSensitiveAttrs
	return opts
}

// AuditConfig contains configuration for the audit trail.
type AuditConfig struct {
	// Enabled records every evaluation in the audit store.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite backend settings.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Recorder contains asynchronous recorder settings.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention contains pruning settings.
	Retention RetentionConfig `yaml:"retention"`

	// Query contains query limits.
	Query QueryConfig `yaml:"query"`

	// Export contains export settings.
	Export ExportConfig `yaml:"export"`
}

// SQLiteConfig contains configuration for the SQLite audit store.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// DisableWAL turns off write-ahead logging.
	// Default: false
	DisableWAL bool `yaml:"disable_wal"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RecorderConfig contains configuration for the asynchronous recorder.
type RecorderConfig struct {
	// AsyncBuffer is the capacity of the record queue.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RetentionConfig contains configuration for audit retention.
type RetentionConfig struct {
	// Days is how long records are kept. Zero keeps records forever.
	// Default: 90
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for automatic pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// ArchiveBeforeDelete writes pruned records to a compressed archive.
	// Default: false
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// ArchivePath is the directory for archives.
	// Default: "data/archives/"
	ArchivePath string `yaml:"archive_path"`

	// MaxRecords caps the number of stored records. Zero means no cap.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`
}

// QueryConfig contains configuration for audit queries.
type QueryConfig struct {
	// DefaultLimit is applied to queries without a limit.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the largest limit a query may request.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`

	// Timeout bounds a single query.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// ExportConfig contains configuration for audit exports.
type ExportConfig struct {
	// Dir is the directory for per-trace audit documents.
	// Default: "reports/audits"
	Dir string `yaml:"dir"`

	// Compress gzips per-trace audit documents.
	// Default: false
	Compress bool `yaml:"compress"`

	// JSONCompact disables indentation in JSON exports.
	// Default: false
	JSONCompact bool `yaml:"json_compact"`

	// CSVOmitHeader drops the header row from CSV exports.
	// Default: false
	CSVOmitHeader bool `yaml:"csv_omit_header"`

	// MaxExportSize caps the number of records in one export.
	// Default: 1000000
	MaxExportSize int `yaml:"max_export_size"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled exposes metrics.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path of the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "lucid"
	Namespace string `yaml:"namespace"`

	// ConfidenceBuckets are the histogram buckets for decision confidence.
	// Default: [0.1, 0.2, ..., 1.0]
	ConfidenceBuckets []float64 `yaml:"confidence_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled turns on span export.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler is the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the sampled fraction when Sampler is "ratio".
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name reported on spans.
	// Default: "lucid"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds a single export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the host:port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout bounds idle keep-alive connections.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps the request body size.
	// Default: 1048576
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// AllowInlineGovernance lets requests carry their own governance block.
	// When false such requests are rejected and the configured governance
	// always applies.
	// Default: false
	AllowInlineGovernance bool `yaml:"allow_inline_governance"`
}

// BatchConfig contains configuration for batch evaluation.
type BatchConfig struct {
	// Parallelism is the number of concurrent evaluations.
	// Default: 4
	Parallelism int `yaml:"parallelism"`
}
