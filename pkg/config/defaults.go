package config

import "time"

// Default values for configuration fields.
const (
	// Decision defaults
	DefaultModelVersion = "v1.0"
	DefaultSeed         = int64(42)

	// Explanation defaults
	DefaultAudience = "default"

	// Governance defaults
	DefaultMinConfidence      = 0.7
	DefaultGovernanceDebounce = 100 * time.Millisecond

	// Audit defaults
	DefaultAuditBackend              = "sqlite"
	DefaultAuditSQLitePath           = "data/audit.db"
	DefaultAuditSQLiteDriver         = "sqlite"
	DefaultAuditSQLiteMaxOpenConns   = 10
	DefaultAuditSQLiteMaxIdleConns   = 5
	DefaultAuditSQLiteBusyTimeout    = 5 * time.Second
	DefaultAuditRecorderAsyncBuffer  = 1000
	DefaultAuditRecorderWriteTimeout = 5 * time.Second
	DefaultAuditRetentionDays        = 90
	DefaultAuditRetentionSchedule    = "0 3 * * *"
	DefaultAuditRetentionArchivePath = "data/archives/"
	DefaultAuditQueryDefaultLimit    = 100
	DefaultAuditQueryMaxLimit        = 10000
	DefaultAuditQueryTimeout         = 30 * time.Second
	DefaultAuditExportDir            = "reports/audits"
	DefaultAuditExportMaxSize        = 1000000

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "lucid"
	DefaultTracingSampler     = "always"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "lucid"
	DefaultTracingTimeout     = 10 * time.Second

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = int64(1 << 20)

	// Batch defaults
	DefaultBatchParallelism = 4
)

// DefaultConfidenceBuckets are the histogram buckets for decision confidence.
var DefaultConfidenceBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values and is idempotent.
// Boolean options are named so that false is their default.
func ApplyDefaults(cfg *Config) {
	// Decision defaults
	if cfg.Decision.ModelVersion == "" {
		cfg.Decision.ModelVersion = DefaultModelVersion
	}
	if cfg.Decision.Seed == 0 {
		cfg.Decision.Seed = DefaultSeed
	}

	// Explanation defaults
	if cfg.Explanation.Audience == "" {
		cfg.Explanation.Audience = DefaultAudience
	}

	// Governance defaults
	if cfg.Governance.MinConfidence == nil {
		v := DefaultMinConfidence
		cfg.Governance.MinConfidence = &v
	}
	if cfg.Governance.DebounceInterval == 0 {
		cfg.Governance.DebounceInterval = DefaultGovernanceDebounce
	}

	applyAuditDefaults(&cfg.Audit)
	applyTelemetryDefaults(&cfg.Telemetry)

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// Batch defaults
	if cfg.Batch.Parallelism == 0 {
		cfg.Batch.Parallelism = DefaultBatchParallelism
	}
}

func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultAuditBackend
	}

	// SQLite defaults
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultAuditSQLitePath
	}
	if cfg.SQLite.Driver == "" {
		cfg.SQLite.Driver = DefaultAuditSQLiteDriver
	}
	if cfg.SQLite.MaxOpenConns == 0 {
		cfg.SQLite.MaxOpenConns = DefaultAuditSQLiteMaxOpenConns
	}
	if cfg.SQLite.MaxIdleConns == 0 {
		cfg.SQLite.MaxIdleConns = DefaultAuditSQLiteMaxIdleConns
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultAuditSQLiteBusyTimeout
	}

	// Recorder defaults
	if cfg.Recorder.AsyncBuffer == 0 {
		cfg.Recorder.AsyncBuffer = DefaultAuditRecorderAsyncBuffer
	}
	if cfg.Recorder.WriteTimeout == 0 {
		cfg.Recorder.WriteTimeout = DefaultAuditRecorderWriteTimeout
	}

	// Retention defaults
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = DefaultAuditRetentionDays
	}
	if cfg.Retention.PruneSchedule == "" {
		cfg.Retention.PruneSchedule = DefaultAuditRetentionSchedule
	}
	if cfg.Retention.ArchivePath == "" {
		cfg.Retention.ArchivePath = DefaultAuditRetentionArchivePath
	}

	// Query defaults
	if cfg.Query.DefaultLimit == 0 {
		cfg.Query.DefaultLimit = DefaultAuditQueryDefaultLimit
	}
	if cfg.Query.MaxLimit == 0 {
		cfg.Query.MaxLimit = DefaultAuditQueryMaxLimit
	}
	if cfg.Query.Timeout == 0 {
		cfg.Query.Timeout = DefaultAuditQueryTimeout
	}

	// Export defaults
	if cfg.Export.Dir == "" {
		cfg.Export.Dir = DefaultAuditExportDir
	}
	if cfg.Export.MaxExportSize == 0 {
		cfg.Export.MaxExportSize = DefaultAuditExportMaxSize
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Metrics.ConfidenceBuckets) == 0 {
		cfg.Metrics.ConfidenceBuckets = append([]float64(nil), DefaultConfidenceBuckets...)
	}

	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}
}
