package config

import (
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "governance.min_confidence").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration. All validation errors are
// collected and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateDecision(&cfg.Decision)...)
	errs = append(errs, validateGovernance(&cfg.Governance)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateServer(&cfg.Server)...)

	if cfg.Batch.Parallelism < 1 {
		errs = append(errs, FieldError{
			Field:   "batch.parallelism",
			Message: "parallelism must be at least 1",
		})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateDecision(cfg *DecisionConfig) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(cfg.ModelVersion) == "" {
		errs = append(errs, FieldError{
			Field:   "decision.model_version",
			Message: "model version is required",
		})
	}
	return errs
}

func validateGovernance(cfg *GovernanceConfig) []FieldError {
	var errs []FieldError
	if cfg.MinConfidence != nil {
		v := *cfg.MinConfidence
		if math.IsNaN(v) || v < 0 || v > 1 {
			errs = append(errs, FieldError{
				Field:   "governance.min_confidence",
				Message: fmt.Sprintf("must be between 0 and 1, got %v", v),
			})
		}
	}
	if cfg.DebounceInterval < 0 {
		errs = append(errs, FieldError{
			Field:   "governance.debounce_interval",
			Message: "debounce interval must not be negative",
		})
	}
	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "audit.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "audit.sqlite.driver",
				Message: fmt.Sprintf("unsupported driver %q (must be sqlite or sqlite3)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{
				Field:   "audit.sqlite.max_open_conns",
				Message: "must be at least 1",
			})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{
				Field:   "audit.sqlite.max_idle_conns",
				Message: "must not exceed max_open_conns",
			})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("unsupported backend %q (must be sqlite or memory)", cfg.Backend),
		})
	}

	if cfg.Recorder.AsyncBuffer < 1 {
		errs = append(errs, FieldError{
			Field:   "audit.recorder.async_buffer",
			Message: "must be at least 1",
		})
	}
	if cfg.Recorder.WriteTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "audit.recorder.write_timeout",
			Message: "must be positive",
		})
	}

	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.days",
			Message: "must not be negative",
		})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.max_records",
			Message: "must not be negative",
		})
	}
	if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "audit.retention.prune_schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}
	if cfg.Retention.ArchiveBeforeDelete && cfg.Retention.ArchivePath == "" {
		errs = append(errs, FieldError{
			Field:   "audit.retention.archive_path",
			Message: "archive path is required when archive_before_delete is set",
		})
	}

	if cfg.Query.DefaultLimit < 1 || cfg.Query.DefaultLimit > cfg.Query.MaxLimit {
		errs = append(errs, FieldError{
			Field:   "audit.query.default_limit",
			Message: fmt.Sprintf("must be between 1 and max_limit (%d)", cfg.Query.MaxLimit),
		})
	}

	if cfg.Export.Dir == "" {
		errs = append(errs, FieldError{
			Field:   "audit.export.dir",
			Message: "export directory is required",
		})
	}
	if cfg.Export.MaxExportSize < 1 {
		errs = append(errs, FieldError{
			Field:   "audit.export.max_export_size",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json, text or console)", cfg.Logging.Format),
		})
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "path must start with /",
		})
	}
	for i := 1; i < len(cfg.Metrics.ConfidenceBuckets); i++ {
		if cfg.Metrics.ConfidenceBuckets[i] <= cfg.Metrics.ConfidenceBuckets[i-1] {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.confidence_buckets",
				Message: "buckets must be strictly increasing",
			})
			break
		}
	}

	switch cfg.Tracing.Sampler {
	case "always", "never":
	case "ratio":
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "must be between 0 and 1",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q (must be always, never or ratio)", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}

	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: %v", cfg.ListenAddress, err),
		})
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server",
			Message: "timeouts must not be negative",
		})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "must be positive",
		})
	}
	if cfg.MaxBodyBytes < 1 {
		errs = append(errs, FieldError{
			Field:   "server.max_body_bytes",
			Message: "must be at least 1",
		})
	}

	return errs
}
