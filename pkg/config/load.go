package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "LUCID_"

// Parse parses YAML configuration, applies defaults and validates it.
// Unknown keys are ignored.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values and validates the result. Environment
// variables are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides named LUCID_SECTION_FIELD (for
// example LUCID_GOVERNANCE_MIN_CONFIDENCE). Environment variables take
// precedence over the file.
//
// When allowMissing is true and the file does not exist, loading starts
// from the defaults instead of failing.
func LoadConfigWithEnvOverrides(path string, allowMissing bool) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		if !allowMissing || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to cfg.
// A malformed value is reported rather than silently skipped.
func applyEnvOverrides(cfg *Config) error {
	var errs []FieldError

	str := func(name string, dst *string) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			*dst = val
		}
	}
	boolean := func(name string, dst *bool) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, FieldError{Field: EnvPrefix + name, Message: fmt.Sprintf("invalid boolean %q", val)})
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, FieldError{Field: EnvPrefix + name, Message: fmt.Sprintf("invalid integer %q", val)})
				return
			}
			*dst = i
		}
	}
	float := func(name string, dst *float64) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				errs = append(errs, FieldError{Field: EnvPrefix + name, Message: fmt.Sprintf("invalid number %q", val)})
				return
			}
			*dst = f
		}
	}
	duration := func(name string, dst *time.Duration) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, FieldError{Field: EnvPrefix + name, Message: fmt.Sprintf("invalid duration %q", val)})
				return
			}
			*dst = d
		}
	}

	// Decision overrides
	str("DECISION_MODEL_VERSION", &cfg.Decision.ModelVersion)
	if val := os.Getenv(EnvPrefix + "DECISION_SEED"); val != "" {
		seed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			errs = append(errs, FieldError{Field: EnvPrefix + "DECISION_SEED", Message: fmt.Sprintf("invalid integer %q", val)})
		} else {
			cfg.Decision.Seed = seed
		}
	}

	// Explanation overrides
	str("EXPLANATION_AUDIENCE", &cfg.Explanation.Audience)

	// Governance overrides
	if os.Getenv(EnvPrefix+"GOVERNANCE_MIN_CONFIDENCE") != "" {
		var v float64
		if cfg.Governance.MinConfidence != nil {
			v = *cfg.Governance.MinConfidence
		}
		float("GOVERNANCE_MIN_CONFIDENCE", &v)
		cfg.Governance.MinConfidence = &v
	}
	boolean("GOVERNANCE_USE_SENSITIVE_ATTRS", &cfg.Governance.UseSensitiveAttrs)
	boolean("GOVERNANCE_WATCH", &cfg.Governance.Watch)

	// Audit overrides
	boolean("AUDIT_ENABLED", &cfg.Audit.Enabled)
	str("AUDIT_BACKEND", &cfg.Audit.Backend)
	str("AUDIT_SQLITE_PATH", &cfg.Audit.SQLite.Path)
	str("AUDIT_SQLITE_DRIVER", &cfg.Audit.SQLite.Driver)
	integer("AUDIT_RETENTION_DAYS", &cfg.Audit.Retention.Days)
	str("AUDIT_RETENTION_PRUNE_SCHEDULE", &cfg.Audit.Retention.PruneSchedule)
	boolean("AUDIT_RETENTION_ARCHIVE_BEFORE_DELETE", &cfg.Audit.Retention.ArchiveBeforeDelete)
	str("AUDIT_RETENTION_ARCHIVE_PATH", &cfg.Audit.Retention.ArchivePath)
	str("AUDIT_EXPORT_DIR", &cfg.Audit.Export.Dir)
	boolean("AUDIT_EXPORT_COMPRESS", &cfg.Audit.Export.Compress)

	// Telemetry overrides
	str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	str("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
	str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)

	// Server overrides
	str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	boolean("SERVER_ALLOW_INLINE_GOVERNANCE", &cfg.Server.AllowInlineGovernance)

	// Batch overrides
	integer("BATCH_PARALLELISM", &cfg.Batch.Parallelism)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
