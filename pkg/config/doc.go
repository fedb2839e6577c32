// Package config provides configuration management for Lucid.
//
// Configuration is read from a YAML file, completed with defaults,
// optionally overridden from the environment, and validated as a whole.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("lucid.yaml")
//
//  2. From a YAML file with environment variable overrides, falling back to
//     defaults when the file is absent:
//     cfg, err := config.LoadConfigWithEnvOverrides("lucid.yaml", true)
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention LUCID_SECTION_FIELD:
//
//   - LUCID_GOVERNANCE_MIN_CONFIDENCE overrides governance.min_confidence
//   - LUCID_AUDIT_SQLITE_PATH overrides audit.sqlite.path
//   - LUCID_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
// Values are applied in this order, later overriding earlier:
//
//  1. Defaults
//  2. YAML file
//  3. Environment variables
//
// # Example Configuration
//
//	decision:
//	  model_version: "v1.0"
//	governance:
//	  min_confidence: 0.7
//	  use_sensitive_attrs: false
//	  watch: true
//	audit:
//	  enabled: true
//	  backend: sqlite
//	  sqlite:
//	    path: data/audit.db
//	  retention:
//	    days: 90
//	    prune_schedule: "0 3 * * *"
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//
// # Hot Reload
//
// Watcher observes the configuration file and invokes a callback with the
// freshly loaded configuration after a debounce interval. Invalid edits are
// logged and the previous configuration stays live.
package config
