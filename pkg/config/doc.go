// Package config provides configuration management for the spendcap service.
//
// This package handles loading, validating, and watching configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("spendcap.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("spendcap.yaml")
//
// There is no package-level configuration. The loaded *Config is passed to
// the components that need it.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention SPENDCAP_SECTION_FIELD.
// For example:
//
//   - SPENDCAP_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - SPENDCAP_STORAGE_BACKEND overrides storage.backend
//   - SPENDCAP_SECURITY_SWEEP_SECRET overrides security.sweep_secret
//   - SPENDCAP_ENFORCEMENT_FAILURE_MODE overrides enforcement.failure_mode
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// EnforcementWatcher watches the configuration file and hands each valid
// new enforcement section to a callback, typically Gate.SetConfig. Invalid
// edits are logged and ignored.
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//
//	storage:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/budgets.db"
//
//	enforcement:
//	  failure_mode: "fail_open"
//	  default_downgrade_model: "gpt-4o-mini"
//	  model_downgrades:
//	    claude-3-opus: "claude-3-haiku"
//
//	alerts:
//	  contacts:
//	    acct-1: "https://hooks.slack.com/services/T000/B000/XXXX"
//	    acct-2: "ops@example.com"
//
//	security:
//	  sweep_secret: "${SPENDCAP_SECURITY_SWEEP_SECRET}"
package config
