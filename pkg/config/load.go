package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SPENDCAP_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention SPENDCAP_SECTION_FIELD (e.g., SPENDCAP_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from defaults.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		if cfg, err = parseFile(path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadEnforcement reads only the enforcement section of the file at path,
// with defaults applied and validated. The file watcher uses it so that an
// edit elsewhere in the file never changes the running service.
func LoadEnforcement(path string) (EnforcementConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EnforcementConfig{}, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var doc struct {
		Enforcement EnforcementConfig `yaml:"enforcement"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return EnforcementConfig{}, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyEnforcementDefaults(&doc.Enforcement)
	if errs := validateEnforcement(&doc.Enforcement); len(errs) > 0 {
		return EnforcementConfig{}, ValidationError{Errors: errs}
	}
	return doc.Enforcement, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format SPENDCAP_SECTION_FIELD. Values that
// fail to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Storage overrides
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	envString("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	envString("STORAGE_REDIS_ADDRESS", &cfg.Storage.Redis.Address)
	envString("STORAGE_REDIS_PASSWORD", &cfg.Storage.Redis.Password)
	envInt("STORAGE_REDIS_DB", &cfg.Storage.Redis.DB)
	envString("STORAGE_REDIS_KEY_PREFIX", &cfg.Storage.Redis.KeyPrefix)

	// Scheduler overrides
	envBoolPtr("SCHEDULER_ENABLED", &cfg.Scheduler.Enabled)
	envString("SCHEDULER_RESET_SCHEDULE", &cfg.Scheduler.ResetSchedule)
	envString("SCHEDULER_BREACH_SCHEDULE", &cfg.Scheduler.BreachSchedule)
	envInt("SCHEDULER_CONCURRENCY", &cfg.Scheduler.Concurrency)

	// Enforcement overrides
	envString("ENFORCEMENT_DEFAULT_DOWNGRADE_MODEL", &cfg.Enforcement.DefaultDowngradeModel)
	envString("ENFORCEMENT_FAILURE_MODE", &cfg.Enforcement.FailureMode)
	envDuration("ENFORCEMENT_REFRESH_INTERVAL", &cfg.Enforcement.RefreshInterval)
	envDuration("ENFORCEMENT_MAX_STALENESS", &cfg.Enforcement.MaxStaleness)

	// Alerts overrides
	envBoolPtr("ALERTS_ENABLED", &cfg.Alerts.Enabled)
	envBool("ALERTS_INLINE_EVALUATION", &cfg.Alerts.InlineEvaluation)
	envString("ALERTS_SMTP_HOST", &cfg.Alerts.SMTP.Host)
	envInt("ALERTS_SMTP_PORT", &cfg.Alerts.SMTP.Port)
	envString("ALERTS_SMTP_USERNAME", &cfg.Alerts.SMTP.Username)
	envString("ALERTS_SMTP_PASSWORD", &cfg.Alerts.SMTP.Password)
	envString("ALERTS_SMTP_FROM", &cfg.Alerts.SMTP.From)

	// Security overrides
	envString("SECURITY_SWEEP_SECRET", &cfg.Security.SweepSecret)
	envString("SECURITY_SECRETS_DIR", &cfg.Security.SecretsDir)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBoolPtr("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envBoolPtr(name string, dst **bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = &b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
