package config

import (
	"fmt"
	"net"
	"net/mail"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
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

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateScheduler(&cfg.Scheduler)...)
	errs = append(errs, validateEnforcement(&cfg.Enforcement)...)
	errs = append(errs, validateAlerts(&cfg.Alerts)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "max header bytes must be non-negative"})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "SQLite path is required when backend is 'sqlite'",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q: must be 'sqlite' or 'sqlite3'", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.busy_timeout", Message: "busy timeout must be non-negative"})
		}
		if cfg.SQLite.CheckpointInterval < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.checkpoint_interval", Message: "checkpoint interval must be non-negative"})
		}
	case "redis":
		if cfg.Redis.Address == "" {
			errs = append(errs, FieldError{
				Field:   "storage.redis.address",
				Message: "Redis address is required when backend is 'redis'",
			})
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{Field: "storage.redis.db", Message: "db must be non-negative"})
		}
	case "":
		errs = append(errs, FieldError{Field: "storage.backend", Message: "backend is required"})
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory', 'sqlite' or 'redis'", cfg.Backend),
		})
	}

	return errs
}

func validateScheduler(cfg *SchedulerConfig) []FieldError {
	var errs []FieldError

	if _, err := cron.ParseStandard(cfg.ResetSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "scheduler.reset_schedule",
			Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.ResetSchedule, err),
		})
	}
	if _, err := cron.ParseStandard(cfg.BreachSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "scheduler.breach_schedule",
			Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.BreachSchedule, err),
		})
	}
	if cfg.SweepTimeout <= 0 {
		errs = append(errs, FieldError{Field: "scheduler.sweep_timeout", Message: "sweep timeout must be positive"})
	}
	if cfg.ItemTimeout <= 0 {
		errs = append(errs, FieldError{Field: "scheduler.item_timeout", Message: "item timeout must be positive"})
	} else if cfg.SweepTimeout > 0 && cfg.ItemTimeout > cfg.SweepTimeout {
		errs = append(errs, FieldError{Field: "scheduler.item_timeout", Message: "item timeout must not exceed sweep timeout"})
	}
	if cfg.Concurrency < 1 {
		errs = append(errs, FieldError{Field: "scheduler.concurrency", Message: "concurrency must be at least 1"})
	}

	return errs
}

func validateEnforcement(cfg *EnforcementConfig) []FieldError {
	var errs []FieldError

	if cfg.FailureMode != "fail_open" && cfg.FailureMode != "fail_closed" {
		errs = append(errs, FieldError{
			Field:   "enforcement.failure_mode",
			Message: fmt.Sprintf("invalid failure mode %q: must be 'fail_open' or 'fail_closed'", cfg.FailureMode),
		})
	}
	if cfg.RefreshInterval <= 0 {
		errs = append(errs, FieldError{Field: "enforcement.refresh_interval", Message: "refresh interval must be positive"})
	}
	if cfg.MaxStaleness <= 0 {
		errs = append(errs, FieldError{Field: "enforcement.max_staleness", Message: "max staleness must be positive"})
	} else if cfg.RefreshInterval > 0 && cfg.MaxStaleness < cfg.RefreshInterval {
		errs = append(errs, FieldError{Field: "enforcement.max_staleness", Message: "max staleness must be at least the refresh interval"})
	}

	for model, target := range cfg.ModelDowngrades {
		if model == "" || target == "" {
			errs = append(errs, FieldError{
				Field:   "enforcement.model_downgrades",
				Message: "model and target must be non-empty",
			})
			break
		}
	}

	// Downgrade chains must terminate.
	visited := make(map[string]bool)
	for model := range cfg.ModelDowngrades {
		if err := checkCircularDowngrade(model, cfg.ModelDowngrades, visited); err != nil {
			errs = append(errs, FieldError{
				Field:   "enforcement.model_downgrades",
				Message: err.Error(),
			})
			break // Only report one circular reference error
		}
	}

	return errs
}

// checkCircularDowngrade checks for circular references in model downgrades.
func checkCircularDowngrade(model string, downgrades map[string]string, visited map[string]bool) error {
	if visited[model] {
		return fmt.Errorf("circular downgrade detected for model %q", model)
	}

	visited[model] = true
	if next, ok := downgrades[model]; ok && next != model {
		if err := checkCircularDowngrade(next, downgrades, visited); err != nil {
			return err
		}
	}
	delete(visited, model)

	return nil
}

func validateAlerts(cfg *AlertsConfig) []FieldError {
	var errs []FieldError

	if cfg.RatePerSecond < 0 {
		errs = append(errs, FieldError{Field: "alerts.rate_per_second", Message: "rate must be non-negative"})
	}
	if cfg.Burst < 1 {
		errs = append(errs, FieldError{Field: "alerts.burst", Message: "burst must be at least 1"})
	}
	if cfg.Slack.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "alerts.slack.timeout", Message: "timeout must be positive"})
	}

	if cfg.SMTP.Host != "" {
		if cfg.SMTP.Port < 1 || cfg.SMTP.Port > 65535 {
			errs = append(errs, FieldError{
				Field:   "alerts.smtp.port",
				Message: fmt.Sprintf("invalid port %d: must be 1-65535", cfg.SMTP.Port),
			})
		}
		if _, err := mail.ParseAddress(cfg.SMTP.From); err != nil {
			errs = append(errs, FieldError{
				Field:   "alerts.smtp.from",
				Message: fmt.Sprintf("invalid sender address %q", cfg.SMTP.From),
			})
		}
	}

	for owner, address := range cfg.Contacts {
		if strings.TrimSpace(address) == "" {
			errs = append(errs, FieldError{
				Field:   "alerts.contacts." + owner,
				Message: "address must not be empty",
			})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q: must be one of debug, info, warn, error", cfg.Logging.Level),
		})
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if BoolValue(cfg.Metrics.Enabled, DefaultMetricsEnabled) && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never' or 'ratio'", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "sample ratio must be between 0.0 and 1.0",
			})
		}
	}

	return errs
}
