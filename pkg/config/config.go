package config

import "time"

// Config is the root configuration structure for the spendcap service.
// It contains the HTTP server, budget storage, sweep scheduling, enforcement
// gate, alerting, security and telemetry settings.
type Config struct {
	// Server contains HTTP server configuration including listen address
	// and timeouts.
	Server ServerConfig `yaml:"server"`

	// Storage selects and configures the budget store backend.
	Storage StorageConfig `yaml:"storage"`

	// Scheduler contains the in-process cron schedules for the reset and
	// breach-check sweeps and their concurrency limits.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Enforcement configures the allow/block/downgrade gate. This section is
	// hot-reloaded when the configuration file changes.
	Enforcement EnforcementConfig `yaml:"enforcement"`

	// Alerts configures threshold notifications.
	Alerts AlertsConfig `yaml:"alerts"`

	// Security contains the shared secret guarding internal endpoints.
	Security SecurityConfig `yaml:"security"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Sweep triggers run synchronously, so keep it above
	// scheduler.sweep_timeout.
	// Default: 3m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// StorageConfig selects the budget store.
type StorageConfig struct {
	// Backend is the storage backend type.
	// Options: "memory", "sqlite", "redis"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Redis contains Redis-specific configuration.
	Redis RedisConfig `yaml:"redis"`
}

// SQLiteConfig contains SQLite budget store configuration.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database.
	// Default: "data/budgets.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite" (modernc.org/sqlite, pure Go), "sqlite3" (mattn/go-sqlite3, cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often the WAL is checkpointed.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// RedisConfig contains Redis budget store configuration.
type RedisConfig struct {
	// Address is the Redis server address.
	// Default: "localhost:6379"
	Address string `yaml:"address"`

	// Password is the optional Redis password.
	Password string `yaml:"password"`

	// DB is the Redis database number.
	// Default: 0
	DB int `yaml:"db"`

	// PoolSize is the maximum number of socket connections.
	// Default: 10
	PoolSize int `yaml:"pool_size"`

	// KeyPrefix namespaces every key written by the store.
	// Default: "spendcap:"
	KeyPrefix string `yaml:"key_prefix"`
}

// SchedulerConfig contains in-process sweep scheduling.
type SchedulerConfig struct {
	// Enabled runs the sweeps on the schedules below. When false, sweeps
	// only run through the HTTP triggers or the CLI.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// ResetSchedule is the cron expression for the period reset sweep.
	// Default: "*/5 * * * *"
	ResetSchedule string `yaml:"reset_schedule"`

	// BreachSchedule is the cron expression for the breach-check sweep.
	// Default: "*/10 * * * *"
	BreachSchedule string `yaml:"breach_schedule"`

	// SweepTimeout bounds one whole sweep.
	// Default: 2m
	SweepTimeout time.Duration `yaml:"sweep_timeout"`

	// ItemTimeout bounds the store work for a single budget within a sweep.
	// Default: 5s
	ItemTimeout time.Duration `yaml:"item_timeout"`

	// Concurrency is the number of budgets processed in parallel.
	// Default: 8
	Concurrency int `yaml:"concurrency"`
}

// EnforcementConfig contains enforcement gate configuration.
type EnforcementConfig struct {
	// DefaultDowngradeModel is used when a downgrade budget is exceeded and
	// the requested model has no entry in ModelDowngrades.
	// Example: "gpt-4o-mini"
	DefaultDowngradeModel string `yaml:"default_downgrade_model"`

	// ModelDowngrades maps requested models to cheaper targets.
	// Example: {"gpt-4o": "gpt-4o-mini", "claude-3-opus": "claude-3-haiku"}
	ModelDowngrades map[string]string `yaml:"model_downgrades"`

	// RefreshInterval is how often the severity snapshot is reloaded.
	// Default: 15s
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// MaxStaleness is the snapshot age after which decisions fall back to
	// FailureMode.
	// Default: 5m
	MaxStaleness time.Duration `yaml:"max_staleness"`

	// FailureMode decides requests when budget state is unavailable.
	// Options: "fail_open", "fail_closed"
	// Default: "fail_open"
	FailureMode string `yaml:"failure_mode"`
}

// AlertsConfig contains threshold notification configuration.
type AlertsConfig struct {
	// Enabled controls whether the breach-check sweep sends notifications.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// InlineEvaluation runs crossing detection right after each usage
	// record instead of waiting for the next breach-check sweep.
	// Default: false
	InlineEvaluation bool `yaml:"inline_evaluation"`

	// RatePerSecond caps outgoing notifications.
	// Default: 10
	RatePerSecond float64 `yaml:"rate_per_second"`

	// Burst is the notification rate limiter burst.
	// Default: 20
	Burst int `yaml:"burst"`

	// Slack contains Slack webhook transport settings.
	Slack SlackConfig `yaml:"slack"`

	// SMTP contains email transport settings.
	SMTP SMTPConfig `yaml:"smtp"`

	// Contacts maps owner IDs to a notification address. An address is a
	// Slack webhook URL, an email address (optionally "mailto:") or "log:".
	Contacts map[string]string `yaml:"contacts"`
}

// SlackConfig contains Slack webhook settings.
type SlackConfig struct {
	// Timeout is the HTTP timeout for webhook posts.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// SMTPConfig contains outgoing mail settings. Email delivery is disabled
// when Host is empty.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// SweepSecret authorizes the internal sweep and usage endpoints, sent as
	// the X-Sweep-Secret header or an Authorization bearer token. Internal
	// endpoints reject every call while it is empty.
	SweepSecret string `yaml:"sweep_secret"`

	// SecretsDir is a directory of secret files consulted after the
	// SPENDCAP_SECRET_* environment when resolving ${secret:name}
	// references. Empty disables file secrets.
	SecretsDir string `yaml:"secrets_dir"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks webhook URLs, bearer tokens and passwords in log
	// attributes.
	// Default: false
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether the Prometheus endpoint is served.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "spendcap"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "spendcap"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the collector connection.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for span exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// BoolValue dereferences an optional boolean, returning def when unset.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
