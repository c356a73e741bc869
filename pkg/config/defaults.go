package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 3 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Storage defaults
	DefaultStorageBackend           = "sqlite"
	DefaultSQLitePath               = "data/budgets.db"
	DefaultSQLiteDriver             = "sqlite"
	DefaultSQLiteWALMode            = true
	DefaultSQLiteBusyTimeout        = 5 * time.Second
	DefaultSQLiteCheckpointInterval = 5 * time.Minute
	DefaultRedisAddress             = "localhost:6379"
	DefaultRedisPoolSize            = 10
	DefaultRedisKeyPrefix           = "spendcap:"

	// Scheduler defaults
	DefaultSchedulerEnabled = true
	DefaultResetSchedule    = "*/5 * * * *"
	DefaultBreachSchedule   = "*/10 * * * *"
	DefaultSweepTimeout     = 2 * time.Minute
	DefaultItemTimeout      = 5 * time.Second
	DefaultSweepConcurrency = 8

	// Enforcement defaults
	DefaultRefreshInterval = 15 * time.Second
	DefaultMaxStaleness    = 5 * time.Minute
	DefaultFailureMode     = "fail_open"

	// Alerts defaults
	DefaultAlertsEnabled       = true
	DefaultAlertsRatePerSecond = 10.0
	DefaultAlertsBurst         = 20
	DefaultSlackTimeout        = 10 * time.Second
	DefaultSMTPPort            = 587

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "spendcap"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingServiceName = "spendcap"
	DefaultTracingTimeout     = 10 * time.Second
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
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
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	applyStorageDefaults(&cfg.Storage)
	applySchedulerDefaults(&cfg.Scheduler)
	ApplyEnforcementDefaults(&cfg.Enforcement)
	applyAlertsDefaults(&cfg.Alerts)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultStorageBackend
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultSQLitePath
	}
	if cfg.SQLite.Driver == "" {
		cfg.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.SQLite.WALMode == nil {
		cfg.SQLite.WALMode = boolPtr(DefaultSQLiteWALMode)
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.SQLite.CheckpointInterval == 0 {
		cfg.SQLite.CheckpointInterval = DefaultSQLiteCheckpointInterval
	}

	if cfg.Redis.Address == "" {
		cfg.Redis.Address = DefaultRedisAddress
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
}

func applySchedulerDefaults(cfg *SchedulerConfig) {
	if cfg.Enabled == nil {
		cfg.Enabled = boolPtr(DefaultSchedulerEnabled)
	}
	if cfg.ResetSchedule == "" {
		cfg.ResetSchedule = DefaultResetSchedule
	}
	if cfg.BreachSchedule == "" {
		cfg.BreachSchedule = DefaultBreachSchedule
	}
	if cfg.SweepTimeout == 0 {
		cfg.SweepTimeout = DefaultSweepTimeout
	}
	if cfg.ItemTimeout == 0 {
		cfg.ItemTimeout = DefaultItemTimeout
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultSweepConcurrency
	}
}

// ApplyEnforcementDefaults fills the enforcement section. The file watcher
// calls it on reloaded sections before validating them.
func ApplyEnforcementDefaults(cfg *EnforcementConfig) {
	if cfg.ModelDowngrades == nil {
		cfg.ModelDowngrades = make(map[string]string)
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.MaxStaleness == 0 {
		cfg.MaxStaleness = DefaultMaxStaleness
	}
	if cfg.FailureMode == "" {
		cfg.FailureMode = DefaultFailureMode
	}
}

func applyAlertsDefaults(cfg *AlertsConfig) {
	if cfg.Enabled == nil {
		cfg.Enabled = boolPtr(DefaultAlertsEnabled)
	}
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = DefaultAlertsRatePerSecond
	}
	if cfg.Burst == 0 {
		cfg.Burst = DefaultAlertsBurst
	}
	if cfg.Slack.Timeout == 0 {
		cfg.Slack.Timeout = DefaultSlackTimeout
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = DefaultSMTPPort
	}
	if cfg.Contacts == nil {
		cfg.Contacts = make(map[string]string)
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.Enabled == nil {
		cfg.Metrics.Enabled = boolPtr(DefaultMetricsEnabled)
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func boolPtr(b bool) *bool {
	return &b
}
