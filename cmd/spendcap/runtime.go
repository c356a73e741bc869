package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"mercator-hq/spendcap/pkg/budget/alerts"
	"mercator-hq/spendcap/pkg/budget/enforcement"
	"mercator-hq/spendcap/pkg/budget/period"
	"mercator-hq/spendcap/pkg/budget/storage"
	"mercator-hq/spendcap/pkg/cli"
	"mercator-hq/spendcap/pkg/config"
	"mercator-hq/spendcap/pkg/engine"
	"mercator-hq/spendcap/pkg/security/secrets"
	"mercator-hq/spendcap/pkg/telemetry/logging"
	"mercator-hq/spendcap/pkg/telemetry/metrics"
)

// loadConfig loads the configuration named by --config with environment
// overrides. Failures are reported as configuration errors.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(configName(), err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := resolveSecrets(context.Background(), cfg); err != nil {
		return nil, cli.NewConfigError(configName(), err.Error())
	}
	return cfg, nil
}

// resolveSecrets substitutes ${secret:name} references in the credential
// fields and alert contacts.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	providers := []secrets.Provider{secrets.NewEnvProvider(config.EnvPrefix + "SECRET_")}
	if cfg.Security.SecretsDir != "" {
		providers = append(providers, secrets.NewFileProvider(cfg.Security.SecretsDir))
	}
	r := secrets.NewResolver(providers...)

	err := r.ResolveAll(ctx, map[string]*string{
		"security.sweep_secret":      &cfg.Security.SweepSecret,
		"storage.redis.password":     &cfg.Storage.Redis.Password,
		"alerts.smtp.username":       &cfg.Alerts.SMTP.Username,
		"alerts.smtp.password":       &cfg.Alerts.SMTP.Password,
		"telemetry.tracing.endpoint": &cfg.Telemetry.Tracing.Endpoint,
	})
	if err != nil {
		return err
	}

	for owner, address := range cfg.Alerts.Contacts {
		resolved, err := r.Resolve(ctx, address)
		if err != nil {
			return fmt.Errorf("alerts.contacts.%s: %w", owner, err)
		}
		cfg.Alerts.Contacts[owner] = resolved
	}
	return nil
}

func configName() string {
	if cfgFile == "" {
		return "defaults"
	}
	return cfgFile
}

// setupLogging installs the configured logger as the slog default.
func setupLogging(cfg config.LoggingConfig) error {
	logger, err := logging.New(logging.Config{
		Level:         cfg.Level,
		Format:        cfg.Format,
		AddSource:     cfg.AddSource,
		RedactSecrets: cfg.RedactSecrets,
		Writer:        os.Stderr,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)
	return nil
}

// openStore opens the configured budget store.
func openStore(cfg config.StorageConfig) (storage.Backend, error) {
	store, err := storage.NewFactory(storageConfig(cfg)).Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}
	return store, nil
}

func storageConfig(cfg config.StorageConfig) storage.Config {
	return storage.Config{
		Backend: cfg.Backend,
		SQLite: storage.SQLiteBackendConfig{
			Path:             cfg.SQLite.Path,
			Driver:           cfg.SQLite.Driver,
			WALMode:          config.BoolValue(cfg.SQLite.WALMode, true),
			BusyTimeout:      cfg.SQLite.BusyTimeout,
			SnapshotInterval: cfg.SQLite.CheckpointInterval,
		},
		Redis: storage.RedisBackendConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		},
	}
}

func enforcementConfig(cfg config.EnforcementConfig) enforcement.Config {
	return enforcement.Config{
		DefaultDowngradeModel: cfg.DefaultDowngradeModel,
		ModelDowngrades:       cfg.ModelDowngrades,
		RefreshInterval:       cfg.RefreshInterval,
		MaxStaleness:          cfg.MaxStaleness,
		FailureMode:           enforcement.FailureMode(cfg.FailureMode),
	}
}

// newDispatcher builds the alert dispatcher, or nil when alerts are off.
// Each transport is wrapped in its own circuit breaker.
func newDispatcher(cfg config.AlertsConfig) *alerts.Dispatcher {
	if !config.BoolValue(cfg.Enabled, true) {
		return nil
	}

	router := &alerts.Router{
		Slack: alerts.WithBreaker(alerts.NewSlackNotifier(cfg.Slack.Timeout), alerts.DefaultBreakerSettings()),
		Log:   alerts.NewLogNotifier(slog.Default()),
	}
	if cfg.SMTP.Host != "" {
		router.Email = alerts.WithBreaker(alerts.NewSMTPNotifier(alerts.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}), alerts.DefaultBreakerSettings())
	}

	return alerts.NewDispatcher(router, alerts.StaticDirectory(cfg.Contacts),
		alerts.WithRateLimit(cfg.RatePerSecond, cfg.Burst),
	)
}

// newEngine wires an engine over store from cfg. collector may be nil.
func newEngine(cfg *config.Config, store storage.Backend, collector *metrics.Collector) *engine.Engine {
	opts := []engine.Option{}
	if d := newDispatcher(cfg.Alerts); d != nil {
		opts = append(opts, engine.WithDispatcher(d))
	}
	if collector != nil {
		opts = append(opts, engine.WithMetrics(collector.Namespace(), collector.Registry()))
	}

	return engine.New(store, engine.Config{
		Sweep: period.Config{
			Concurrency:  cfg.Scheduler.Concurrency,
			ItemTimeout:  cfg.Scheduler.ItemTimeout,
			SweepTimeout: cfg.Scheduler.SweepTimeout,
		},
		Enforcement:      enforcementConfig(cfg.Enforcement),
		InlineEvaluation: cfg.Alerts.InlineEvaluation,
	}, opts...)
}

// printResult writes v in the --output format.
func printResult(v any) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, v)
}
