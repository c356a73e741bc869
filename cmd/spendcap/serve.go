package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/spendcap/pkg/api"
	"mercator-hq/spendcap/pkg/cli"
	"mercator-hq/spendcap/pkg/config"
	"mercator-hq/spendcap/pkg/engine/scheduler"
	"mercator-hq/spendcap/pkg/server"
	"mercator-hq/spendcap/pkg/telemetry/health"
	"mercator-hq/spendcap/pkg/telemetry/metrics"
	"mercator-hq/spendcap/pkg/telemetry/tracing"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the budget service",
	Long: `Start the budget HTTP service with the specified configuration.

The service exposes budget management, usage recording and enforcement
checks, runs the reset and breach-check sweeps on their cron schedules and
reloads the enforcement section when the config file changes.

Examples:
  # Start with defaults (in-memory store)
  spendcap serve

  # Start with a config file
  spendcap serve --config /etc/spendcap/config.yaml

  # Override listen address
  spendcap serve --listen 0.0.0.0:8080

  # Validate config without starting the service
  spendcap serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the service")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}
	if err := setupLogging(cfg.Telemetry.Logging); err != nil {
		return err
	}

	if serveFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg)

	ctx := cli.SetupSignalHandler()

	tracer, err := tracing.New(cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("serve", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	store, err := openStore(cfg.Storage)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer store.Close()
	fmt.Printf("✓ Budget store opened (%s)\n", cfg.Storage.Backend)

	var collector *metrics.Collector
	if config.BoolValue(cfg.Telemetry.Metrics.Enabled, true) {
		collector = metrics.NewCollector(cfg.Telemetry.Metrics.Namespace)
	}

	eng := newEngine(cfg, store, collector)
	eng.Start(ctx)
	defer eng.Wait()
	fmt.Println("✓ Enforcement gate started")

	if config.BoolValue(cfg.Scheduler.Enabled, true) {
		sched := scheduler.New(eng, scheduler.Config{
			ResetSchedule:  cfg.Scheduler.ResetSchedule,
			BreachSchedule: cfg.Scheduler.BreachSchedule,
		})
		if err := sched.Start(ctx); err != nil {
			return cli.NewCommandError("serve", err)
		}
		defer sched.Stop()
		if next := sched.NextRun(); next != nil {
			slog.Debug("sweep scheduler started", "next_run", next)
		}
		fmt.Println("✓ Sweep scheduler started")
	}

	if cfgFile != "" {
		watcher, err := config.NewEnforcementWatcher(cfgFile, func(ec config.EnforcementConfig) {
			eng.Gate().SetConfig(enforcementConfig(ec))
			slog.Info("enforcement configuration reloaded")
		})
		if err != nil {
			slog.Warn("config watcher disabled", "error", err)
		} else {
			go func() {
				if err := watcher.Run(ctx); err != nil {
					slog.Warn("config watcher stopped", "error", err)
				}
			}()
		}
	}

	checker := health.New(0)
	checker.RegisterCheck("storage", store.Ping)

	if cfg.Security.SweepSecret == "" {
		slog.Warn("security.sweep_secret is empty; internal endpoints will reject every call")
	}

	handler := api.NewRouter(api.Options{
		Engine:      eng,
		SweepSecret: cfg.Security.SweepSecret,
		Collector:   collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Health:      checker,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	})

	srv := server.NewServer(cfg.Server, handler)
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	select {
	case <-srv.Ready():
		addr := srv.Addr().String()
		fmt.Println()
		fmt.Printf("✓ Server listening on %s\n", addr)
		fmt.Printf("✓ Health endpoint: http://%s/health\n", addr)
		if collector != nil {
			fmt.Printf("✓ Metrics endpoint: http://%s%s\n", addr, cfg.Telemetry.Metrics.Path)
		}
		fmt.Println("\nPress Ctrl+C to stop")
	case err := <-errChan:
		return cli.NewCommandError("serve", err)
	}

	if err := <-errChan; err != nil {
		return cli.NewCommandError("serve", err)
	}
	fmt.Println("✓ Server stopped")
	return nil
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Spendcap v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", configName())
	fmt.Println("✓ Configuration loaded")

	slog.Debug("storage backend", "backend", cfg.Storage.Backend)
	slog.Debug("enforcement", "failure_mode", cfg.Enforcement.FailureMode,
		"default_downgrade_model", cfg.Enforcement.DefaultDowngradeModel)
	if !config.BoolValue(cfg.Alerts.Enabled, true) {
		slog.Debug("alerts disabled")
	}
}
