package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/cli"
	"mercator-hq/spendcap/pkg/engine"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run budget sweeps once",
	Long: `Run a budget sweep once against the configured store and print its summary.

Use these from an external scheduler when the in-process scheduler is
disabled, or to catch up after downtime. Both sweeps are safe to run while
a server is using the same store: resets compare-and-set the period
boundary and each alert band is claimed in the store before it is sent.

Examples:
  # Reset every budget whose period has ended
  spendcap sweep reset --config config.yaml

  # Evaluate thresholds and send notifications
  spendcap sweep breach-check --config config.yaml -o json`,
}

var sweepResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset budgets whose period has ended",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("sweep reset", func(ctx context.Context, eng *engine.Engine) error {
			summary, err := eng.ResetSweep(ctx)
			if err != nil {
				return err
			}
			if err := printResult(summaryOutput((*resetTable)(summary), summary)); err != nil {
				return err
			}
			return printItemErrors(summary.Errors)
		})
	},
}

var sweepBreachCmd = &cobra.Command{
	Use:   "breach-check",
	Short: "Evaluate thresholds and notify owners of new crossings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("sweep breach-check", func(ctx context.Context, eng *engine.Engine) error {
			summary, err := eng.BreachCheck(ctx)
			if err != nil {
				return err
			}
			if err := printResult(summaryOutput((*breachTable)(summary), summary)); err != nil {
				return err
			}
			return printItemErrors(summary.Errors)
		})
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.AddCommand(sweepResetCmd)
	sweepCmd.AddCommand(sweepBreachCmd)
}

// withEngine loads configuration, opens the store and runs fn with an
// engine over it. Errors from fn are reported as command errors.
func withEngine(name string, fn func(ctx context.Context, eng *engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Telemetry.Logging); err != nil {
		return err
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		return cli.NewCommandError(name, err)
	}
	defer store.Close()

	ctx := cli.SetupSignalHandler()
	if err := fn(ctx, newEngine(cfg, store, nil)); err != nil {
		return cli.NewCommandError(name, err)
	}
	return nil
}

// summaryOutput picks the tabular form for text and CSV output and the
// summary itself for JSON.
func summaryOutput(table cli.Table, summary any) any {
	if strings.EqualFold(outputFormat, string(cli.FormatJSON)) {
		return summary
	}
	return table
}

// printItemErrors lists per-budget failures after a text summary.
func printItemErrors(errs []budget.ItemError) error {
	if len(errs) == 0 || !strings.EqualFold(outputFormat, string(cli.FormatText)) {
		return nil
	}
	fmt.Println()
	return printResult(itemErrorTable(errs))
}
