// Spendcap meters and caps spending against recurring AI API budgets.
//
// It runs as an HTTP service that:
//   - Stores budgets per account with daily, weekly or monthly periods
//   - Records the cost of completed requests against every matching budget
//   - Answers allow, block or downgrade for requests about to be sent
//   - Notifies account contacts when budgets cross 75%, 90% and 100%
//   - Resets budgets at their UTC period boundary
//
// Usage:
//
//	# Start the service
//	spendcap serve --config spendcap.yaml
//
//	# Run a sweep once against the configured store
//	spendcap sweep reset
//	spendcap sweep breach-check
//
//	# Manage budgets
//	spendcap budget create --owner acct-1 --name "monthly" --period monthly --limit 100 --scope model:gpt-4o --action downgrade
//	spendcap budget list --owner acct-1
//
//	# Check a configuration file
//	spendcap validate --config spendcap.yaml
package main

import (
	"fmt"
	"os"

	"mercator-hq/spendcap/pkg/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
