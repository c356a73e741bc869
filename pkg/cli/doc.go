/*
Package cli provides command-line helpers used by the spendcap command.

Output Formatting:

Results can be written as aligned text, JSON or CSV. Tabular results
implement Table:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
