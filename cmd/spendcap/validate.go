package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration file with environment overrides applied and check
every section. Exits with status 2 when the configuration is invalid.

Examples:
  spendcap validate --config /etc/spendcap/config.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid (%s)\n", configName())
		fmt.Fprintf(cmd.OutOrStdout(), "  storage:   %s\n", cfg.Storage.Backend)
		fmt.Fprintf(cmd.OutOrStdout(), "  listen:    %s\n", cfg.Server.ListenAddress)
		fmt.Fprintf(cmd.OutOrStdout(), "  contacts:  %d\n", len(cfg.Alerts.Contacts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
