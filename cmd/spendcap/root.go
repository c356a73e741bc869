package main

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "spendcap",
	Short: "Spendcap - budget enforcement and alerting for AI API spend",
	Long: `Spendcap meters spending against recurring budgets for AI API usage and
reacts to threshold crossings with notifications and admission control.

Budgets are scoped to an account and optionally to an agent, model or
workflow. Once a budget is exceeded, matching requests are blocked,
downgraded to a cheaper model, or only alerted on.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus SPENDCAP_* environment when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json, csv)")
}
