package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/storage"
	"mercator-hq/spendcap/pkg/engine"
)

var budgetFlags struct {
	owner      string
	name       string
	period     string
	limit      string
	scope      string
	action     string
	activeOnly bool
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage budgets",
	Long: `Create, inspect and retire budgets directly in the configured store.

Scopes are written as kind or kind:identifier, for example global,
agent:support-bot, model:gpt-4o or workflow:nightly-etl.

Examples:
  # Monthly $500 budget for an account, blocking once exceeded
  spendcap budget create --owner acct-1 --name "Team cap" --period monthly --limit 500 --action block

  # Daily $20 cap on one model that downgrades once exceeded
  spendcap budget create --owner acct-1 --name "GPT-4o" --period daily --limit 20 \
    --scope model:gpt-4o --action downgrade

  # List an account's active budgets as CSV
  spendcap budget list --owner acct-1 --active -o csv`,
}

var budgetCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a budget",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := budgetSpecFromFlags()
		if err != nil {
			return err
		}
		return withEngine("budget create", func(ctx context.Context, eng *engine.Engine) error {
			b, err := eng.CreateBudget(ctx, spec)
			if err != nil {
				return err
			}
			return printBudgets(b)
		})
	},
}

var budgetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List budgets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("budget list", func(ctx context.Context, eng *engine.Engine) error {
			budgets, err := eng.ListBudgets(ctx, storage.Filter{
				OwnerID:    budgetFlags.owner,
				ActiveOnly: budgetFlags.activeOnly,
			})
			if err != nil {
				return err
			}
			return printResult(budgetTable(budgets))
		})
	},
}

var budgetGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("budget get", func(ctx context.Context, eng *engine.Engine) error {
			b, err := eng.GetBudget(ctx, args[0])
			if err != nil {
				return err
			}
			return printBudgets(b)
		})
	},
}

var budgetDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Stop enforcing and sweeping a budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("budget deactivate", func(ctx context.Context, eng *engine.Engine) error {
			b, err := eng.DeactivateBudget(ctx, args[0])
			if err != nil {
				return err
			}
			return printBudgets(b)
		})
	},
}

var budgetDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine("budget delete", func(ctx context.Context, eng *engine.Engine) error {
			if err := eng.DeleteBudget(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Budget %s deleted\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetCreateCmd, budgetListCmd, budgetGetCmd, budgetDeactivateCmd, budgetDeleteCmd)

	f := budgetCreateCmd.Flags()
	f.StringVar(&budgetFlags.owner, "owner", "", "owning account ID (required)")
	f.StringVar(&budgetFlags.name, "name", "", "display name (required)")
	f.StringVar(&budgetFlags.period, "period", string(budget.PeriodMonthly), "period: daily, weekly, monthly")
	f.StringVar(&budgetFlags.limit, "limit", "", "limit in USD (required)")
	f.StringVar(&budgetFlags.scope, "scope", string(budget.ScopeGlobal), "scope: global, agent:<id>, model:<id>, workflow:<id>")
	f.StringVar(&budgetFlags.action, "action", string(budget.ActionAlert), "action on breach: alert, block, downgrade")
	budgetCreateCmd.MarkFlagRequired("owner")
	budgetCreateCmd.MarkFlagRequired("name")
	budgetCreateCmd.MarkFlagRequired("limit")

	budgetListCmd.Flags().StringVar(&budgetFlags.owner, "owner", "", "only list this account's budgets")
	budgetListCmd.Flags().BoolVar(&budgetFlags.activeOnly, "active", false, "only list active budgets")
}

func budgetSpecFromFlags() (engine.BudgetSpec, error) {
	limit, err := decimal.NewFromString(budgetFlags.limit)
	if err != nil {
		return engine.BudgetSpec{}, fmt.Errorf("invalid --limit %q: %w", budgetFlags.limit, err)
	}
	scope, err := parseScope(budgetFlags.scope)
	if err != nil {
		return engine.BudgetSpec{}, err
	}
	return engine.BudgetSpec{
		OwnerID:        budgetFlags.owner,
		Name:           budgetFlags.name,
		Period:         budget.Period(strings.ToLower(budgetFlags.period)),
		LimitUSD:       limit,
		Scope:          scope,
		ActionOnBreach: budget.Action(strings.ToLower(budgetFlags.action)),
	}, nil
}

// parseScope parses kind or kind:identifier.
func parseScope(s string) (budget.Scope, error) {
	scope, err := budget.ParseScope(s)
	if err != nil {
		return budget.Scope{}, fmt.Errorf("invalid --scope %q: %w", s, err)
	}
	switch {
	case scope.Kind == budget.ScopeGlobal && scope.Identifier != "":
		return budget.Scope{}, fmt.Errorf("invalid --scope %q: global takes no identifier", s)
	case scope.Kind != budget.ScopeGlobal && scope.Identifier == "":
		return budget.Scope{}, fmt.Errorf("invalid --scope %q: %s needs an identifier", s, scope.Kind)
	}
	return scope, nil
}

// printBudgets prints one budget as an object in JSON and as a table row
// otherwise.
func printBudgets(b *budget.Budget) error {
	if strings.EqualFold(outputFormat, "json") {
		return printResult(b)
	}
	return printResult(budgetTable{b})
}
