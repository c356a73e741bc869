package main

import (
	"strconv"
	"strings"
	"time"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/period"
	"mercator-hq/spendcap/pkg/budget/threshold"
	"mercator-hq/spendcap/pkg/engine"
)

// budgetTable renders budgets one per row.
type budgetTable []*budget.Budget

func (t budgetTable) Header() []string {
	return []string{"ID", "OWNER", "NAME", "PERIOD", "SCOPE", "ACTION", "SPEND", "LIMIT", "USED%", "RESET_AT", "ACTIVE"}
}

func (t budgetTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, b := range t {
		rows = append(rows, []string{
			b.ID,
			b.OwnerID,
			b.Name,
			string(b.Period),
			b.Scope.String(),
			string(b.ActionOnBreach),
			b.CurrentSpendUSD.StringFixed(2),
			b.LimitUSD.StringFixed(2),
			threshold.PercentUsed(b.CurrentSpendUSD, b.LimitUSD).StringFixed(1),
			b.ResetAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(b.IsActive),
		})
	}
	return rows
}

// resetTable renders a reset sweep summary.
type resetTable period.ResetSummary

func (t *resetTable) Header() []string {
	return []string{"CHECKED", "RESET", "ERRORS", "RESET_IDS"}
}

func (t *resetTable) Rows() [][]string {
	return [][]string{{
		strconv.Itoa(t.TotalChecked),
		strconv.Itoa(t.ResetCount),
		strconv.Itoa(len(t.Errors)),
		strings.Join(t.Reset, ","),
	}}
}

// breachTable renders a breach-check summary.
type breachTable engine.BreachSummary

func (t *breachTable) Header() []string {
	return []string{"BUDGETS", "EXCEEDED", "CRITICAL", "WARNING", "OWNERS", "SENT", "FAILED", "ERRORS"}
}

func (t *breachTable) Rows() [][]string {
	return [][]string{{
		strconv.Itoa(t.TotalBudgets),
		strconv.Itoa(t.ExceededCount),
		strconv.Itoa(t.CriticalCount),
		strconv.Itoa(t.WarningCount),
		strconv.Itoa(t.AffectedOwners),
		strconv.Itoa(t.NotificationsSent),
		strconv.Itoa(t.NotificationsFailed),
		strconv.Itoa(len(t.Errors)),
	}}
}

// itemErrorTable renders per-budget sweep failures.
type itemErrorTable []budget.ItemError

func (t itemErrorTable) Header() []string { return []string{"BUDGET", "ERROR"} }

func (t itemErrorTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, []string{e.BudgetID, e.Message})
	}
	return rows
}
