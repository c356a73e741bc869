package enforcement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
)

func status(id string, sev budget.Severity, action budget.Action) BudgetStatus {
	return BudgetStatus{BudgetID: id, Severity: sev, Action: action, PercentUsed: decimal.NewFromInt(100)}
}

func TestNewEnforcer_Defaults(t *testing.T) {
	config := NewEnforcer(Config{}).Config()

	if config.FailureMode != FailOpen {
		t.Errorf("Expected default failure mode fail_open, got %s", config.FailureMode)
	}
	if config.RefreshInterval != 15*time.Second {
		t.Errorf("Expected refresh interval 15s, got %v", config.RefreshInterval)
	}
	if config.MaxStaleness != 5*time.Minute {
		t.Errorf("Expected max staleness 5m, got %v", config.MaxStaleness)
	}
	if config.ModelDowngrades == nil {
		t.Error("Expected model downgrades map to be initialized")
	}
}

func TestEnforcer_Decide(t *testing.T) {
	enforcer := NewEnforcer(Config{
		DefaultDowngradeModel: "gpt-4o-mini",
		ModelDowngrades:       map[string]string{"claude-3-opus": "claude-3-haiku"},
	})

	tests := []struct {
		name     string
		statuses []BudgetStatus
		model    string
		action   Action
		target   string
		budgetID string
	}{
		{"no budgets", nil, "gpt-4o", ActionAllow, "", ""},
		{"critical block budget", []BudgetStatus{status("b", budget.SeverityCritical, budget.ActionBlock)}, "gpt-4o", ActionAllow, "", ""},
		{"exceeded alert budget", []BudgetStatus{status("a", budget.SeverityExceeded, budget.ActionAlert)}, "gpt-4o", ActionAllow, "", ""},
		{"exceeded block", []BudgetStatus{status("b", budget.SeverityExceeded, budget.ActionBlock)}, "gpt-4o", ActionBlock, "", "b"},
		{"exceeded downgrade default target", []BudgetStatus{status("d", budget.SeverityExceeded, budget.ActionDowngrade)}, "gpt-4o", ActionDowngrade, "gpt-4o-mini", "d"},
		{"exceeded downgrade mapped target", []BudgetStatus{status("d", budget.SeverityExceeded, budget.ActionDowngrade)}, "claude-3-opus", ActionDowngrade, "claude-3-haiku", "d"},
		{"block wins over downgrade", []BudgetStatus{
			status("d", budget.SeverityExceeded, budget.ActionDowngrade),
			status("b", budget.SeverityExceeded, budget.ActionBlock),
		}, "gpt-4o", ActionBlock, "", "b"},
		{"downgrade wins over alert", []BudgetStatus{
			status("a", budget.SeverityExceeded, budget.ActionAlert),
			status("d", budget.SeverityExceeded, budget.ActionDowngrade),
		}, "gpt-4o", ActionDowngrade, "gpt-4o-mini", "d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := enforcer.Decide(tt.statuses, tt.model)
			if d.Action != tt.action {
				t.Errorf("Expected action %s, got %s", tt.action, d.Action)
			}
			if d.TargetModel != tt.target {
				t.Errorf("Expected target %q, got %q", tt.target, d.TargetModel)
			}
			if d.BudgetID != tt.budgetID {
				t.Errorf("Expected budget %q, got %q", tt.budgetID, d.BudgetID)
			}
			if d.Allowed != (tt.action != ActionBlock) {
				t.Errorf("Expected allowed=%v for %s", tt.action != ActionBlock, tt.action)
			}
		})
	}
}

func TestEnforcer_DowngradeWithoutTargetBlocks(t *testing.T) {
	enforcer := NewEnforcer(Config{})

	d := enforcer.Decide([]BudgetStatus{status("d", budget.SeverityExceeded, budget.ActionDowngrade)}, "gpt-4o")
	if d.Action != ActionBlock {
		t.Errorf("Expected fallback to block, got %s", d.Action)
	}
	if d.Allowed {
		t.Error("Expected request to be blocked")
	}
}

func TestEnforcer_Degraded(t *testing.T) {
	open := NewEnforcer(Config{FailureMode: FailOpen}).Degraded("store down")
	if !open.Allowed || open.Action != ActionAllow || !open.Degraded {
		t.Errorf("Expected degraded allow, got %+v", open)
	}

	closed := NewEnforcer(Config{FailureMode: FailClosed}).Degraded("store down")
	if closed.Allowed || closed.Action != ActionBlock || !closed.Degraded {
		t.Errorf("Expected degraded block, got %+v", closed)
	}
}
