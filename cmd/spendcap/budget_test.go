package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/enforcement"
	"mercator-hq/spendcap/pkg/config"
)

func TestParseScope(t *testing.T) {
	tests := []struct {
		input   string
		want    budget.Scope
		wantErr bool
	}{
		{input: "global", want: budget.GlobalScope()},
		{input: "GLOBAL", want: budget.GlobalScope()},
		{input: "agent:support-bot", want: budget.AgentScope("support-bot")},
		{input: "model:gpt-4o", want: budget.ModelScope("gpt-4o")},
		{input: "workflow:etl:nightly", want: budget.WorkflowScope("etl:nightly")},
		{input: "global:x", wantErr: true},
		{input: "model", wantErr: true},
		{input: "team:a", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseScope(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseScope(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseScope(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseScope(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestBudgetSpecFromFlags(t *testing.T) {
	orig := budgetFlags
	defer func() { budgetFlags = orig }()

	budgetFlags.owner = "acct-1"
	budgetFlags.name = "Team cap"
	budgetFlags.period = "Monthly"
	budgetFlags.limit = "500.25"
	budgetFlags.scope = "model:gpt-4o"
	budgetFlags.action = "downgrade"

	spec, err := budgetSpecFromFlags()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Period != budget.PeriodMonthly {
		t.Errorf("Period = %q, want %q", spec.Period, budget.PeriodMonthly)
	}
	if !spec.LimitUSD.Equal(decimal.RequireFromString("500.25")) {
		t.Errorf("LimitUSD = %s, want 500.25", spec.LimitUSD)
	}
	if spec.Scope != budget.ModelScope("gpt-4o") {
		t.Errorf("Scope = %v, want model:gpt-4o", spec.Scope)
	}
	if spec.ActionOnBreach != budget.ActionDowngrade {
		t.Errorf("ActionOnBreach = %q, want downgrade", spec.ActionOnBreach)
	}

	budgetFlags.limit = "lots"
	if _, err := budgetSpecFromFlags(); err == nil {
		t.Error("expected error for non-numeric limit")
	}
}

func TestBudgetTableRows(t *testing.T) {
	b := &budget.Budget{
		ID:              "b1",
		OwnerID:         "acct-1",
		Name:            "cap",
		Period:          budget.PeriodDaily,
		LimitUSD:        decimal.NewFromInt(10),
		CurrentSpendUSD: decimal.RequireFromString("8.5"),
		Scope:           budget.AgentScope("bot"),
		ActionOnBreach:  budget.ActionBlock,
		ResetAt:         time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		IsActive:        true,
	}

	table := budgetTable{b}
	rows := table.Rows()
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if len(rows[0]) != len(table.Header()) {
		t.Fatalf("row has %d columns, header has %d", len(rows[0]), len(table.Header()))
	}

	want := []string{"b1", "acct-1", "cap", "daily", "agent:bot", "block", "8.50", "10.00", "85.0", "2025-03-15T00:00:00Z", "true"}
	for i := range want {
		if rows[0][i] != want[i] {
			t.Errorf("column %s = %q, want %q", table.Header()[i], rows[0][i], want[i])
		}
	}
}

func TestEnforcementConfigTranslation(t *testing.T) {
	got := enforcementConfig(config.EnforcementConfig{
		DefaultDowngradeModel: "gpt-4o-mini",
		ModelDowngrades:       map[string]string{"gpt-4o": "gpt-4o-mini"},
		RefreshInterval:       15 * time.Second,
		MaxStaleness:          5 * time.Minute,
		FailureMode:           "fail_closed",
	})

	if got.FailureMode != enforcement.FailClosed {
		t.Errorf("FailureMode = %q, want %q", got.FailureMode, enforcement.FailClosed)
	}
	if got.ModelDowngrades["gpt-4o"] != "gpt-4o-mini" {
		t.Errorf("ModelDowngrades not carried over: %v", got.ModelDowngrades)
	}
	if got.MaxStaleness != 5*time.Minute {
		t.Errorf("MaxStaleness = %v, want 5m", got.MaxStaleness)
	}
}

func TestStorageConfigTranslation(t *testing.T) {
	cfg := config.Default()
	got := storageConfig(cfg.Storage)

	if got.Backend != cfg.Storage.Backend {
		t.Errorf("Backend = %q, want %q", got.Backend, cfg.Storage.Backend)
	}
	if !got.SQLite.WALMode {
		t.Error("WAL mode should default to on")
	}
	if got.SQLite.SnapshotInterval != cfg.Storage.SQLite.CheckpointInterval {
		t.Errorf("SnapshotInterval = %v, want %v", got.SQLite.SnapshotInterval, cfg.Storage.SQLite.CheckpointInterval)
	}
}

func TestNewDispatcherDisabled(t *testing.T) {
	off := false
	if d := newDispatcher(config.AlertsConfig{Enabled: &off}); d != nil {
		t.Error("expected no dispatcher when alerts are disabled")
	}
	if d := newDispatcher(config.AlertsConfig{}); d == nil {
		t.Error("expected a dispatcher when alerts are enabled by default")
	}
}
