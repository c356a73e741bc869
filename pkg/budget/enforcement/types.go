package enforcement

import (
	"time"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
)

// Action is the outcome of a gate check.
type Action string

const (
	// ActionAllow permits the request to proceed unchanged.
	ActionAllow Action = "allow"

	// ActionBlock rejects the request.
	ActionBlock Action = "block"

	// ActionDowngrade permits the request on a cheaper model.
	ActionDowngrade Action = "downgrade"
)

// FailureMode decides the answer when the gate cannot read budget state.
type FailureMode string

const (
	// FailOpen allows requests, risking overrun.
	FailOpen FailureMode = "fail_open"

	// FailClosed blocks requests, risking availability.
	FailClosed FailureMode = "fail_closed"
)

// Valid reports whether m is a known mode.
func (m FailureMode) Valid() bool {
	return m == FailOpen || m == FailClosed
}

// Config contains configuration for the gate.
type Config struct {
	// DefaultDowngradeModel is used when the requested model has no entry in
	// ModelDowngrades.
	DefaultDowngradeModel string

	// ModelDowngrades maps expensive models to cheaper alternatives.
	// Example: "gpt-4o" -> "gpt-4o-mini"
	ModelDowngrades map[string]string

	// RefreshInterval is how often the snapshot is reloaded from the store.
	// Default: 15 seconds
	RefreshInterval time.Duration

	// MaxStaleness is how old the snapshot may get before checks are
	// answered by FailureMode. Default: 5 minutes
	MaxStaleness time.Duration

	// FailureMode applies when the snapshot is missing or too old.
	// Default: FailOpen
	FailureMode FailureMode
}

func (c Config) withDefaults() Config {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 15 * time.Second
	}
	if c.MaxStaleness <= 0 {
		c.MaxStaleness = 5 * time.Minute
	}
	if c.FailureMode == "" {
		c.FailureMode = FailOpen
	}
	if c.ModelDowngrades == nil {
		c.ModelDowngrades = make(map[string]string)
	}
	return c
}

// BudgetStatus is the cached state of one matching budget.
type BudgetStatus struct {
	BudgetID    string          `json:"budget_id"`
	Severity    budget.Severity `json:"severity"`
	PercentUsed decimal.Decimal `json:"percent_used"`
	Action      budget.Action   `json:"action_on_breach"`
}

// Decision is the result of a gate check.
type Decision struct {
	// Allowed indicates if the request should proceed.
	Allowed bool `json:"allowed"`

	// Action is allow, block or downgrade.
	Action Action `json:"action"`

	// TargetModel is the cheaper model to use (if action=downgrade).
	TargetModel string `json:"target_model,omitempty"`

	// BudgetID is the budget that caused a block or downgrade.
	BudgetID string `json:"budget_id,omitempty"`

	// Reason explains a block or downgrade.
	Reason string `json:"reason,omitempty"`

	// Degraded is set when the decision came from FailureMode instead of
	// budget state.
	Degraded bool `json:"degraded,omitempty"`

	// Budgets lists every active budget matching the request.
	Budgets []BudgetStatus `json:"budgets,omitempty"`
}
