package enforcement

import (
	"fmt"

	"mercator-hq/spendcap/pkg/budget"
)

// Enforcer turns the statuses of the budgets matching a request into a
// decision. It holds no state besides its configuration.
//
// Among exceeded budgets, block wins over downgrade. Budgets whose action is
// alert, and budgets that are not exceeded, never affect the decision.
type Enforcer struct {
	config Config
}

// NewEnforcer creates an enforcer.
//
// Example:
//
//	enforcer := NewEnforcer(Config{
//	    DefaultDowngradeModel: "gpt-4o-mini",
//	    ModelDowngrades: map[string]string{
//	        "gpt-4o":        "gpt-4o-mini",
//	        "claude-3-opus": "claude-3-haiku",
//	    },
//	})
func NewEnforcer(config Config) *Enforcer {
	return &Enforcer{config: config.withDefaults()}
}

// Decide applies the breach rule to the statuses of the matching budgets.
// model is the requested model, used to pick a downgrade target.
func (e *Enforcer) Decide(statuses []BudgetStatus, model string) Decision {
	var blocking, downgrading *BudgetStatus
	for i := range statuses {
		s := &statuses[i]
		if s.Severity != budget.SeverityExceeded {
			continue
		}
		switch s.Action {
		case budget.ActionBlock:
			if blocking == nil {
				blocking = s
			}
		case budget.ActionDowngrade:
			if downgrading == nil {
				downgrading = s
			}
		}
	}

	switch {
	case blocking != nil:
		return e.block(blocking, fmt.Sprintf("budget %s exceeded (%s%% used)", blocking.BudgetID, blocking.PercentUsed.StringFixed(1)), statuses)
	case downgrading != nil:
		return e.downgrade(downgrading, model, statuses)
	default:
		return Decision{Allowed: true, Action: ActionAllow, Budgets: statuses}
	}
}

// Degraded returns the decision used when budget state is unavailable.
func (e *Enforcer) Degraded(reason string) Decision {
	if e.config.FailureMode == FailClosed {
		return Decision{Allowed: false, Action: ActionBlock, Reason: reason, Degraded: true}
	}
	return Decision{Allowed: true, Action: ActionAllow, Reason: reason, Degraded: true}
}

func (e *Enforcer) block(s *BudgetStatus, reason string, statuses []BudgetStatus) Decision {
	return Decision{
		Allowed:  false,
		Action:   ActionBlock,
		BudgetID: s.BudgetID,
		Reason:   reason,
		Budgets:  statuses,
	}
}

func (e *Enforcer) downgrade(s *BudgetStatus, model string, statuses []BudgetStatus) Decision {
	target, ok := e.config.ModelDowngrades[model]
	if !ok || target == "" {
		target = e.config.DefaultDowngradeModel
	}
	if target == "" {
		// No downgrade available, fall back to blocking
		return e.block(s, fmt.Sprintf("budget %s exceeded (no downgrade available for model %q)", s.BudgetID, model), statuses)
	}

	return Decision{
		Allowed:     true,
		Action:      ActionDowngrade,
		TargetModel: target,
		BudgetID:    s.BudgetID,
		Reason:      fmt.Sprintf("budget %s exceeded, downgrading %q to %q", s.BudgetID, model, target),
		Budgets:     statuses,
	}
}

// Config returns the enforcer configuration.
func (e *Enforcer) Config() Config {
	return e.config
}
