package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/enforcement"
	"mercator-hq/spendcap/pkg/engine"
	"mercator-hq/spendcap/pkg/telemetry/logging"
)

// Budget decision headers set on every check response.
const (
	HeaderBudgetAction      = "X-Budget-Action"
	HeaderBudgetID          = "X-Budget-Id"
	HeaderBudgetTargetModel = "X-Budget-Target-Model"
	HeaderBudgetPercentUsed = "X-Budget-Percent-Used"
	HeaderBudgetDegraded    = "X-Budget-Degraded"
)

// EnforcementHandler serves POST /v1/enforcement/check.
type EnforcementHandler struct {
	engine *engine.Engine
}

// NewEnforcementHandler creates an enforcement handler.
func NewEnforcementHandler(e *engine.Engine) *EnforcementHandler {
	return &EnforcementHandler{engine: e}
}

// Check answers whether a request with the posted attributes may proceed.
// Allowed and downgraded requests get 200; blocked requests get 429. The
// body is the decision in both cases.
func (h *EnforcementHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req budget.RequestScope
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := logging.WithOwner(r.Context(), req.OwnerID)
	decision := h.engine.Check(ctx, req)
	setDecisionHeaders(w, decision)

	status := http.StatusOK
	if !decision.Allowed {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, decision)
}

func setDecisionHeaders(w http.ResponseWriter, d enforcement.Decision) {
	w.Header().Set(HeaderBudgetAction, string(d.Action))
	if d.BudgetID != "" {
		w.Header().Set(HeaderBudgetID, d.BudgetID)
	}
	if d.TargetModel != "" {
		w.Header().Set(HeaderBudgetTargetModel, d.TargetModel)
	}
	if d.Degraded {
		w.Header().Set(HeaderBudgetDegraded, "true")
	}

	if len(d.Budgets) > 0 {
		highest := decimal.Zero
		for _, s := range d.Budgets {
			if s.PercentUsed.GreaterThan(highest) {
				highest = s.PercentUsed
			}
		}
		w.Header().Set(HeaderBudgetPercentUsed, highest.StringFixed(2))
	}
}
