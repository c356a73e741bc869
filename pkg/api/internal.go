package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/engine"
	"mercator-hq/spendcap/pkg/telemetry/logging"
)

// InternalHandler serves the secret-protected sweep and usage routes.
type InternalHandler struct {
	engine *engine.Engine
}

// NewInternalHandler creates an internal handler.
func NewInternalHandler(e *engine.Engine) *InternalHandler {
	return &InternalHandler{engine: e}
}

// ResetSweep handles POST /internal/sweeps/reset.
func (h *InternalHandler) ResetSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.ResetSweep(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// BreachCheck handles POST /internal/sweeps/breach-check.
func (h *InternalHandler) BreachCheck(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.BreachCheck(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// UsageRequest is the body of POST /internal/usage.
type UsageRequest struct {
	budget.RequestScope
	AmountUSD decimal.Decimal `json:"amount_usd"`
}

// UsageResponse reports the budgets a usage record was applied to.
type UsageResponse struct {
	Updated []UpdatedBudget    `json:"updated"`
	Errors  []budget.ItemError `json:"errors"`
}

// UpdatedBudget is one budget's new total.
type UpdatedBudget struct {
	BudgetID        string          `json:"budget_id"`
	CurrentSpendUSD decimal.Decimal `json:"current_spend_usd"`
}

// RecordUsage handles POST /internal/usage.
func (h *InternalHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req UsageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := logging.WithOwner(r.Context(), req.OwnerID)
	result, err := h.engine.RecordUsage(ctx, req.RequestScope, req.AmountUSD)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := UsageResponse{
		Updated: make([]UpdatedBudget, 0, len(result.Updated)),
		Errors:  result.Errors,
	}
	if resp.Errors == nil {
		resp.Errors = []budget.ItemError{}
	}
	for _, u := range result.Updated {
		resp.Updated = append(resp.Updated, UpdatedBudget{BudgetID: u.Budget.ID, CurrentSpendUSD: u.Total})
	}
	writeJSON(w, http.StatusOK, resp)
}
