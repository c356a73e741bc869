package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/storage"
	"mercator-hq/spendcap/pkg/engine"
	"mercator-hq/spendcap/pkg/telemetry/logging"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// BudgetHandler serves the budget CRUD routes.
type BudgetHandler struct {
	engine *engine.Engine
}

// NewBudgetHandler creates a budget handler.
func NewBudgetHandler(e *engine.Engine) *BudgetHandler {
	return &BudgetHandler{engine: e}
}

// ListResponse is the body of GET /v1/budgets.
type ListResponse struct {
	Budgets []*budget.Budget `json:"budgets"`
}

// CreateRequest is the body of POST /v1/budgets. The scope is given as the
// flat scope and scope_identifier pair, as budgets are returned.
type CreateRequest struct {
	OwnerID        string          `json:"owner_id"`
	Name           string          `json:"name"`
	Period         budget.Period   `json:"period"`
	LimitUSD       decimal.Decimal `json:"limit_usd"`
	ActionOnBreach budget.Action   `json:"action_on_breach"`
	budget.ScopeFields
}

func (req CreateRequest) spec() engine.BudgetSpec {
	return engine.BudgetSpec{
		OwnerID:        req.OwnerID,
		Name:           req.Name,
		Period:         req.Period,
		LimitUSD:       req.LimitUSD,
		Scope:          req.ScopeFields.Scope(),
		ActionOnBreach: req.ActionOnBreach,
	}
}

// PatchRequest is the body of PATCH /v1/budgets/{id}. Omitted fields are
// left alone. Sending scope replaces the whole scope, with scope_identifier
// as its identifier; sending scope_identifier alone keeps the kind.
type PatchRequest struct {
	Name            *string           `json:"name,omitempty"`
	Period          *budget.Period    `json:"period,omitempty"`
	LimitUSD        *decimal.Decimal  `json:"limit_usd,omitempty"`
	Scope           *budget.ScopeKind `json:"scope,omitempty"`
	ScopeIdentifier *string           `json:"scope_identifier,omitempty"`
	ActionOnBreach  *budget.Action    `json:"action_on_breach,omitempty"`
	IsActive        *bool             `json:"is_active,omitempty"`
}

// patch converts the request against the budget's current scope, which is
// only consulted when scope_identifier is sent without scope.
func (req PatchRequest) patch(current budget.Scope) engine.BudgetPatch {
	p := engine.BudgetPatch{
		Name:           req.Name,
		Period:         req.Period,
		LimitUSD:       req.LimitUSD,
		ActionOnBreach: req.ActionOnBreach,
		IsActive:       req.IsActive,
	}
	switch {
	case req.Scope != nil:
		scope := budget.ScopeFields{Kind: *req.Scope, Identifier: req.ScopeIdentifier}.Scope()
		p.Scope = &scope
	case req.ScopeIdentifier != nil:
		scope := budget.NewScope(current.Kind, *req.ScopeIdentifier)
		p.Scope = &scope
	}
	return p
}

// Create handles POST /v1/budgets.
func (h *BudgetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	spec := req.spec()

	ctx := logging.WithOwner(r.Context(), spec.OwnerID)
	b, err := h.engine.CreateBudget(ctx, spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// List handles GET /v1/budgets?owner_id=&active=.
func (h *BudgetHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := storage.Filter{OwnerID: r.URL.Query().Get("owner_id")}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "active must be true or false")
			return
		}
		filter.ActiveOnly = active
	}

	budgets, err := h.engine.ListBudgets(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if budgets == nil {
		budgets = []*budget.Budget{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Budgets: budgets})
}

// Get handles GET /v1/budgets/{id}.
func (h *BudgetHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.GetBudget(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Update handles PATCH /v1/budgets/{id}.
func (h *BudgetHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req PatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	patch := req.patch(budget.Scope{})
	if req.Scope == nil && req.ScopeIdentifier != nil {
		current, err := h.engine.GetBudget(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch = req.patch(current.Scope)
	}

	b, err := h.engine.UpdateBudget(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Deactivate handles POST /v1/budgets/{id}/deactivate.
func (h *BudgetHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.DeactivateBudget(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Delete handles DELETE /v1/budgets/{id}.
func (h *BudgetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteBudget(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes a JSON body into v, rejecting unknown fields. It
// writes the error response and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
