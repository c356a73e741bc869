// Package usage records request cost against matching budgets.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/storage"
)

// BudgetSpend is one budget updated by a RecordSpend call. Budget is a copy
// with CurrentSpendUSD set to the total returned by the store.
type BudgetSpend struct {
	Budget *budget.Budget
	Total  decimal.Decimal
}

// Result reports what a RecordSpend call changed.
type Result struct {
	Updated []BudgetSpend
	Errors  []budget.ItemError
}

// Aggregator applies the cost of completed requests to every budget whose
// scope matches the request.
type Aggregator struct {
	store  storage.Backend
	now    func() time.Time
	logger *slog.Logger
}

// NewAggregator creates an aggregator writing through store.
func NewAggregator(store storage.Backend) *Aggregator {
	return &Aggregator{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "budget.usage"),
	}
}

// RecordSpend adds amount to each active budget of req.OwnerID whose scope
// matches req. A request can match several budgets, for example a global
// budget and a model budget; each is incremented independently with an
// atomic store-level add.
//
// Zero amounts are a no-op. Negative amounts return ErrInvalidAmount.
// A failure on one budget does not stop the others and is reported in
// Result.Errors.
func (a *Aggregator) RecordSpend(ctx context.Context, req budget.RequestScope, amount decimal.Decimal) (*Result, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", budget.ErrInvalidAmount, amount)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	if amount.IsZero() {
		return result, nil
	}

	candidates, err := a.store.List(ctx, storage.Filter{OwnerID: req.OwnerID, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}

	now := a.now().UTC()
	for _, b := range candidates {
		if !b.Applies(req) {
			continue
		}

		total, err := a.store.IncrementSpend(ctx, b.ID, amount, now)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			a.logger.Error("failed to record spend",
				"budget_id", b.ID,
				"owner_id", req.OwnerID,
				"amount", amount.String(),
				"error", err,
			)
			result.Errors = append(result.Errors, budget.ItemError{BudgetID: b.ID, Message: err.Error()})
			continue
		}

		updated := b.Clone()
		updated.CurrentSpendUSD = total
		updated.UpdatedAt = now
		result.Updated = append(result.Updated, BudgetSpend{Budget: updated, Total: total})
	}

	a.logger.Debug("spend recorded",
		"owner_id", req.OwnerID,
		"scope", req.String(),
		"amount", amount.String(),
		"budgets", len(result.Updated),
	)

	return result, nil
}
