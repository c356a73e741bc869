package period

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/storage"
)

// Config controls how a reset sweep fans out.
type Config struct {
	// Concurrency bounds how many budgets are reset at once.
	// Default: 8
	Concurrency int

	// ItemTimeout bounds the store call for a single budget.
	// Default: 5 seconds
	ItemTimeout time.Duration

	// SweepTimeout bounds the whole sweep.
	// Default: 2 minutes
	SweepTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = 5 * time.Second
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = 2 * time.Minute
	}
	return c
}

// ResetSummary reports the outcome of one reset sweep.
type ResetSummary struct {
	// ResetCount is how many budgets this sweep reset.
	ResetCount int `json:"resetCount"`

	// TotalChecked is how many due budgets were considered.
	TotalChecked int `json:"totalChecked"`

	// Reset lists the IDs this sweep reset.
	Reset []string `json:"reset,omitempty"`

	Errors []budget.ItemError `json:"errors"`
}

// Sweeper resets budgets whose period boundary has elapsed.
type Sweeper struct {
	store  storage.Backend
	config Config
	logger *slog.Logger
}

// NewSweeper creates a reset sweeper over store.
func NewSweeper(store storage.Backend, cfg Config) *Sweeper {
	return &Sweeper{
		store:  store,
		config: cfg.withDefaults(),
		logger: slog.Default().With("component", "budget.period"),
	}
}

// SweepResets zeroes spend on every active budget with reset_at <= now and
// moves its boundary forward.
//
// Each reset is a compare-and-set on the reset_at value that was listed, so
// a concurrent sweep that already moved the boundary makes this one a no-op
// for that budget. Per-budget failures are logged and collected; only a
// failure to list budgets is returned as an error.
func (s *Sweeper) SweepResets(ctx context.Context, now time.Time) (*ResetSummary, error) {
	now = now.UTC()
	ctx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	due, err := s.store.List(ctx, storage.Filter{ActiveOnly: true, DueAt: &now})
	if err != nil {
		return nil, err
	}

	summary := &ResetSummary{
		TotalChecked: len(due),
		Errors:       []budget.ItemError{},
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, b := range due {
		g.Go(func() error {
			applied, err := s.resetOne(gctx, b, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Errors = append(summary.Errors, budget.ItemError{BudgetID: b.ID, Message: err.Error()})
				return nil
			}
			if applied {
				summary.ResetCount++
				summary.Reset = append(summary.Reset, b.ID)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("reset sweep completed",
		"checked", summary.TotalChecked,
		"reset", summary.ResetCount,
		"errors", len(summary.Errors),
	)

	return summary, nil
}

func (s *Sweeper) resetOne(ctx context.Context, b *budget.Budget, now time.Time) (bool, error) {
	next, err := ComputeNextReset(b.Period, now)
	if err != nil {
		s.logger.Error("cannot compute next reset", "budget_id", b.ID, "period", b.Period, "error", err)
		return false, err
	}

	itemCtx, cancel := context.WithTimeout(ctx, s.config.ItemTimeout)
	defer cancel()

	applied, err := s.store.ResetSpend(itemCtx, b.ID, b.ResetAt, next, now)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// Deleted between list and reset.
		return false, nil
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("budget reset timed out", "budget_id", b.ID, "timeout", s.config.ItemTimeout)
		return false, err
	case err != nil:
		s.logger.Error("budget reset failed", "budget_id", b.ID, "error", err)
		return false, err
	}

	if applied {
		s.logger.Debug("budget reset",
			"budget_id", b.ID,
			"owner_id", b.OwnerID,
			"previous_spend", b.CurrentSpendUSD.String(),
			"next_reset", next,
		)
	}
	return applied, nil
}
