package enforcement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/storage"
	"mercator-hq/spendcap/pkg/budget/threshold"
)

// entry is the cached state of one active budget.
type entry struct {
	budget *budget.Budget
	status threshold.Status
}

// snapshot is an immutable view of all active budgets, indexed by owner.
// Writers build a new snapshot and swap it in.
type snapshot struct {
	byID     map[string]*entry
	byOwner  map[string][]*entry
	loadedAt time.Time
}

func newSnapshot(entries map[string]*entry, loadedAt time.Time) *snapshot {
	s := &snapshot{
		byID:     entries,
		byOwner:  make(map[string][]*entry),
		loadedAt: loadedAt,
	}
	for _, e := range entries {
		s.byOwner[e.budget.OwnerID] = append(s.byOwner[e.budget.OwnerID], e)
	}
	return s
}

func newEntry(b *budget.Budget) *entry {
	return &entry{budget: b, status: threshold.Evaluate(b)}
}

// Gate answers allow/block/downgrade for requests from a cached snapshot of
// budget severity. Check never touches the store once a snapshot has been
// loaded; the snapshot is reloaded in the background and patched after each
// spend update.
type Gate struct {
	store    storage.Backend
	enforcer atomic.Pointer[Enforcer]
	current  atomic.Pointer[snapshot]

	// writeMu serializes snapshot writers. Readers never take it.
	writeMu sync.Mutex

	// interval carries a changed RefreshInterval to the Start loop.
	// configMu serializes SetConfig so the latest interval always lands.
	interval chan time.Duration
	configMu sync.Mutex

	now    func() time.Time
	logger *slog.Logger
}

// NewGate creates a gate over store. Call Refresh or Start before serving.
func NewGate(store storage.Backend, cfg Config) *Gate {
	g := &Gate{
		store:    store,
		interval: make(chan time.Duration, 1),
		now:      time.Now,
		logger:   slog.Default().With("component", "budget.enforcement"),
	}
	g.enforcer.Store(NewEnforcer(cfg))
	return g
}

// SetConfig swaps the enforcement configuration. Safe to call while
// serving. A changed RefreshInterval takes effect at once in a running
// Start loop.
func (g *Gate) SetConfig(cfg Config) {
	g.configMu.Lock()
	defer g.configMu.Unlock()

	next := NewEnforcer(cfg)
	prev := g.enforcer.Swap(next)
	if d := next.Config().RefreshInterval; prev == nil || prev.Config().RefreshInterval != d {
		// Keep only the latest interval if Start has not picked one up yet.
		select {
		case <-g.interval:
		default:
		}
		g.interval <- d
	}
	g.logger.Info("enforcement config updated",
		"failure_mode", cfg.FailureMode,
		"default_downgrade_model", cfg.DefaultDowngradeModel,
		"model_downgrades", len(cfg.ModelDowngrades),
	)
}

// Config returns the active configuration.
func (g *Gate) Config() Config {
	return g.enforcer.Load().Config()
}

// Check decides whether a request with the given attributes may proceed.
//
// If no snapshot has ever been loaded, Check loads one using ctx. If that
// fails, or the snapshot is older than MaxStaleness, the decision follows
// the configured FailureMode and is marked Degraded.
func (g *Gate) Check(ctx context.Context, req budget.RequestScope) Decision {
	enforcer := g.enforcer.Load()

	snap := g.current.Load()
	if snap == nil {
		if err := g.Refresh(ctx); err != nil {
			g.logger.Error("budget snapshot unavailable", "error", err, "failure_mode", enforcer.Config().FailureMode)
			return enforcer.Degraded("budget state unavailable")
		}
		snap = g.current.Load()
	}

	if age := g.now().Sub(snap.loadedAt); age > enforcer.Config().MaxStaleness {
		g.logger.Warn("budget snapshot stale", "age", age, "failure_mode", enforcer.Config().FailureMode)
		return enforcer.Degraded(fmt.Sprintf("budget state stale (%s old)", age.Round(time.Second)))
	}

	var statuses []BudgetStatus
	for _, e := range snap.byOwner[req.OwnerID] {
		if !e.budget.Applies(req) {
			continue
		}
		statuses = append(statuses, BudgetStatus{
			BudgetID:    e.budget.ID,
			Severity:    e.status.Severity,
			PercentUsed: e.status.PercentUsed,
			Action:      e.budget.ActionOnBreach,
		})
	}

	return enforcer.Decide(statuses, req.Model)
}

// Refresh reloads every active budget from the store.
//
// Spend only grows within a period, so when a cached entry for the same
// reset boundary carries a higher total than the reloaded row (an Observe
// that landed after the read), the higher total is kept.
func (g *Gate) Refresh(ctx context.Context) error {
	budgets, err := g.store.List(ctx, storage.Filter{ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("failed to load budgets: %w", err)
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	prev := g.current.Load()
	entries := make(map[string]*entry, len(budgets))
	for _, b := range budgets {
		if prev != nil {
			keepHigherSpend(b, prev.byID[b.ID])
		}
		entries[b.ID] = newEntry(b)
	}

	g.current.Store(newSnapshot(entries, g.now()))
	return nil
}

// Observe patches the snapshot with fresh copies of budgets, typically the
// totals returned by a spend update. Inactive budgets are removed.
func (g *Gate) Observe(budgets ...*budget.Budget) {
	if len(budgets) == 0 {
		return
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	prev := g.current.Load()
	if prev == nil {
		// Nothing loaded yet; the first Refresh will include these.
		return
	}

	entries := make(map[string]*entry, len(prev.byID)+len(budgets))
	for id, e := range prev.byID {
		entries[id] = e
	}
	for _, b := range budgets {
		if !b.IsActive {
			delete(entries, b.ID)
			continue
		}
		b = b.Clone()
		keepHigherSpend(b, entries[b.ID])
		entries[b.ID] = newEntry(b)
	}

	g.current.Store(newSnapshot(entries, prev.loadedAt))
}

// keepHigherSpend raises b's spend to old's when both belong to the same
// period.
func keepHigherSpend(b *budget.Budget, old *entry) {
	if old == nil || !old.budget.ResetAt.Equal(b.ResetAt) {
		return
	}
	if old.budget.CurrentSpendUSD.GreaterThan(b.CurrentSpendUSD) {
		b.CurrentSpendUSD = old.budget.CurrentSpendUSD
	}
}

// Forget removes a budget from the snapshot.
func (g *Gate) Forget(id string) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	prev := g.current.Load()
	if prev == nil {
		return
	}
	if _, ok := prev.byID[id]; !ok {
		return
	}

	entries := make(map[string]*entry, len(prev.byID))
	for k, e := range prev.byID {
		if k != id {
			entries[k] = e
		}
	}
	g.current.Store(newSnapshot(entries, prev.loadedAt))
}

// LoadedAt reports when the snapshot was last reloaded from the store. The
// zero time means never.
func (g *Gate) LoadedAt() time.Time {
	if snap := g.current.Load(); snap != nil {
		return snap.loadedAt
	}
	return time.Time{}
}

// Start refreshes the snapshot every RefreshInterval until ctx is done.
// The first refresh happens immediately. The ticker follows interval
// changes made through SetConfig.
func (g *Gate) Start(ctx context.Context) {
	if err := g.Refresh(ctx); err != nil {
		g.logger.Warn("initial budget snapshot failed", "error", err)
	}

	go func() {
		ticker := time.NewTicker(g.Config().RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := g.Refresh(ctx); err != nil {
					g.logger.Warn("budget snapshot refresh failed", "error", err)
				}
			case d := <-g.interval:
				ticker.Reset(d)
				g.logger.Info("budget snapshot refresh interval changed", "interval", d)
			case <-ctx.Done():
				return
			}
		}
	}()
}
