package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
)

// MemoryBackend implements Backend using in-memory storage.
// All data is lost when the process exits. It is the default backend for
// development and the reference implementation for tests.
//
// Every mutation happens under a single write lock, which makes
// IncrementSpend and the compare-and-set operations atomic.
type MemoryBackend struct {
	budgets map[string]*budget.Budget
	mu      sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		budgets: make(map[string]*budget.Budget),
	}
}

// Create inserts a copy of b.
func (m *MemoryBackend) Create(ctx context.Context, b *budget.Budget) error {
	if b == nil || b.ID == "" {
		return newError("memory", "create", fmt.Errorf("budget id cannot be empty"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.budgets[b.ID]; exists {
		return ErrAlreadyExists
	}
	m.budgets[b.ID] = b.Clone()
	return nil
}

// Get returns a copy of the stored budget.
func (m *MemoryBackend) Get(ctx context.Context, id string) (*budget.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.budgets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

// List returns copies of all budgets matching the filter.
func (m *MemoryBackend) List(ctx context.Context, filter Filter) ([]*budget.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*budget.Budget, 0, len(m.budgets))
	for _, b := range m.budgets {
		if filter.match(b) {
			out = append(out, b.Clone())
		}
	}
	sortBudgets(out)
	return out, nil
}

// Update overwrites the definition fields of an existing budget.
func (m *MemoryBackend) Update(ctx context.Context, b *budget.Budget, expect Precondition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.budgets[b.ID]
	if !ok {
		return ErrNotFound
	}
	if !expect.holds(cur) {
		return ErrConflict
	}
	cur.Name = b.Name
	cur.Period = b.Period
	cur.LimitUSD = b.LimitUSD
	cur.Scope = b.Scope
	cur.ActionOnBreach = b.ActionOnBreach
	cur.ResetAt = b.ResetAt
	cur.IsActive = b.IsActive
	cur.UpdatedAt = b.UpdatedAt
	return nil
}

// Deactivate clears the active flag.
func (m *MemoryBackend) Deactivate(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.budgets[id]
	if !ok {
		return ErrNotFound
	}
	cur.IsActive = false
	cur.UpdatedAt = at
	return nil
}

// Delete removes the budget.
func (m *MemoryBackend) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.budgets[id]; !ok {
		return ErrNotFound
	}
	delete(m.budgets, id)
	return nil
}

// IncrementSpend adds amount under the write lock.
func (m *MemoryBackend) IncrementSpend(ctx context.Context, id string, amount decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.budgets[id]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	// Round through micros so every backend reports identical totals.
	micros := budget.ToMicros(cur.CurrentSpendUSD) + budget.ToMicros(amount)
	cur.CurrentSpendUSD = budget.FromMicros(micros)
	cur.UpdatedAt = at
	return cur.CurrentSpendUSD, nil
}

// ResetSpend zeroes spend if reset_at still equals expected.
func (m *MemoryBackend) ResetSpend(ctx context.Context, id string, expected, next, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.budgets[id]
	if !ok {
		return false, ErrNotFound
	}
	if !cur.ResetAt.Equal(expected) {
		return false, nil
	}
	cur.CurrentSpendUSD = decimal.Zero
	cur.ResetAt = next
	cur.LastNotifiedBucket = nil
	cur.UpdatedAt = at
	return true, nil
}

// ClaimBucket moves the notified band if it still equals expected.
func (m *MemoryBackend) ClaimBucket(ctx context.Context, id string, expected *int, bucket int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.budgets[id]
	if !ok {
		return false, ErrNotFound
	}
	if !sameBucket(cur.LastNotifiedBucket, expected) {
		return false, nil
	}
	cur.LastNotifiedBucket = &bucket
	cur.UpdatedAt = at
	return true, nil
}

func sameBucket(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Ping always succeeds.
func (m *MemoryBackend) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error {
	return nil
}

// sortBudgets orders budgets by creation time, then ID, so every backend
// lists in the same order.
func sortBudgets(bs []*budget.Budget) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].CreatedAt.Before(bs[j].CreatedAt)
		}
		return bs[i].ID < bs[j].ID
	})
}
