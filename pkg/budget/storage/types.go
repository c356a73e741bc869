package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
)

// Backend defines the interface for budget persistence.
// Implementations must be thread-safe and support concurrent access.
//
// Spend is only ever changed through IncrementSpend and ResetSpend, both of
// which are single atomic operations at the store level. Update never
// touches spend or alert state, and the notified band is only moved by the
// ResetSpend and ClaimBucket compare-and-sets, so several processes may
// share one store.
type Backend interface {
	// Create inserts a new budget. Returns ErrAlreadyExists if the ID is taken.
	Create(ctx context.Context, b *budget.Budget) error

	// Get returns the budget with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*budget.Budget, error)

	// List returns budgets matching the filter ordered by creation time.
	List(ctx context.Context, filter Filter) ([]*budget.Budget, error)

	// Update persists the mutable definition of a budget: name, period,
	// limit, scope, breach action, reset boundary and active flag. The write
	// only happens while the stored reset boundary and active flag still
	// match expect; otherwise it returns ErrConflict.
	Update(ctx context.Context, b *budget.Budget, expect Precondition) error

	// Deactivate soft-deletes a budget by clearing its active flag.
	Deactivate(ctx context.Context, id string, at time.Time) error

	// Delete removes the budget row entirely.
	Delete(ctx context.Context, id string) error

	// IncrementSpend atomically adds amount to the current spend and returns
	// the new total.
	IncrementSpend(ctx context.Context, id string, amount decimal.Decimal, at time.Time) (decimal.Decimal, error)

	// ResetSpend zeroes spend, moves reset_at to next and clears the
	// notified bucket, but only if reset_at still equals expected. It
	// reports whether the reset was applied.
	ResetSpend(ctx context.Context, id string, expected, next, at time.Time) (bool, error)

	// ClaimBucket records bucket as the band most recently alerted on, but
	// only if the stored band still equals expected (nil meaning none). It
	// reports whether this caller won the claim.
	ClaimBucket(ctx context.Context, id string, expected *int, bucket int, at time.Time) (bool, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// Precondition is the stored state an Update was computed from.
type Precondition struct {
	ResetAt  time.Time
	IsActive bool
}

// PreconditionOf returns the precondition matching b as it was read.
func PreconditionOf(b *budget.Budget) Precondition {
	return Precondition{ResetAt: b.ResetAt, IsActive: b.IsActive}
}

func (p Precondition) holds(b *budget.Budget) bool {
	return b.ResetAt.Equal(p.ResetAt) && b.IsActive == p.IsActive
}

// Filter narrows List results. Zero values do not filter.
type Filter struct {
	// OwnerID restricts results to one account.
	OwnerID string

	// ActiveOnly excludes deactivated budgets.
	ActiveOnly bool

	// DueAt, when set, keeps only budgets with reset_at <= DueAt.
	DueAt *time.Time
}

// match applies the filter in memory. Backends that cannot push a predicate
// down to the store use it after loading.
func (f Filter) match(b *budget.Budget) bool {
	if f.OwnerID != "" && b.OwnerID != f.OwnerID {
		return false
	}
	if f.ActiveOnly && !b.IsActive {
		return false
	}
	if f.DueAt != nil && b.ResetAt.After(*f.DueAt) {
		return false
	}
	return true
}

var (
	// ErrNotFound is returned when no budget has the requested ID.
	ErrNotFound = errors.New("budget not found")

	// ErrAlreadyExists is returned when creating a budget whose ID is taken.
	ErrAlreadyExists = errors.New("budget already exists")

	// ErrConflict is returned when a conditional write finds the budget
	// changed since it was read.
	ErrConflict = errors.New("budget was modified concurrently")
)

// Error describes a failed backend operation.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s storage: %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(backend, op string, err error) error {
	return &Error{Backend: backend, Op: op, Err: err}
}

func encodeTime(t time.Time) int64 {
	return t.UnixNano()
}

func decodeTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
