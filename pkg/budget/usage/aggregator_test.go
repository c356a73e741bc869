package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/storage"
)

func create(t *testing.T, store storage.Backend, id, owner string, scope budget.Scope, active bool) {
	t.Helper()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	b := &budget.Budget{
		ID:             id,
		OwnerID:        owner,
		Name:           id,
		Period:         budget.PeriodMonthly,
		LimitUSD:       decimal.NewFromInt(100),
		Scope:          scope,
		ActionOnBreach: budget.ActionAlert,
		ResetAt:        now.AddDate(0, 1, 0),
		IsActive:       active,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.Create(context.Background(), b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
}

func spendOf(t *testing.T, store storage.Backend, id string) decimal.Decimal {
	t.Helper()
	b, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return b.CurrentSpendUSD
}

func TestRecordSpend_ScopeIsolation(t *testing.T) {
	store := storage.NewMemoryBackend()
	create(t, store, "global", "acct-1", budget.GlobalScope(), true)
	create(t, store, "gpt4o", "acct-1", budget.ModelScope("gpt-4o"), true)
	create(t, store, "opus", "acct-1", budget.ModelScope("claude-3-opus"), true)
	create(t, store, "agent", "acct-1", budget.AgentScope("support-bot"), true)
	create(t, store, "other-owner", "acct-2", budget.GlobalScope(), true)
	create(t, store, "inactive", "acct-1", budget.GlobalScope(), false)

	agg := NewAggregator(store)
	result, err := agg.RecordSpend(context.Background(), budget.RequestScope{OwnerID: "acct-1", Model: "gpt-4o"}, decimal.RequireFromString("1.75"))
	if err != nil {
		t.Fatalf("RecordSpend failed: %v", err)
	}
	if len(result.Updated) != 2 {
		t.Errorf("Expected 2 budgets updated, got %d", len(result.Updated))
	}

	want := map[string]string{
		"global":      "1.75",
		"gpt4o":       "1.75",
		"opus":        "0",
		"agent":       "0",
		"other-owner": "0",
		"inactive":    "0",
	}
	for id, amount := range want {
		if got := spendOf(t, store, id); !got.Equal(decimal.RequireFromString(amount)) {
			t.Errorf("%s: expected spend %s, got %s", id, amount, got)
		}
	}
}

func TestRecordSpend_IdentifiersAreCaseSensitive(t *testing.T) {
	store := storage.NewMemoryBackend()
	create(t, store, "wf", "acct-1", budget.WorkflowScope("Nightly-ETL"), true)

	agg := NewAggregator(store)
	if _, err := agg.RecordSpend(context.Background(), budget.RequestScope{OwnerID: "acct-1", WorkflowID: "nightly-etl"}, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("RecordSpend failed: %v", err)
	}
	if got := spendOf(t, store, "wf"); !got.IsZero() {
		t.Errorf("Expected no spend on case-mismatched workflow, got %s", got)
	}
}

func TestRecordSpend_ReturnsNewTotals(t *testing.T) {
	store := storage.NewMemoryBackend()
	create(t, store, "global", "acct-1", budget.GlobalScope(), true)
	agg := NewAggregator(store)
	req := budget.RequestScope{OwnerID: "acct-1"}

	var last *Result
	for _, amount := range []string{"4", "4", "3"} {
		var err error
		last, err = agg.RecordSpend(context.Background(), req, decimal.RequireFromString(amount))
		if err != nil {
			t.Fatalf("RecordSpend failed: %v", err)
		}
	}

	if len(last.Updated) != 1 {
		t.Fatalf("Expected 1 budget updated, got %d", len(last.Updated))
	}
	if !last.Updated[0].Total.Equal(decimal.NewFromInt(11)) {
		t.Errorf("Expected total 11, got %s", last.Updated[0].Total)
	}
	if !last.Updated[0].Budget.CurrentSpendUSD.Equal(decimal.NewFromInt(11)) {
		t.Errorf("Expected budget copy to carry total 11, got %s", last.Updated[0].Budget.CurrentSpendUSD)
	}
}

func TestRecordSpend_InvalidInput(t *testing.T) {
	agg := NewAggregator(storage.NewMemoryBackend())

	_, err := agg.RecordSpend(context.Background(), budget.RequestScope{OwnerID: "acct-1"}, decimal.NewFromInt(-1))
	if !errors.Is(err, budget.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}

	_, err = agg.RecordSpend(context.Background(), budget.RequestScope{}, decimal.NewFromInt(1))
	if !errors.Is(err, budget.ErrMissingOwner) {
		t.Errorf("Expected ErrMissingOwner, got %v", err)
	}
}

func TestRecordSpend_ZeroIsNoop(t *testing.T) {
	store := storage.NewMemoryBackend()
	create(t, store, "global", "acct-1", budget.GlobalScope(), true)

	result, err := NewAggregator(store).RecordSpend(context.Background(), budget.RequestScope{OwnerID: "acct-1"}, decimal.Zero)
	if err != nil {
		t.Fatalf("RecordSpend failed: %v", err)
	}
	if len(result.Updated) != 0 {
		t.Errorf("Expected nothing updated, got %d", len(result.Updated))
	}
}

func TestRecordSpend_Concurrent(t *testing.T) {
	store := storage.NewMemoryBackend()
	create(t, store, "global", "acct-1", budget.GlobalScope(), true)
	create(t, store, "model", "acct-1", budget.ModelScope("gpt-4o"), true)
	agg := NewAggregator(store)
	req := budget.RequestScope{OwnerID: "acct-1", Model: "gpt-4o"}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := agg.RecordSpend(context.Background(), req, decimal.RequireFromString("0.25")); err != nil {
				t.Errorf("RecordSpend failed: %v", err)
			}
		}()
	}
	wg.Wait()

	for _, id := range []string{"global", "model"} {
		if got := spendOf(t, store, id); !got.Equal(decimal.NewFromInt(25)) {
			t.Errorf("%s: expected spend 25, got %s", id, got)
		}
	}
}

// failingStore fails IncrementSpend for one budget.
type failingStore struct {
	storage.Backend
	failID string
}

func (f *failingStore) IncrementSpend(ctx context.Context, id string, amount decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	if id == f.failID {
		return decimal.Zero, errors.New("write timeout")
	}
	return f.Backend.IncrementSpend(ctx, id, amount, at)
}

func TestRecordSpend_PartialFailure(t *testing.T) {
	mem := storage.NewMemoryBackend()
	create(t, mem, "global", "acct-1", budget.GlobalScope(), true)
	create(t, mem, "model", "acct-1", budget.ModelScope("gpt-4o"), true)

	agg := NewAggregator(&failingStore{Backend: mem, failID: "global"})
	result, err := agg.RecordSpend(context.Background(), budget.RequestScope{OwnerID: "acct-1", Model: "gpt-4o"}, decimal.NewFromInt(2))
	if err != nil {
		t.Fatalf("RecordSpend failed: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].BudgetID != "global" {
		t.Errorf("Expected one error for global, got %v", result.Errors)
	}
	if got := spendOf(t, mem, "model"); !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected model budget incremented despite failure, got %s", got)
	}
}
