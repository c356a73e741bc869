package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/alerts"
	"mercator-hq/spendcap/pkg/budget/enforcement"
	"mercator-hq/spendcap/pkg/budget/period"
	"mercator-hq/spendcap/pkg/budget/storage"
	"mercator-hq/spendcap/pkg/budget/threshold"
	"mercator-hq/spendcap/pkg/budget/usage"
	"mercator-hq/spendcap/pkg/telemetry/tracing"
)

// Engine coordinates budget definitions, spend recording, period resets,
// breach notifications and enforcement over a single store.
//
// The Engine is the primary interface for the service. It orchestrates the
// usage aggregator, the period sweeper, the threshold evaluator, the alert
// dispatcher and the enforcement gate, and keeps the gate snapshot in step
// with every write it makes.
//
// # Example
//
//	eng := engine.New(store, engine.Config{
//	    Enforcement: enforcement.Config{DefaultDowngradeModel: "gpt-4o-mini"},
//	}, engine.WithDispatcher(dispatcher))
//
//	// Before forwarding a request
//	decision := eng.Check(ctx, budget.RequestScope{OwnerID: "acct-1", Model: "gpt-4o"})
//	if !decision.Allowed {
//	    // Reject
//	}
//
//	// After the request completes
//	_, err := eng.RecordUsage(ctx, scope, cost)
type Engine struct {
	store      storage.Backend
	aggregator *usage.Aggregator
	sweeper    *period.Sweeper
	gate       *enforcement.Gate
	dispatcher *alerts.Dispatcher
	metrics    *Metrics

	config Config

	// inlineSlots bounds concurrent inline evaluations; inline tracks them
	// so Wait can drain them.
	inlineSlots chan struct{}
	inline      sync.WaitGroup

	tracer trace.Tracer
	now    func() time.Time
	logger *slog.Logger
}

// Config contains configuration for the engine.
type Config struct {
	// Sweep bounds reset and breach sweeps.
	Sweep period.Config

	// Enforcement configures the gate.
	Enforcement enforcement.Config

	// InlineEvaluation runs breach detection for the budgets touched by each
	// usage record in addition to the periodic sweep. It runs in the
	// background and never delays RecordUsage.
	InlineEvaluation bool

	// InlineConcurrency caps background inline evaluations. Usage records
	// arriving while all slots are busy are left to the next sweep.
	// Default: 8
	InlineConcurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithDispatcher enables threshold notifications. Without a dispatcher,
// breach sweeps count crossings but neither notify nor record them.
func WithDispatcher(d *alerts.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithMetrics registers engine metrics with registry.
func WithMetrics(namespace string, registry prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = NewMetrics(namespace, registry)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine over store. The caller owns store and closes it
// after the engine is no longer used.
func New(store storage.Backend, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		aggregator: usage.NewAggregator(store),
		sweeper:    period.NewSweeper(store, cfg.Sweep),
		gate:       enforcement.NewGate(store, cfg.Enforcement),
		config:     cfg,
		tracer:     otel.Tracer(tracing.InstrumentationName),
		now:        time.Now,
		logger:     slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	slots := cfg.InlineConcurrency
	if slots <= 0 {
		slots = 8
	}
	e.inlineSlots = make(chan struct{}, slots)
	if e.metrics == nil {
		e.metrics = NewMetrics("spendcap", prometheus.NewRegistry())
	}
	return e
}

// Gate returns the enforcement gate.
func (e *Engine) Gate() *enforcement.Gate {
	return e.gate
}

// Store returns the budget store.
func (e *Engine) Store() storage.Backend {
	return e.store
}

// Start loads the gate snapshot and keeps it refreshed until ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.gate.Start(ctx)
}

// Wait blocks until background inline evaluations have finished.
func (e *Engine) Wait() {
	e.inline.Wait()
}

// BudgetSpec is the caller-supplied definition of a new budget.
type BudgetSpec struct {
	OwnerID        string
	Name           string
	Period         budget.Period
	LimitUSD       decimal.Decimal
	Scope          budget.Scope
	ActionOnBreach budget.Action
}

// BudgetPatch changes the definition of an existing budget. Nil fields are
// left alone. Spend and alert state cannot be patched.
type BudgetPatch struct {
	Name           *string
	Period         *budget.Period
	LimitUSD       *decimal.Decimal
	Scope          *budget.Scope
	ActionOnBreach *budget.Action
	IsActive       *bool
}

// CreateBudget validates spec and persists a new active budget with zero
// spend and reset_at at the next period boundary.
func (e *Engine) CreateBudget(ctx context.Context, spec BudgetSpec) (*budget.Budget, error) {
	now := e.now().UTC()

	b := &budget.Budget{
		ID:              uuid.NewString(),
		OwnerID:         spec.OwnerID,
		Name:            spec.Name,
		Period:          spec.Period,
		LimitUSD:        spec.LimitUSD,
		Scope:           spec.Scope,
		ActionOnBreach:  spec.ActionOnBreach,
		CurrentSpendUSD: decimal.Zero,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := budget.Validate(b); err != nil {
		return nil, err
	}
	b.ResetAt = period.MustComputeNextReset(b.Period, now)

	if err := e.store.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create budget: %w", err)
	}
	e.gate.Observe(b)

	e.logger.Info("budget created",
		"budget_id", b.ID,
		"owner_id", b.OwnerID,
		"scope", b.Scope.String(),
		"limit_usd", b.LimitUSD.StringFixed(2),
		"period", b.Period,
	)
	return b, nil
}

// GetBudget returns the budget with the given ID.
func (e *Engine) GetBudget(ctx context.Context, id string) (*budget.Budget, error) {
	return e.store.Get(ctx, id)
}

// ListBudgets returns budgets matching filter.
func (e *Engine) ListBudgets(ctx context.Context, filter storage.Filter) ([]*budget.Budget, error) {
	return e.store.List(ctx, filter)
}

// maxUpdateAttempts bounds how often UpdateBudget re-reads a budget that
// changed underneath it.
const maxUpdateAttempts = 3

// UpdateBudget applies patch to the budget with the given ID.
//
// Changing the period moves reset_at to the next boundary of the new period
// without touching spend. The patched budget is validated as a whole before
// anything is written. The write is conditional on the reset boundary and
// active flag that were read; if a reset or deactivation lands in between,
// the patch is re-applied to the fresh state, and storage.ErrConflict is
// returned once the attempts run out.
func (e *Engine) UpdateBudget(ctx context.Context, id string, patch BudgetPatch) (*budget.Budget, error) {
	var err error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var b *budget.Budget
		b, err = e.updateOnce(ctx, id, patch)
		if err == nil {
			if b.IsActive {
				e.gate.Observe(b)
			} else {
				e.gate.Forget(b.ID)
				e.metrics.ForgetBudget(b.ID, b.OwnerID)
			}
			e.logger.Info("budget updated", "budget_id", b.ID, "owner_id", b.OwnerID)
			return b, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		e.logger.Debug("budget changed during update, retrying", "budget_id", id, "attempt", attempt+1)
	}
	return nil, err
}

func (e *Engine) updateOnce(ctx context.Context, id string, patch BudgetPatch) (*budget.Budget, error) {
	b, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expect := storage.PreconditionOf(b)
	now := e.now().UTC()

	if patch.Name != nil {
		b.Name = *patch.Name
	}
	if patch.Period != nil && *patch.Period != b.Period {
		b.Period = *patch.Period
		if next, err := period.ComputeNextReset(b.Period, now); err == nil {
			b.ResetAt = next
		}
	}
	if patch.LimitUSD != nil {
		b.LimitUSD = *patch.LimitUSD
	}
	if patch.Scope != nil {
		b.Scope = *patch.Scope
	}
	if patch.ActionOnBreach != nil {
		b.ActionOnBreach = *patch.ActionOnBreach
	}
	if patch.IsActive != nil {
		b.IsActive = *patch.IsActive
	}
	b.UpdatedAt = now

	if err := budget.Validate(b); err != nil {
		return nil, err
	}
	if err := e.store.Update(ctx, b, expect); err != nil {
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update budget: %w", err)
	}
	return b, nil
}

// DeactivateBudget soft-deletes a budget. It stops counting and enforcing
// immediately but stays readable.
func (e *Engine) DeactivateBudget(ctx context.Context, id string) (*budget.Budget, error) {
	if err := e.store.Deactivate(ctx, id, e.now().UTC()); err != nil {
		return nil, err
	}
	e.gate.Forget(id)

	b, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.metrics.ForgetBudget(b.ID, b.OwnerID)

	e.logger.Info("budget deactivated", "budget_id", id, "owner_id", b.OwnerID)
	return b, nil
}

// DeleteBudget removes a budget permanently.
func (e *Engine) DeleteBudget(ctx context.Context, id string) error {
	b, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	e.gate.Forget(id)
	e.metrics.ForgetBudget(b.ID, b.OwnerID)

	e.logger.Info("budget deleted", "budget_id", id, "owner_id", b.OwnerID)
	return nil
}

// RecordUsage adds the cost of a completed request to every matching
// budget and patches the gate snapshot with the new totals. With inline
// evaluation enabled the touched budgets are also checked for crossings.
//
// Per-budget failures are reported in the result; an error is only
// returned when the request itself is invalid or budgets cannot be listed.
func (e *Engine) RecordUsage(ctx context.Context, req budget.RequestScope, amount decimal.Decimal) (*usage.Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.record_usage",
		trace.WithAttributes(
			tracing.AttrOwnerID.String(req.OwnerID),
			tracing.AttrModel.String(req.Model),
			tracing.AttrAmount.String(amount.String()),
		),
	)
	defer span.End()

	result, err := e.aggregator.RecordSpend(ctx, req, amount)
	if err != nil {
		e.metrics.RecordUsageError()
		tracing.SetStatus(span, err)
		return nil, err
	}

	updated := make([]*budget.Budget, 0, len(result.Updated))
	for _, u := range result.Updated {
		updated = append(updated, u.Budget)
		e.recordUsageRatio(u.Budget)
	}
	e.gate.Observe(updated...)
	e.metrics.RecordUsage(amount, len(result.Updated), len(result.Errors))

	span.SetAttributes(
		attribute.Int("budget.usage.updated", len(result.Updated)),
		tracing.AttrErrors.Int(len(result.Errors)),
	)

	if e.config.InlineEvaluation && len(updated) > 0 {
		e.startInline(ctx, updated)
	}

	return result, nil
}

// Check decides whether a request may proceed. It never blocks on the
// store once the gate snapshot is loaded.
func (e *Engine) Check(ctx context.Context, req budget.RequestScope) enforcement.Decision {
	start := time.Now()
	decision := e.gate.Check(ctx, req)
	e.metrics.RecordDecision(decision, time.Since(start))

	if decision.Action != enforcement.ActionAllow {
		e.logger.Info("enforcement action",
			"owner_id", req.OwnerID,
			"model", req.Model,
			"action", decision.Action,
			"budget_id", decision.BudgetID,
			"target_model", decision.TargetModel,
			"degraded", decision.Degraded,
		)
	}
	return decision
}

// ResetSweep resets every budget whose period boundary has passed and
// reloads the gate snapshot when anything changed.
func (e *Engine) ResetSweep(ctx context.Context) (*period.ResetSummary, error) {
	ctx, span := e.tracer.Start(ctx, "engine.reset_sweep")
	defer span.End()

	start := time.Now()
	summary, err := e.sweeper.SweepResets(ctx, e.now())
	if err != nil {
		e.metrics.RecordSweep("reset", err, 0, time.Since(start))
		tracing.SetStatus(span, err)
		return nil, fmt.Errorf("reset sweep failed: %w", err)
	}
	e.metrics.RecordSweep("reset", nil, len(summary.Errors), time.Since(start))
	e.metrics.RecordResets(summary.ResetCount)

	span.SetAttributes(
		tracing.AttrChecked.Int(summary.TotalChecked),
		tracing.AttrErrors.Int(len(summary.Errors)),
		attribute.Int("budget.sweep.reset", summary.ResetCount),
	)

	if summary.ResetCount > 0 {
		if err := e.gate.Refresh(ctx); err != nil {
			e.logger.Warn("gate refresh after reset sweep failed", "error", err)
		}
	}
	return summary, nil
}

// BreachSummary reports the outcome of one breach-check sweep.
type BreachSummary struct {
	// TotalBudgets is the number of active budgets evaluated.
	TotalBudgets int `json:"totalBudgets"`

	// ExceededCount, CriticalCount and WarningCount count evaluated budgets
	// by their current severity.
	ExceededCount int `json:"exceededCount"`
	CriticalCount int `json:"criticalCount"`
	WarningCount  int `json:"warningCount"`

	// AffectedOwners is the number of distinct owners with new crossings.
	AffectedOwners int `json:"affectedOwners"`

	NotificationsSent   int `json:"notificationsSent"`
	NotificationsFailed int `json:"notificationsFailed"`

	Errors []budget.ItemError `json:"errors"`
}

// BreachCheck evaluates every active budget, notifies owners of new
// crossings and records the notified band of each so the next sweep stays
// silent unless a budget moves into a higher band or recovers. Several
// sweeps may run at once, in this process or others sharing the store.
func (e *Engine) BreachCheck(ctx context.Context) (*BreachSummary, error) {
	ctx, span := e.tracer.Start(ctx, "engine.breach_check")
	defer span.End()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.sweepTimeout())
	defer cancel()

	budgets, err := e.store.List(ctx, storage.Filter{ActiveOnly: true})
	if err != nil {
		e.metrics.RecordSweep("breach", err, 0, time.Since(start))
		tracing.SetStatus(span, err)
		return nil, fmt.Errorf("breach check failed: %w", err)
	}

	summary := &BreachSummary{
		TotalBudgets: len(budgets),
		Errors:       []budget.ItemError{},
	}
	for _, b := range budgets {
		e.recordUsageRatio(b)
		switch threshold.Classify(b.CurrentSpendUSD, b.LimitUSD) {
		case budget.SeverityExceeded:
			summary.ExceededCount++
		case budget.SeverityCritical:
			summary.CriticalCount++
		case budget.SeverityWarning:
			summary.WarningCount++
		}
	}

	e.notify(ctx, budgets, summary)

	e.metrics.RecordSweep("breach", nil, len(summary.Errors), time.Since(start))
	span.SetAttributes(
		tracing.AttrChecked.Int(summary.TotalBudgets),
		tracing.AttrErrors.Int(len(summary.Errors)),
		attribute.Int("budget.alerts.sent", summary.NotificationsSent),
	)

	e.logger.Info("breach check completed",
		"budgets", summary.TotalBudgets,
		"exceeded", summary.ExceededCount,
		"critical", summary.CriticalCount,
		"warning", summary.WarningCount,
		"sent", summary.NotificationsSent,
		"failed", summary.NotificationsFailed,
		"errors", len(summary.Errors),
	)
	return summary, nil
}

// startInline evaluates touched budgets in the background. The evaluation
// outlives the request context but is bounded by the sweep timeout. When
// every slot is busy the budgets are left to the next breach sweep.
func (e *Engine) startInline(ctx context.Context, touched []*budget.Budget) {
	select {
	case e.inlineSlots <- struct{}{}:
	default:
		e.metrics.RecordInlineSkipped()
		e.logger.Debug("inline evaluation skipped, all slots busy", "budgets", len(touched))
		return
	}

	ids := make([]string, len(touched))
	for i, b := range touched {
		ids[i] = b.ID
	}

	e.inline.Add(1)
	go func() {
		defer e.inline.Done()
		defer func() { <-e.inlineSlots }()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sweepTimeout())
		defer cancel()
		e.evaluateInline(ctx, ids)
	}()
}

// evaluateInline runs crossing detection for budgets just touched by a
// usage record. The budgets are re-read so that the notified band is the
// one persisted by any sweep that ran since the aggregator listed them.
func (e *Engine) evaluateInline(ctx context.Context, ids []string) {
	current := make([]*budget.Budget, 0, len(ids))
	for _, id := range ids {
		b, err := e.store.Get(ctx, id)
		if err != nil {
			e.logger.Warn("inline evaluation skipped budget", "budget_id", id, "error", err)
			continue
		}
		current = append(current, b)
	}

	summary := &BreachSummary{}
	e.notify(ctx, current, summary)
	for _, ie := range summary.Errors {
		e.logger.Warn("inline evaluation failed to claim notification", "budget_id", ie.BudgetID, "error", ie.Message)
	}
}

// notify detects crossings in budgets, claims each event's band in the
// store and dispatches only the events this caller claimed. Sweeps in other
// processes sharing the store, and concurrent inline evaluations, lose the
// claim and stay silent, so each band is notified at most once.
//
// The claim is taken before delivery: a failed send is not retried by the
// next sweep, which keeps a failing transport from producing a
// notification storm.
func (e *Engine) notify(ctx context.Context, budgets []*budget.Budget, summary *BreachSummary) {
	events := threshold.DetectCrossings(budgets, threshold.PreviousBuckets(budgets))
	if len(events) == 0 {
		return
	}

	if e.dispatcher == nil {
		summary.AffectedOwners += countOwners(events)
		e.logger.Debug("threshold crossings detected with notifications disabled", "events", len(events))
		return
	}

	now := e.now().UTC()
	claimed := make([]threshold.Event, 0, len(events))
	for _, ev := range events {
		ok, err := e.claim(ctx, ev, now)
		if err != nil {
			summary.Errors = append(summary.Errors, budget.ItemError{BudgetID: ev.BudgetID, Message: err.Error()})
			continue
		}
		if !ok {
			e.logger.Debug("band already claimed", "budget_id", ev.BudgetID, "bucket", ev.Bucket)
			continue
		}
		claimed = append(claimed, ev)
	}
	if len(claimed) == 0 {
		return
	}
	summary.AffectedOwners += countOwners(claimed)

	result := e.dispatcher.Dispatch(ctx, claimed)
	summary.NotificationsSent += result.Sent
	summary.NotificationsFailed += result.Failed
	e.metrics.RecordNotifications(result.Sent, result.Failed, result.Skipped)
}

// claim moves the budget's notified band from the one the event was
// computed against to the event's band.
func (e *Engine) claim(ctx context.Context, ev threshold.Event, at time.Time) (bool, error) {
	itemCtx, cancel := context.WithTimeout(ctx, e.itemTimeout())
	defer cancel()

	ok, err := e.store.ClaimBucket(itemCtx, ev.BudgetID, ev.PreviousBucket, ev.Bucket, at)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted while the sweep was running.
		return false, nil
	}
	return ok, err
}

func countOwners(events []threshold.Event) int {
	owners := make(map[string]struct{}, len(events))
	for _, ev := range events {
		owners[ev.OwnerID] = struct{}{}
	}
	return len(owners)
}

func (e *Engine) recordUsageRatio(b *budget.Budget) {
	if !b.LimitUSD.IsPositive() {
		return
	}
	ratio := b.CurrentSpendUSD.Div(b.LimitUSD).InexactFloat64()
	e.metrics.RecordBudgetUsage(b.ID, b.OwnerID, ratio)
}

func (e *Engine) sweepTimeout() time.Duration {
	if e.config.Sweep.SweepTimeout > 0 {
		return e.config.Sweep.SweepTimeout
	}
	return 2 * time.Minute
}

func (e *Engine) itemTimeout() time.Duration {
	if e.config.Sweep.ItemTimeout > 0 {
		return e.config.Sweep.ItemTimeout
	}
	return 5 * time.Second
}
