package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"golang.org/x/time/rate"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/threshold"
)

// Dispatcher sends threshold events to account contacts.
//
// Delivery is best effort. Each event is attempted once; failures are
// logged and counted and never stop the remaining events.
type Dispatcher struct {
	notifier  Notifier
	directory Directory
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRateLimit throttles sends to perSecond with the given burst.
// A non-positive rate disables throttling.
func WithRateLimit(perSecond float64, burst int) DispatcherOption {
	return func(d *Dispatcher) {
		if perSecond <= 0 {
			d.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewDispatcher creates a dispatcher delivering through notifier to
// addresses resolved by directory.
func NewDispatcher(notifier Notifier, directory Directory, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifier:  notifier,
		directory: directory,
		logger:    slog.Default().With("component", "budget.alerts"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch groups events by owner and sends one notification per event:
// exceeded budgets first, then critical, warning and recovered. Owners whose
// contact cannot be resolved are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, events []threshold.Event) Result {
	var result Result

	byOwner := make(map[string][]threshold.Event)
	for _, ev := range events {
		byOwner[ev.OwnerID] = append(byOwner[ev.OwnerID], ev)
	}
	result.AffectedOwners = len(byOwner)

	owners := make([]string, 0, len(byOwner))
	for owner := range byOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	for _, owner := range owners {
		ownerEvents := byOwner[owner]
		sort.SliceStable(ownerEvents, func(i, j int) bool {
			return dispatchOrder(ownerEvents[i].Severity) < dispatchOrder(ownerEvents[j].Severity)
		})

		address, err := d.directory.ContactAddress(ctx, owner)
		if errors.Is(err, ErrNoContact) {
			d.logger.Debug("no contact for owner, skipping", "owner_id", owner, "events", len(ownerEvents))
			result.Skipped += len(ownerEvents)
			continue
		}
		if err != nil {
			d.logger.Error("contact lookup failed", "owner_id", owner, "error", err)
			result.Failed += len(ownerEvents)
			continue
		}

		for _, ev := range ownerEvents {
			if err := d.send(ctx, address, ev); err != nil {
				d.logger.Warn("notification failed",
					"owner_id", owner,
					"budget_id", ev.BudgetID,
					"severity", ev.Severity,
					"transport", d.notifier.Name(),
					"error", err,
				)
				result.Failed++
				continue
			}
			result.Sent++
		}
	}

	d.logger.Info("alerts dispatched",
		"events", len(events),
		"owners", result.AffectedOwners,
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)

	return result
}

func (d *Dispatcher) send(ctx context.Context, address string, ev threshold.Event) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return d.notifier.Notify(ctx, address, NewTemplateData(ev), ev.Severity)
}

func dispatchOrder(s budget.Severity) int {
	switch s {
	case budget.SeverityExceeded:
		return 0
	case budget.SeverityCritical:
		return 1
	case budget.SeverityWarning:
		return 2
	default:
		return 3
	}
}
