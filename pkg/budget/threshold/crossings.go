package threshold

import (
	"time"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
)

// Event is a severity crossing that should be notified.
type Event struct {
	BudgetID   string          `json:"budget_id"`
	OwnerID    string          `json:"owner_id"`
	BudgetName string          `json:"budget_name"`
	Scope      budget.Scope    `json:"scope"`
	Period     budget.Period   `json:"period"`
	Action     budget.Action   `json:"action_on_breach"`
	Severity   budget.Severity `json:"severity"`

	PercentUsed decimal.Decimal `json:"percent_used"`
	SpendUSD    decimal.Decimal `json:"current_spend_usd"`
	LimitUSD    decimal.Decimal `json:"limit_usd"`

	// Bucket is the band to record as notified once the event is dispatched.
	Bucket int `json:"bucket"`

	// PreviousBucket is the band notified before this event, if any.
	PreviousBucket *int `json:"previous_bucket,omitempty"`

	ResetAt time.Time `json:"reset_at"`
}

// PreviousBuckets reads the persisted last-notified band of each budget.
func PreviousBuckets(budgets []*budget.Budget) map[string]int {
	out := make(map[string]int, len(budgets))
	for _, b := range budgets {
		if b.LastNotifiedBucket != nil {
			out[b.ID] = *b.LastNotifiedBucket
		}
	}
	return out
}

// DetectCrossings returns the events to notify for budgets given the band
// each was last notified for.
//
// An active budget at warning or above emits an event when its band is
// higher than the notified band, or when nothing has been notified this
// period. A budget whose severity has fallen below the severity of its
// notified band emits a recovered event. Everything else is silent, so
// evaluating the same state twice emits nothing the second time once the
// caller has recorded the first events' buckets.
func DetectCrossings(budgets []*budget.Budget, previousBuckets map[string]int) []Event {
	var events []Event

	for _, b := range budgets {
		if !b.IsActive {
			continue
		}

		status := Evaluate(b)
		prev, notified := previousBuckets[b.ID]

		var severity budget.Severity
		switch {
		case status.Severity != budget.SeverityNone && (!notified || status.Bucket > prev):
			severity = status.Severity
		case notified && status.Severity.Rank() < bucketSeverity(prev).Rank():
			severity = budget.SeverityRecovered
		default:
			continue
		}

		ev := Event{
			BudgetID:    b.ID,
			OwnerID:     b.OwnerID,
			BudgetName:  b.Name,
			Scope:       b.Scope,
			Period:      b.Period,
			Action:      b.ActionOnBreach,
			Severity:    severity,
			PercentUsed: status.PercentUsed,
			SpendUSD:    b.CurrentSpendUSD,
			LimitUSD:    b.LimitUSD,
			Bucket:      status.Bucket,
			ResetAt:     b.ResetAt,
		}
		if notified {
			p := prev
			ev.PreviousBucket = &p
		}
		events = append(events, ev)
	}

	return events
}
