package budget

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Period is the reset cadence of a budget.
type Period string

const (
	// PeriodDaily resets at 00:00 UTC every day.
	PeriodDaily Period = "daily"

	// PeriodWeekly resets at 00:00 UTC every Sunday.
	PeriodWeekly Period = "weekly"

	// PeriodMonthly resets at 00:00 UTC on the first day of each month.
	PeriodMonthly Period = "monthly"
)

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// Action is what the enforcement gate does once a budget is exceeded.
type Action string

const (
	// ActionAlert only notifies; requests keep flowing.
	ActionAlert Action = "alert"

	// ActionBlock rejects matching requests.
	ActionBlock Action = "block"

	// ActionDowngrade routes matching requests to a cheaper model.
	ActionDowngrade Action = "downgrade"
)

// Valid reports whether a is a known breach action.
func (a Action) Valid() bool {
	switch a {
	case ActionAlert, ActionBlock, ActionDowngrade:
		return true
	}
	return false
}

// Severity classifies a budget's spend ratio.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeverityExceeded Severity = "exceeded"

	// SeverityRecovered marks a budget that dropped back below a tier it was
	// already notified for. It is only ever carried by threshold events.
	SeverityRecovered Severity = "recovered"
)

// Rank orders severities from none (0) to exceeded (3).
// Recovered ranks with none.
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	case SeverityExceeded:
		return 3
	}
	return 0
}

// Budget is a recurring spend cap over a period and scope.
type Budget struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`

	Period Period `json:"period"`

	// LimitUSD is the spend cap for one period. Always positive.
	LimitUSD decimal.Decimal `json:"limit_usd"`

	// Scope is encoded as the flat scope and scope_identifier pair.
	Scope Scope `json:"-"`

	ActionOnBreach Action `json:"action_on_breach"`

	// CurrentSpendUSD is the running total for the current period.
	CurrentSpendUSD decimal.Decimal `json:"current_spend_usd"`

	// ResetAt is the next calendar boundary at which spend returns to zero.
	ResetAt time.Time `json:"reset_at"`

	IsActive bool `json:"is_active"`

	// LastNotifiedBucket is the highest 5-point band already alerted on in
	// the current period. Nil when nothing has been notified since the last
	// reset.
	LastNotifiedBucket *int `json:"last_notified_bucket,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// budgetJSON drops Budget's methods so the codecs below can reuse the
// field tags.
type budgetJSON Budget

// MarshalJSON encodes the budget with its scope flattened into scope and
// scope_identifier.
func (b Budget) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		budgetJSON
		ScopeFields
	}{budgetJSON(b), b.Scope.Fields()})
}

// UnmarshalJSON decodes the form MarshalJSON produces.
func (b *Budget) UnmarshalJSON(data []byte) error {
	var in struct {
		budgetJSON
		ScopeFields
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*b = Budget(in.budgetJSON)
	b.Scope = in.ScopeFields.Scope()
	return nil
}

// Clone returns a deep copy of b.
func (b *Budget) Clone() *Budget {
	if b == nil {
		return nil
	}
	c := *b
	if b.LastNotifiedBucket != nil {
		v := *b.LastNotifiedBucket
		c.LastNotifiedBucket = &v
	}
	return &c
}

// Applies reports whether b should account for and enforce on a request
// with the given attributes.
func (b *Budget) Applies(req RequestScope) bool {
	return b.IsActive && b.OwnerID == req.OwnerID && b.Scope.Matches(req)
}

// String implements fmt.Stringer for log output.
func (b *Budget) String() string {
	return fmt.Sprintf("budget %s (%s, %s %s/%s)", b.ID, b.Name, b.Scope, b.LimitUSD.StringFixed(2), b.Period)
}

// microsPerUSD is the fixed-point scale used to persist spend so that stores
// can add atomically on an integer column.
const microsPerUSD = 6

// ToMicros converts a USD amount to integer micro-dollars, rounding half away
// from zero.
func ToMicros(d decimal.Decimal) int64 {
	return d.Shift(microsPerUSD).Round(0).IntPart()
}

// FromMicros converts integer micro-dollars back to USD.
func FromMicros(micros int64) decimal.Decimal {
	return decimal.New(micros, -microsPerUSD)
}
