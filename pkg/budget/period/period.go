package period

import (
	"fmt"
	"time"

	"mercator-hq/spendcap/pkg/budget"
)

// ComputeNextReset returns the next UTC calendar boundary for p that is
// strictly after now.
//
//   - daily: the next 00:00:00 UTC
//   - weekly: the next Sunday 00:00:00 UTC (a full week ahead when now is
//     exactly Sunday midnight)
//   - monthly: the first day of the next month at 00:00:00 UTC
func ComputeNextReset(p budget.Period, now time.Time) (time.Time, error) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch p {
	case budget.PeriodDaily:
		return midnight.AddDate(0, 0, 1), nil

	case budget.PeriodWeekly:
		days := (7 - int(midnight.Weekday())) % 7
		if days == 0 {
			days = 7
		}
		return midnight.AddDate(0, 0, days), nil

	case budget.PeriodMonthly:
		return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC), nil

	default:
		return time.Time{}, fmt.Errorf("unknown period %q", p)
	}
}

// MustComputeNextReset is ComputeNextReset for periods already validated.
// It panics on an unknown period.
func MustComputeNextReset(p budget.Period, now time.Time) time.Time {
	t, err := ComputeNextReset(p, now)
	if err != nil {
		panic(err)
	}
	return t
}
