// Package threshold derives budget severity from spend and detects the band
// crossings that should produce alerts.
//
// Severity is never stored. It is recomputed from current spend and limit
// every time it is needed:
//
//	percent_used >= 100  exceeded
//	percent_used >=  90  critical
//	percent_used >=  75  warning
//	otherwise            none
//
// Crossings are deduplicated on 5-point bands (bucket = floor(percent/5))
// against the last band each budget was notified for, which the caller
// persists.
package threshold

import (
	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
)

var (
	hundred = decimal.NewFromInt(100)
	five    = decimal.NewFromInt(5)

	warningPercent  = decimal.NewFromInt(75)
	criticalPercent = decimal.NewFromInt(90)
)

// Band boundaries expressed as buckets.
const (
	warningBucket  = 15
	criticalBucket = 18
	exceededBucket = 20
)

// PercentUsed returns spend / limit * 100 without clamping. A non-positive
// limit yields zero.
func PercentUsed(spend, limit decimal.Decimal) decimal.Decimal {
	if !limit.IsPositive() {
		return decimal.Zero
	}
	return spend.Mul(hundred).Div(limit)
}

// Classify returns the severity of spend against limit.
func Classify(spend, limit decimal.Decimal) budget.Severity {
	return ClassifyPercent(PercentUsed(spend, limit))
}

// ClassifyPercent returns the severity for a percent-used value.
func ClassifyPercent(pct decimal.Decimal) budget.Severity {
	switch {
	case pct.GreaterThanOrEqual(hundred):
		return budget.SeverityExceeded
	case pct.GreaterThanOrEqual(criticalPercent):
		return budget.SeverityCritical
	case pct.GreaterThanOrEqual(warningPercent):
		return budget.SeverityWarning
	default:
		return budget.SeverityNone
	}
}

// Bucket groups a percent-used value into its 5-point band.
func Bucket(pct decimal.Decimal) int {
	if pct.IsNegative() {
		return 0
	}
	return int(pct.Div(five).Floor().IntPart())
}

// bucketSeverity is the severity every percent inside bucket classifies as.
func bucketSeverity(bucket int) budget.Severity {
	switch {
	case bucket >= exceededBucket:
		return budget.SeverityExceeded
	case bucket >= criticalBucket:
		return budget.SeverityCritical
	case bucket >= warningBucket:
		return budget.SeverityWarning
	default:
		return budget.SeverityNone
	}
}

// Status is the derived state of one budget.
type Status struct {
	PercentUsed decimal.Decimal `json:"percent_used"`
	Severity    budget.Severity `json:"severity"`
	Bucket      int             `json:"bucket"`
}

// Evaluate derives the status of b from its stored spend and limit.
func Evaluate(b *budget.Budget) Status {
	pct := PercentUsed(b.CurrentSpendUSD, b.LimitUSD)
	return Status{
		PercentUsed: pct,
		Severity:    ClassifyPercent(pct),
		Bucket:      Bucket(pct),
	}
}
