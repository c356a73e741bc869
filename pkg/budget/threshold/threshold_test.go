package threshold

import (
	"testing"

	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestClassify_Boundaries(t *testing.T) {
	limit := d("100")
	tests := []struct {
		spend    string
		severity budget.Severity
		percent  string
		bucket   int
	}{
		{"0", budget.SeverityNone, "0", 0},
		{"74.99", budget.SeverityNone, "74.99", 14},
		{"75.00", budget.SeverityWarning, "75", 15},
		{"89.99", budget.SeverityWarning, "89.99", 17},
		{"90.00", budget.SeverityCritical, "90", 18},
		{"99.99", budget.SeverityCritical, "99.99", 19},
		{"100.00", budget.SeverityExceeded, "100", 20},
		{"150.00", budget.SeverityExceeded, "150", 30},
	}

	for _, tt := range tests {
		t.Run(tt.spend, func(t *testing.T) {
			spend := d(tt.spend)
			if got := Classify(spend, limit); got != tt.severity {
				t.Errorf("Expected severity %s, got %s", tt.severity, got)
			}
			pct := PercentUsed(spend, limit)
			if !pct.Equal(d(tt.percent)) {
				t.Errorf("Expected percent %s, got %s", tt.percent, pct)
			}
			if got := Bucket(pct); got != tt.bucket {
				t.Errorf("Expected bucket %d, got %d", tt.bucket, got)
			}
		})
	}
}

func TestPercentUsed_NonRoundLimit(t *testing.T) {
	// 7.5 / 10 = 75%, exactly on the warning boundary.
	if got := Classify(d("7.5"), d("10")); got != budget.SeverityWarning {
		t.Errorf("Expected warning, got %s", got)
	}
	// 2/3 of a dollar limit is 66.66...%.
	if got := Bucket(PercentUsed(d("2"), d("3"))); got != 13 {
		t.Errorf("Expected bucket 13, got %d", got)
	}
}

func TestPercentUsed_ZeroLimit(t *testing.T) {
	if got := PercentUsed(d("5"), decimal.Zero); !got.IsZero() {
		t.Errorf("Expected 0 for zero limit, got %s", got)
	}
}

func testBudget(id string, spend string, bucket *int) *budget.Budget {
	return &budget.Budget{
		ID:                 id,
		OwnerID:            "acct-1",
		Name:               id,
		Period:             budget.PeriodMonthly,
		LimitUSD:           d("100"),
		Scope:              budget.GlobalScope(),
		ActionOnBreach:     budget.ActionAlert,
		CurrentSpendUSD:    d(spend),
		IsActive:           true,
		LastNotifiedBucket: bucket,
	}
}

func intPtr(v int) *int { return &v }

func TestDetectCrossings(t *testing.T) {
	tests := []struct {
		name     string
		spend    string
		notified *int
		want     budget.Severity
	}{
		{"below warning", "50", nil, ""},
		{"first warning", "76", nil, budget.SeverityWarning},
		{"same band already notified", "78", intPtr(15), ""},
		{"next band within warning", "81", intPtr(15), budget.SeverityWarning},
		{"critical after warning", "91", intPtr(16), budget.SeverityCritical},
		{"exceeded after critical", "100", intPtr(19), budget.SeverityExceeded},
		{"exceeded climbing", "126", intPtr(20), budget.SeverityExceeded},
		{"exceeded same band", "103", intPtr(20), ""},
		{"recovered to none", "40", intPtr(18), budget.SeverityRecovered},
		{"recovered to warning", "80", intPtr(20), budget.SeverityRecovered},
		{"lower band same tier", "90", intPtr(19), ""},
		{"none after recovery", "60", intPtr(12), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBudget("b-1", tt.spend, tt.notified)
			events := DetectCrossings([]*budget.Budget{b}, PreviousBuckets([]*budget.Budget{b}))

			if tt.want == "" {
				if len(events) != 0 {
					t.Errorf("Expected no events, got %+v", events)
				}
				return
			}
			if len(events) != 1 {
				t.Fatalf("Expected 1 event, got %d", len(events))
			}
			if events[0].Severity != tt.want {
				t.Errorf("Expected severity %s, got %s", tt.want, events[0].Severity)
			}
			if want := Bucket(PercentUsed(d(tt.spend), d("100"))); events[0].Bucket != want {
				t.Errorf("Expected bucket %d, got %d", want, events[0].Bucket)
			}
		})
	}
}

func TestDetectCrossings_DedupAcrossSweeps(t *testing.T) {
	b := testBudget("b-1", "96", nil)

	first := DetectCrossings([]*budget.Budget{b}, PreviousBuckets([]*budget.Budget{b}))
	if len(first) != 1 || first[0].Bucket != 19 || first[0].Severity != budget.SeverityCritical {
		t.Fatalf("Expected one critical event in bucket 19, got %+v", first)
	}

	// The breach sweep persists the bucket after dispatch.
	b.LastNotifiedBucket = intPtr(first[0].Bucket)

	second := DetectCrossings([]*budget.Budget{b}, PreviousBuckets([]*budget.Budget{b}))
	if len(second) != 0 {
		t.Errorf("Expected no events on second sweep, got %+v", second)
	}
}

func TestDetectCrossings_SkipsInactive(t *testing.T) {
	b := testBudget("b-1", "120", nil)
	b.IsActive = false
	if events := DetectCrossings([]*budget.Budget{b}, nil); len(events) != 0 {
		t.Errorf("Expected no events for inactive budget, got %d", len(events))
	}
}

func TestEvaluate(t *testing.T) {
	status := Evaluate(testBudget("b-1", "150", nil))
	if status.Severity != budget.SeverityExceeded {
		t.Errorf("Expected exceeded, got %s", status.Severity)
	}
	if !status.PercentUsed.Equal(d("150")) {
		t.Errorf("Expected 150 percent, got %s", status.PercentUsed)
	}
}
