package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"mercator-hq/spendcap/pkg/budget/enforcement"
)

// Metrics contains Prometheus metrics for the engine.
type Metrics struct {
	// Usage recording
	spendRecorded   prometheus.Counter
	usageRecords    *prometheus.CounterVec
	budgetsUpdated  prometheus.Counter
	budgetUsage     *prometheus.GaugeVec
	aggregateErrors prometheus.Counter

	// Gate decisions
	gateDecisions *prometheus.CounterVec
	gateDuration  prometheus.Histogram

	// Sweeps
	sweepRuns     *prometheus.CounterVec
	sweepResets   prometheus.Counter
	sweepErrors   *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec

	// Notifications
	notifications *prometheus.CounterVec
	inlineSkipped prometheus.Counter
}

// NewMetrics creates engine metrics registered with registry.
func NewMetrics(namespace string, registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		spendRecorded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "usage",
				Name:      "spend_recorded_usd_total",
				Help:      "Total USD recorded against budgets",
			},
		),

		usageRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "usage",
				Name:      "records_total",
				Help:      "Total number of usage records by result",
			},
			[]string{"result"},
		),

		budgetsUpdated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "usage",
				Name:      "budget_increments_total",
				Help:      "Total number of per-budget spend increments",
			},
		),

		budgetUsage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "budget",
				Name:      "usage_ratio",
				Help:      "Current spend as a fraction of the limit (1.0 = limit reached)",
			},
			[]string{"budget_id", "owner_id"},
		),

		aggregateErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "usage",
				Name:      "increment_errors_total",
				Help:      "Total number of failed per-budget spend increments",
			},
		),

		gateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gate",
				Name:      "decisions_total",
				Help:      "Total number of enforcement decisions by action",
			},
			[]string{"action", "degraded"},
		),

		gateDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gate",
				Name:      "check_duration_seconds",
				Help:      "Duration of enforcement checks in seconds",
				Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
		),

		sweepRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "runs_total",
				Help:      "Total number of sweeps by kind and result",
			},
			[]string{"kind", "result"},
		),

		sweepResets: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "resets_total",
				Help:      "Total number of budgets reset to a new period",
			},
		),

		sweepErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "item_errors_total",
				Help:      "Total number of per-budget sweep failures",
			},
			[]string{"kind"},
		),

		sweepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "duration_seconds",
				Help:      "Duration of sweeps in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
			},
			[]string{"kind"},
		),

		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "notifications_total",
				Help:      "Total number of threshold notifications by result",
			},
			[]string{"result"},
		),

		inlineSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "inline_skipped_total",
				Help:      "Total number of inline evaluations left to the next sweep because all slots were busy",
			},
		),
	}
}

// RecordUsage records the outcome of one usage record.
func (m *Metrics) RecordUsage(amount decimal.Decimal, updated, failed int) {
	m.spendRecorded.Add(amount.InexactFloat64())
	m.budgetsUpdated.Add(float64(updated))
	m.aggregateErrors.Add(float64(failed))

	result := "matched"
	switch {
	case failed > 0:
		result = "partial"
	case updated == 0:
		result = "unmatched"
	}
	m.usageRecords.WithLabelValues(result).Inc()
}

// RecordUsageError records a rejected usage record.
func (m *Metrics) RecordUsageError() {
	m.usageRecords.WithLabelValues("rejected").Inc()
}

// RecordBudgetUsage sets the usage gauge for one budget.
func (m *Metrics) RecordBudgetUsage(budgetID, ownerID string, ratio float64) {
	m.budgetUsage.WithLabelValues(budgetID, ownerID).Set(ratio)
}

// ForgetBudget drops the usage gauge of a deleted or deactivated budget.
func (m *Metrics) ForgetBudget(budgetID, ownerID string) {
	m.budgetUsage.DeleteLabelValues(budgetID, ownerID)
}

// RecordDecision records a gate decision and its latency.
func (m *Metrics) RecordDecision(d enforcement.Decision, duration time.Duration) {
	degraded := "false"
	if d.Degraded {
		degraded = "true"
	}
	m.gateDecisions.WithLabelValues(string(d.Action), degraded).Inc()
	m.gateDuration.Observe(duration.Seconds())
}

// RecordSweep records a completed or failed sweep.
func (m *Metrics) RecordSweep(kind string, err error, itemErrors int, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.sweepRuns.WithLabelValues(kind, result).Inc()
	m.sweepErrors.WithLabelValues(kind).Add(float64(itemErrors))
	m.sweepDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordResets counts budgets moved to a new period.
func (m *Metrics) RecordResets(n int) {
	m.sweepResets.Add(float64(n))
}

// RecordNotifications counts dispatch outcomes.
func (m *Metrics) RecordNotifications(sent, failed, skipped int) {
	m.notifications.WithLabelValues("sent").Add(float64(sent))
	m.notifications.WithLabelValues("failed").Add(float64(failed))
	m.notifications.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordInlineSkipped counts an inline evaluation dropped for lack of a slot.
func (m *Metrics) RecordInlineSkipped() {
	m.inlineSkipped.Inc()
}
