package alerts

import (
	"context"
	"log/slog"

	"mercator-hq/spendcap/pkg/budget"
)

// LogNotifier writes notifications to the structured log. It is the
// transport used when no external channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs through logger, or the default
// logger when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "budget.alerts.log")}
}

// Name implements Notifier.
func (l *LogNotifier) Name() string { return "log" }

// Notify implements Notifier.
func (l *LogNotifier) Notify(ctx context.Context, address string, data TemplateData, severity budget.Severity) error {
	level := slog.LevelInfo
	switch severity {
	case budget.SeverityExceeded, budget.SeverityCritical:
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "budget alert",
		"tier", Tier(severity),
		"address", address,
		"owner_id", data.OwnerID,
		"budget_id", data.BudgetID,
		"budget_name", data.BudgetName,
		"scope", data.Scope,
		"percent_used", data.PercentUsed,
		"spend_usd", data.SpendUSD,
		"limit_usd", data.LimitUSD,
	)
	return nil
}
