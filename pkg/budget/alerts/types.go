package alerts

import (
	"context"
	"errors"
	"time"

	"mercator-hq/spendcap/pkg/budget"
	"mercator-hq/spendcap/pkg/budget/threshold"
)

// ErrNoContact is returned by a Directory when an owner has no address.
var ErrNoContact = errors.New("no contact address")

// Notifier delivers one notification to one address.
type Notifier interface {
	// Notify sends data to address. Implementations must respect ctx.
	Notify(ctx context.Context, address string, data TemplateData, severity budget.Severity) error

	// Name identifies the transport in logs and metrics.
	Name() string
}

// Directory resolves the contact address of an account.
type Directory interface {
	// ContactAddress returns the owner's address or ErrNoContact.
	ContactAddress(ctx context.Context, ownerID string) (string, error)
}

// TemplateData is what a notification template renders.
type TemplateData struct {
	OwnerID     string
	BudgetID    string
	BudgetName  string
	Scope       string
	Period      string
	Action      string
	Severity    budget.Severity
	PercentUsed string
	SpendUSD    string
	LimitUSD    string
	ResetAt     time.Time
}

// NewTemplateData renders an event into template fields.
func NewTemplateData(ev threshold.Event) TemplateData {
	return TemplateData{
		OwnerID:     ev.OwnerID,
		BudgetID:    ev.BudgetID,
		BudgetName:  ev.BudgetName,
		Scope:       ev.Scope.String(),
		Period:      string(ev.Period),
		Action:      string(ev.Action),
		Severity:    ev.Severity,
		PercentUsed: ev.PercentUsed.StringFixed(1),
		SpendUSD:    ev.SpendUSD.StringFixed(2),
		LimitUSD:    ev.LimitUSD.StringFixed(2),
		ResetAt:     ev.ResetAt,
	}
}

// Result counts the outcome of a Dispatch call.
type Result struct {
	// Sent is the number of notifications the transport accepted.
	Sent int `json:"sent"`

	// Failed is the number of notifications that could not be delivered.
	Failed int `json:"failed"`

	// Skipped is the number of events whose owner had no contact address.
	Skipped int `json:"skipped"`

	// AffectedOwners is the number of distinct owners with events.
	AffectedOwners int `json:"affected_owners"`
}

// StaticDirectory resolves addresses from a fixed owner -> address map.
type StaticDirectory map[string]string

// ContactAddress implements Directory.
func (d StaticDirectory) ContactAddress(_ context.Context, ownerID string) (string, error) {
	addr, ok := d[ownerID]
	if !ok || addr == "" {
		return "", ErrNoContact
	}
	return addr, nil
}
