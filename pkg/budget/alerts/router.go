package alerts

import (
	"context"
	"fmt"
	"strings"

	"mercator-hq/spendcap/pkg/budget"
)

// Router picks a transport from the form of the address:
//
//	https://...        Slack webhook
//	mailto:x@y, x@y    email
//	log:anything       structured log
//
// A nil transport makes addresses of that form fail.
type Router struct {
	Slack Notifier
	Email Notifier
	Log   Notifier
}

// Name implements Notifier.
func (r *Router) Name() string { return "router" }

// Notify implements Notifier.
func (r *Router) Notify(ctx context.Context, address string, data TemplateData, severity budget.Severity) error {
	n, kind := r.route(address)
	if n == nil {
		return fmt.Errorf("no %s transport configured for address %q", kind, address)
	}
	return n.Notify(ctx, address, data, severity)
}

func (r *Router) route(address string) (Notifier, string) {
	switch {
	case strings.HasPrefix(address, "https://"), strings.HasPrefix(address, "http://"):
		return r.Slack, "slack"
	case strings.HasPrefix(address, "log:"):
		return r.Log, "log"
	case strings.HasPrefix(address, "mailto:"), strings.Contains(address, "@"):
		return r.Email, "email"
	default:
		return r.Log, "log"
	}
}
