package alerts

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"mercator-hq/spendcap/pkg/budget"
)

// BreakerSettings tunes the circuit breaker around a transport.
type BreakerSettings struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval is the closed-state counting window.
	Interval time.Duration

	// Timeout is how long the breaker stays open.
	Timeout time.Duration

	// MinRequests and FailureRatio decide when to trip.
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings trips after 5 requests with at least 60% failures
// and probes again after 30 seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// BreakerNotifier stops calling a failing transport for a while instead of
// waiting on its timeout for every notification in a sweep.
type BreakerNotifier struct {
	next    Notifier
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps next in a circuit breaker.
func WithBreaker(next Notifier, s BreakerSettings) *BreakerNotifier {
	return &BreakerNotifier{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        next.Name(),
			MaxRequests: s.MaxRequests,
			Interval:    s.Interval,
			Timeout:     s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < s.MinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
			},
		}),
	}
}

// Name implements Notifier.
func (b *BreakerNotifier) Name() string { return b.next.Name() }

// State reports the breaker state for health output.
func (b *BreakerNotifier) State() string { return b.breaker.State().String() }

// Notify implements Notifier. While the breaker is open it fails fast with
// gobreaker.ErrOpenState.
func (b *BreakerNotifier) Notify(ctx context.Context, address string, data TemplateData, severity budget.Severity) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.Notify(ctx, address, data, severity)
	})
	return err
}
