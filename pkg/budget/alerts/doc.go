// Package alerts delivers threshold events to account contacts.
//
// The Dispatcher groups events by owner, resolves each owner's address
// through a Directory, and sends one notification per event through a
// Notifier. Transports are Slack incoming webhooks, SMTP email and the
// structured log; a Router picks one from the address form, and each can be
// wrapped in a circuit breaker. Sends are throttled with a token bucket.
//
// Delivery is best effort: a failure is logged and counted and never stops
// the rest of the batch.
package alerts
