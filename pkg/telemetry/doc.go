// Package telemetry groups the observability packages of the service.
//
//   - logging: slog logger construction, request context, secret redaction
//   - metrics: the Prometheus registry and HTTP request metrics
//   - tracing: OpenTelemetry provider setup and HTTP propagation
//   - health: liveness, readiness and version endpoints
package telemetry
