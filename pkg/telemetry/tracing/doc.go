// Package tracing sets up OpenTelemetry tracing for the service.
//
// New installs a global tracer provider exporting over OTLP gRPC, or a noop
// provider when tracing is disabled. Components obtain tracers with
// otel.Tracer and never hold a reference to the provider.
//
// Three sampling strategies are supported, each wrapped in ParentBased:
//   - always: sample all traces
//   - never: sample no traces
//   - ratio: sample a fraction of traces by trace ID
//
// HTTPMiddleware extracts W3C trace context from incoming requests and
// opens a server span per request; Inject propagates it on outgoing webhook
// calls.
//
//	tracer, err := tracing.New(cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
package tracing
