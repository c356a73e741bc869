package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/spendcap/pkg/config"
)

func TestNew_Disabled(t *testing.T) {
	tracer, err := New(config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tracer.Enabled() {
		t.Error("Expected tracer to be disabled")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected noop shutdown, got %v", err)
	}

	_, span := otel.Tracer(InstrumentationName).Start(context.Background(), "op")
	if span.SpanContext().IsValid() {
		t.Error("Expected noop span")
	}
	span.End()
}

func TestNew_InvalidSampler(t *testing.T) {
	_, err := New(config.TracingConfig{Enabled: true, Sampler: "sometimes", Endpoint: "localhost:4317"}, "test")
	if err == nil {
		t.Error("Expected error for unknown sampler")
	}
}

func TestNew_Enabled(t *testing.T) {
	tracer, err := New(config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		Endpoint:    "localhost:4317",
		ServiceName: "spendcap-test",
		Insecure:    true,
	}, "test")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = tracer.Shutdown(ctx)
	}()

	if !tracer.Enabled() {
		t.Error("Expected tracer to be enabled")
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.5, false},
		{SamplerRatio, 1.5, true},
		{"bogus", 0, true},
	}

	for _, tt := range tests {
		_, err := createSampler(tt.strategy, tt.ratio)
		if (err != nil) != tt.wantErr {
			t.Errorf("createSampler(%q, %v) error = %v, wantErr %v", tt.strategy, tt.ratio, err, tt.wantErr)
		}
	}
}

func TestHTTPMiddleware_SpanAndHeader(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	defer provider.Shutdown(context.Background())

	var seen string
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/budgets", nil))

	if seen == "" {
		t.Fatal("Expected trace ID in handler context")
	}
	if rec.Header().Get("X-Trace-ID") != seen {
		t.Errorf("Expected X-Trace-ID %s, got %s", seen, rec.Header().Get("X-Trace-ID"))
	}
	if spans := recorder.Ended(); len(spans) != 1 || spans[0].Name() != "GET /v1/budgets" {
		t.Errorf("Expected one GET /v1/budgets span, got %d", len(spans))
	}
}

func TestSetStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	_, span := provider.Tracer("test").Start(context.Background(), "op")
	SetStatus(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	if ended[0].Status().Code != codes.Error {
		t.Errorf("Expected error status, got %v", ended[0].Status().Code)
	}
	if len(ended[0].Events()) != 1 {
		t.Errorf("Expected recorded error event, got %d events", len(ended[0].Events()))
	}
}
