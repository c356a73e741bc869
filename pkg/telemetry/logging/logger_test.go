package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSONLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", "budget_id", "b-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("Expected JSON output, got %q", lines[0])
	}
	if record["msg"] != "kept" || record["budget_id"] != "b-1" {
		t.Errorf("Unexpected record: %v", record)
	}
}

func TestNew_InvalidSettings(t *testing.T) {
	if _, err := New(Config{Level: "trace"}); err == nil {
		t.Error("Expected error for unknown level")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := WithOwner(WithRequestID(context.Background(), "req-42"), "acct-1")
	logger.With("component", "api").InfoContext(ctx, "handled")

	out := buf.String()
	for _, want := range []string{"request_id=req-42", "owner_id=acct-1", "component=api"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}

	if GetRequestID(context.Background()) != "" {
		t.Error("Expected empty request ID on bare context")
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "json", RedactSecrets: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("notify",
		"address", "https://hooks.slack.com/services/T000/B000/abcdef",
		"sweep_secret", "hunter2",
		"header", "Bearer abc.def",
		"owner_id", "acct-1",
	)

	out := buf.String()
	for _, leaked := range []string{"abcdef", "hunter2", "abc.def"} {
		if strings.Contains(out, leaked) {
			t.Errorf("Expected %q to be redacted in %s", leaked, out)
		}
	}
	if !strings.Contains(out, "acct-1") {
		t.Errorf("Expected owner_id to survive redaction: %s", out)
	}
}

func TestRedactor_ReplaceAttrKeepsNonStrings(t *testing.T) {
	a := NewRedactor().ReplaceAttr(nil, slog.Int("count", 3))
	if a.Value.Int64() != 3 {
		t.Errorf("Expected int attribute unchanged, got %v", a.Value)
	}
}
