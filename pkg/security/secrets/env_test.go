package secrets

import (
	"context"
	"errors"
	"testing"
)

func TestEnvProvider_Get(t *testing.T) {
	t.Setenv("SPENDCAP_SECRET_SMTP_PASSWORD", "hunter2")

	p := NewEnvProvider("SPENDCAP_SECRET_")
	value, err := p.Get(context.Background(), "smtp-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "hunter2" {
		t.Errorf("expected 'hunter2', got '%s'", value)
	}
}

func TestEnvProvider_NotFound(t *testing.T) {
	p := NewEnvProvider("SPENDCAP_SECRET_TEST_")
	_, err := p.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEnvProvider_EnvVarName(t *testing.T) {
	p := NewEnvProvider("X_")
	tests := map[string]string{
		"slack-webhook": "X_SLACK_WEBHOOK",
		"redis.pass":    "X_REDIS_PASS",
		"Token":         "X_TOKEN",
	}
	for name, want := range tests {
		if got := p.envVar(name); got != want {
			t.Errorf("envVar(%q) = %q, want %q", name, got, want)
		}
	}
}
