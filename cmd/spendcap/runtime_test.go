package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"mercator-hq/spendcap/pkg/config"
)

func TestResolveSecrets(t *testing.T) {
	t.Setenv("SPENDCAP_SECRET_SWEEP", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "acct-webhook")
	if err := os.WriteFile(path, []byte("https://hooks.slack.com/services/T/B/X\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Security.SecretsDir = dir
	cfg.Security.SweepSecret = "${secret:sweep}"
	cfg.Alerts.SMTP.Password = "plain"
	cfg.Alerts.Contacts = map[string]string{
		"acct-1": "${secret:acct-webhook}",
		"acct-2": "ops@example.com",
	}

	if err := resolveSecrets(context.Background(), cfg); err != nil {
		t.Fatalf("resolveSecrets() error: %v", err)
	}
	if cfg.Security.SweepSecret != "from-env" {
		t.Errorf("SweepSecret = %q, want from-env", cfg.Security.SweepSecret)
	}
	if cfg.Alerts.SMTP.Password != "plain" {
		t.Errorf("SMTP password changed to %q", cfg.Alerts.SMTP.Password)
	}
	if got := cfg.Alerts.Contacts["acct-1"]; got != "https://hooks.slack.com/services/T/B/X" {
		t.Errorf("acct-1 contact = %q", got)
	}
	if got := cfg.Alerts.Contacts["acct-2"]; got != "ops@example.com" {
		t.Errorf("acct-2 contact = %q", got)
	}
}

func TestResolveSecrets_Missing(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Redis.Password = "${secret:spendcap-test-unset}"

	if err := resolveSecrets(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unresolvable reference")
	}
}
