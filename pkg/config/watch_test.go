package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestEnforcementWatcher_Reloads(t *testing.T) {
	path := writeConfig(t, "enforcement:\n  failure_mode: fail_open\n")

	changes := make(chan EnforcementConfig, 4)
	w, err := NewEnforcementWatcher(path, func(cfg EnforcementConfig) { changes <- cfg })
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Invalid edit is ignored.
	if err := os.WriteFile(path, []byte("enforcement:\n  failure_mode: sometimes\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-changes:
		t.Fatalf("expected invalid edit to be ignored, got %+v", cfg)
	case <-time.After(200 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("enforcement:\n  failure_mode: fail_closed\n  default_downgrade_model: gpt-4o-mini\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.FailureMode != "fail_closed" {
			t.Errorf("expected fail_closed, got %q", cfg.FailureMode)
		}
		if cfg.DefaultDowngradeModel != "gpt-4o-mini" {
			t.Errorf("expected gpt-4o-mini, got %q", cfg.DefaultDowngradeModel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestEnforcementWatcher_IgnoresOtherFiles(t *testing.T) {
	path := writeConfig(t, "enforcement: {}\n")

	changes := make(chan EnforcementConfig, 1)
	w, err := NewEnforcementWatcher(path, func(cfg EnforcementConfig) { changes <- cfg })
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	other := path + ".bak"
	if err := os.WriteFile(other, []byte("enforcement: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changes:
		t.Fatal("expected sibling file to be ignored")
	case <-time.After(200 * time.Millisecond):
	}
}
