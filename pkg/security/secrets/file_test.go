package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSecret(t *testing.T, dir, name, value string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), mode); err != nil {
		t.Fatal(err)
	}
	// WriteFile is subject to umask.
	if err := os.Chmod(filepath.Join(dir, name), mode); err != nil {
		t.Fatal(err)
	}
}

func TestFileProvider_Get(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "sweep-secret", "s3cret\n", 0o600)

	value, err := NewFileProvider(dir).Get(context.Background(), "sweep-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "s3cret" {
		t.Errorf("expected value 's3cret', got '%s'", value)
	}
}

func TestFileProvider_NotFound(t *testing.T) {
	_, err := NewFileProvider(t.TempDir()).Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileProvider_InsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "open", "value", 0o644)

	_, err := NewFileProvider(dir).Get(context.Background(), "open")
	if err == nil {
		t.Fatal("expected error for world-readable secret file")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("permission error should not be ErrNotFound: %v", err)
	}
}

func TestFileProvider_RejectsTraversal(t *testing.T) {
	p := NewFileProvider(t.TempDir())
	for _, name := range []string{"../etc/passwd", "a/b", "", ".hidden"} {
		if _, err := p.Get(context.Background(), name); err == nil {
			t.Errorf("expected error for name %q", name)
		}
	}
}
