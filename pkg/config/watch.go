package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is how long the watcher waits for writes to settle.
const DefaultDebounceInterval = 200 * time.Millisecond

// EnforcementWatcher reloads the enforcement section when the configuration
// file changes. Other sections need a restart.
//
// The parent directory is watched rather than the file itself so that
// editors and config-map mounts that replace the file by rename are seen.
type EnforcementWatcher struct {
	path     string
	debounce time.Duration
	onChange func(EnforcementConfig)
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewEnforcementWatcher creates a watcher for the file at path. onChange
// receives each successfully reloaded and validated section; invalid edits
// are logged and the running configuration is kept.
func NewEnforcementWatcher(path string, onChange func(EnforcementConfig)) (*EnforcementWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}

	return &EnforcementWatcher{
		path:     abs,
		debounce: DefaultDebounceInterval,
		onChange: onChange,
		watcher:  watcher,
		logger:   slog.Default().With("component", "config.watcher"),
	}, nil
}

// Run processes file events until ctx is cancelled. It closes the
// underlying watcher before returning.
func (w *EnforcementWatcher) Run(ctx context.Context) error {
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		w.watcher.Close()
	}()

	w.logger.Info("watching configuration for enforcement changes", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != w.path || event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("configuration file event", "op", event.Op.String())
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("configuration watcher error", "error", err)
		}
	}
}

func (w *EnforcementWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *EnforcementWatcher) reload() {
	cfg, err := LoadEnforcement(w.path)
	if err != nil {
		w.logger.Error("enforcement reload rejected, keeping current settings", "error", err)
		return
	}
	w.logger.Info("enforcement configuration reloaded", "failure_mode", cfg.FailureMode)
	w.onChange(cfg)
}
