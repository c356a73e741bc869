package scheduler

import (
	"context"
	"testing"

	"mercator-hq/spendcap/pkg/budget/period"
	"mercator-hq/spendcap/pkg/engine"
)

type fakeSweeper struct {
	resets int
	checks int
}

func (f *fakeSweeper) ResetSweep(ctx context.Context) (*period.ResetSummary, error) {
	f.resets++
	return &period.ResetSummary{}, nil
}

func (f *fakeSweeper) BreachCheck(ctx context.Context) (*engine.BreachSummary, error) {
	f.checks++
	return &engine.BreachSummary{}, nil
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantRunning bool
		wantError   bool
	}{
		{
			name:        "both sweeps",
			config:      Config{ResetSchedule: "*/5 * * * *", BreachSchedule: "*/10 * * * *"},
			wantRunning: true,
		},
		{
			name:        "reset only",
			config:      Config{ResetSchedule: "0 * * * *"},
			wantRunning: true,
		},
		{
			name:        "nothing scheduled",
			config:      Config{},
			wantRunning: false,
		},
		{
			name:      "invalid reset schedule",
			config:    Config{ResetSchedule: "invalid cron"},
			wantError: true,
		},
		{
			name:      "invalid breach schedule",
			config:    Config{ResetSchedule: "*/5 * * * *", BreachSchedule: "* *"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeSweeper{}, tt.config)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := s.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if s.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", s.IsRunning(), tt.wantRunning)
			}

			if tt.wantRunning {
				if s.NextRun() == nil {
					t.Error("NextRun() returned nil for running scheduler")
				}
				s.Stop()
				if s.IsRunning() {
					t.Error("Expected scheduler to stop")
				}
			}
		})
	}
}

func TestScheduler_RunsSweeps(t *testing.T) {
	f := &fakeSweeper{}
	s := New(f, Config{})

	s.runReset(context.Background())
	s.runBreachCheck(context.Background())

	if f.resets != 1 || f.checks != 1 {
		t.Errorf("Expected one run of each sweep, got resets=%d checks=%d", f.resets, f.checks)
	}
}

func TestScheduler_StopsWithContext(t *testing.T) {
	s := New(&fakeSweeper{}, Config{BreachSchedule: "@every 1h"})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	// Stop is idempotent and waits for the context goroutine's Stop.
	s.Stop()
	if s.IsRunning() {
		t.Error("Expected scheduler to be stopped")
	}
}
