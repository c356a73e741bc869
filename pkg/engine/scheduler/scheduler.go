package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/spendcap/pkg/budget/period"
	"mercator-hq/spendcap/pkg/engine"
)

// Sweeper runs the two budget sweeps. *engine.Engine implements it.
type Sweeper interface {
	ResetSweep(ctx context.Context) (*period.ResetSummary, error)
	BreachCheck(ctx context.Context) (*engine.BreachSummary, error)
}

// Config holds the cron expressions for each sweep. An empty expression
// disables that sweep.
type Config struct {
	// ResetSchedule runs the period reset sweep, e.g. "*/5 * * * *".
	ResetSchedule string

	// BreachSchedule runs the breach-check sweep, e.g. "*/10 * * * *".
	BreachSchedule string
}

// Scheduler runs budget sweeps in-process on cron schedules. It complements
// the HTTP sweep triggers; both are safe to run at the same time since
// resets and alert band claims are compare-and-set in the store.
type Scheduler struct {
	sweeper Sweeper
	config  Config
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// New creates a scheduler for sweeper. Overlapping runs of the same sweep
// are skipped rather than queued.
func New(sweeper Sweeper, cfg Config) *Scheduler {
	logger := slog.Default().With("component", "engine.scheduler")
	return &Scheduler{
		sweeper: sweeper,
		config:  cfg,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		logger: logger,
	}
}

// Start registers the configured sweeps and starts the cron loop. The
// scheduler stops when ctx is cancelled.
//
// Common cron expressions:
//   - "*/5 * * * *"  - Every 5 minutes
//   - "0 * * * *"    - Hourly
//   - "5 0 * * *"    - Daily just after the UTC midnight boundary
//
// If both schedules are empty, the scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.config.ResetSchedule == "" && s.config.BreachSchedule == "" {
		s.logger.Info("no sweep schedules configured, skipping scheduler")
		return nil
	}

	if s.config.ResetSchedule != "" {
		if err := s.add(s.config.ResetSchedule, func() { s.runReset(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule reset sweep: %w", err)
		}
	}
	if s.config.BreachSchedule != "" {
		if err := s.add(s.config.BreachSchedule, func() { s.runBreachCheck(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule breach check: %w", err)
		}
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("sweep scheduler started",
		"reset_schedule", s.config.ResetSchedule,
		"breach_schedule", s.config.BreachSchedule,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) add(spec string, fn func()) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	_, err := s.cron.AddFunc(spec, fn)
	return err
}

func (s *Scheduler) runReset(ctx context.Context) {
	s.logger.Debug("starting scheduled reset sweep")

	summary, err := s.sweeper.ResetSweep(ctx)
	if err != nil {
		s.logger.Error("scheduled reset sweep failed", "error", err)
		return
	}
	if summary.ResetCount > 0 || len(summary.Errors) > 0 {
		s.logger.Info("scheduled reset sweep completed",
			"reset", summary.ResetCount,
			"checked", summary.TotalChecked,
			"errors", len(summary.Errors),
		)
	}
}

func (s *Scheduler) runBreachCheck(ctx context.Context) {
	s.logger.Debug("starting scheduled breach check")

	if _, err := s.sweeper.BreachCheck(ctx); err != nil {
		s.logger.Error("scheduled breach check failed", "error", err)
	}
}

// Stop stops the scheduler and waits for any running sweep to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("sweep scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the earliest next scheduled sweep, or nil when nothing is
// scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *time.Time
	for _, entry := range s.cron.Entries() {
		if entry.Next.IsZero() {
			continue
		}
		if next == nil || entry.Next.Before(*next) {
			n := entry.Next
			next = &n
		}
	}
	return next
}
