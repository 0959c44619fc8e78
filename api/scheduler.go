/*
scheduler.go - Automated arrears scheduler

PURPOSE:
  Periodically recomputes the club arrears report, publishes the totals as
  Prometheus gauges and records each pass as an arrears run.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start, then on every tick
  - Records runs as running, then completed or failed, for audit and UI
  - A club without settings is skipped quietly; there is nothing to check

CONFIGURATION:
  - Interval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewArrearsScheduler(calc, store, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerArrearsRun endpoint (manual run)
  - dues/summary.go: Calculator.Arrears
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mouros/motohub/dues"
	"github.com/mouros/motohub/generic"
	"github.com/mouros/motohub/metrics"
	"github.com/mouros/motohub/observability"
)

// ArrearsScheduler handles the periodic arrears check.
type ArrearsScheduler struct {
	Calculator *dues.Calculator
	Runs       generic.RunStore
	Log        *zap.Logger
	Interval   time.Duration
	Enabled    bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewArrearsScheduler creates a new scheduler.
func NewArrearsScheduler(calc *dues.Calculator, runs generic.RunStore, log *zap.Logger) *ArrearsScheduler {
	return &ArrearsScheduler{
		Calculator: calc,
		Runs:       runs,
		Log:        log,
		Interval:   time.Hour,
		Enabled:    true,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *ArrearsScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.Interval <= 0 {
		s.Log.Info("arrears scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.Log.Info("arrears scheduler started", zap.Duration("interval", s.Interval))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *ArrearsScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Log.Info("arrears scheduler stopped")
}

func (s *ArrearsScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.check(ctx)
	for {
		select {
		case <-ticker.C:
			s.check(ctx)
		case <-stop:
			return
		}
	}
}

func (s *ArrearsScheduler) check(ctx context.Context) {
	run, err := s.RunNow(ctx)
	switch {
	case errors.Is(err, generic.ErrClubSettingsNotFound):
		s.Log.Debug("arrears check skipped, club settings not configured")
	case err != nil:
		s.Log.Error("arrears check failed", zap.String("run_id", run.ID), zap.Error(err))
	default:
		s.Log.Info("arrears check completed",
			zap.String("run_id", run.ID),
			zap.Int("year", run.Year),
			zap.Int("members_checked", run.MembersChecked),
			zap.Int("members_in_arrears", run.MembersInArrears),
			zap.String("outstanding", run.TotalOutstanding.String()),
		)
	}
}

// RunNow computes the arrears report once and records the run. Missing
// club settings return the error without recording anything; any other
// failure is recorded as a failed run and returned alongside it.
func (s *ArrearsScheduler) RunNow(ctx context.Context) (generic.ArrearsRun, error) {
	if _, err := s.Calculator.Settings.GetClubSettings(ctx); err != nil {
		return generic.ArrearsRun{}, err
	}

	now := s.Calculator.Clock.Now()
	run := generic.ArrearsRun{
		ID:        uuid.NewString(),
		Year:      now.Year(),
		Status:    generic.RunRunning,
		StartedAt: now,
	}
	if err := s.Runs.SaveArrearsRun(ctx, run); err != nil {
		return generic.ArrearsRun{}, err
	}

	report, err := s.Calculator.Arrears(ctx)
	done := s.Calculator.Clock.Now()
	run.CompletedAt = &done
	if err != nil {
		run.Status = generic.RunFailed
		run.Error = err.Error()
		metrics.ArrearsRuns.WithLabelValues(string(generic.RunFailed)).Inc()
		observability.CaptureErr(err)
		if saveErr := s.Runs.SaveArrearsRun(ctx, run); saveErr != nil {
			s.Log.Warn("failed to record arrears run", zap.String("run_id", run.ID), zap.Error(saveErr))
		}
		return run, err
	}

	run.Status = generic.RunCompleted
	run.MembersChecked = report.MembersChecked
	run.MembersInArrears = len(report.Lines)
	run.TotalOutstanding = report.TotalOutstanding
	metrics.ArrearsRuns.WithLabelValues(string(generic.RunCompleted)).Inc()
	metrics.SetArrears(run.MembersInArrears, report.TotalOutstanding.Value.InexactFloat64())

	if err := s.Runs.SaveArrearsRun(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}
