/*
scheduler.go - Periodic recalculation of completed jobs

PURPOSE:
  Re-runs RecalculateAllCompletedJobs on an interval so configuration
  changes, late roster edits and resolved incidents reach stored pay without
  an operator. Every run, scheduled or manual, is recorded as a RecalcRun.

DESIGN:
  - One background goroutine, ticker driven, runs once immediately on Start
  - Runs never overlap: a trigger arriving while a run is in progress fails
    with ErrRecalcInProgress (manual) or is skipped (scheduled)
  - The batch itself fans out with bounded concurrency inside p4p.Service

CONFIGURATION:
  - Interval: How often to run (default: 1 hour)
  - Enabled:  Whether Start launches the loop (default: true)

USAGE:
  scheduler := NewRecalcScheduler(store, svc, logger)
  scheduler.Interval = cfg.Recalc.Interval
  scheduler.Start(ctx)
  defer scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRecalc endpoint (manual run)
  - p4p/service.go: RecalculateAllCompletedJobs
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldcrew/p4p-engine/p4p"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerCLI       = "cli"
)

var ErrRecalcInProgress = errors.New("recalculation already in progress")

// RecalcScheduler runs bulk recalculation periodically and on demand.
type RecalcScheduler struct {
	Runs     p4p.RunStore
	Service  *p4p.Service
	Logger   *zap.Logger
	Interval time.Duration
	Enabled  bool

	running sync.Mutex // held for the duration of one run

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewRecalcScheduler(runs p4p.RunStore, svc *p4p.Service, logger *zap.Logger) *RecalcScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecalcScheduler{
		Runs:     runs,
		Service:  svc,
		Logger:   logger.Named("scheduler"),
		Interval: time.Hour,
		Enabled:  true,
		now:      time.Now,
	}
}

// Start launches the loop. It is a no-op when disabled or already started.
func (rs *RecalcScheduler) Start(ctx context.Context) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("disabled, not starting")
		return
	}
	if rs.cancel != nil {
		return
	}

	ctx, rs.cancel = context.WithCancel(ctx)
	rs.wg.Add(1)
	go rs.run(ctx)

	rs.Logger.Info("started", zap.Duration("interval", rs.Interval))
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (rs *RecalcScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cancel != nil {
		rs.cancel()
		rs.wg.Wait()
		rs.cancel = nil
		rs.Logger.Info("stopped")
	}
}

func (rs *RecalcScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	ticker := time.NewTicker(rs.Interval)
	defer ticker.Stop()

	// Run immediately on start
	rs.scheduledRun(ctx)

	for {
		select {
		case <-ticker.C:
			rs.scheduledRun(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (rs *RecalcScheduler) scheduledRun(ctx context.Context) {
	_, _, err := rs.RunNow(ctx, TriggerScheduled)
	switch {
	case errors.Is(err, ErrRecalcInProgress):
		rs.Logger.Info("previous run still in progress, skipping")
	case err != nil && ctx.Err() == nil:
		rs.Logger.Error("scheduled recalculation failed", zap.Error(err))
	}
}

// RunNow performs one recalculation and records it. The returned run is the
// final RecalcRun row.
func (rs *RecalcScheduler) RunNow(ctx context.Context, trigger string) (p4p.RecalcRun, p4p.BatchSummary, error) {
	if !rs.running.TryLock() {
		return p4p.RecalcRun{}, p4p.BatchSummary{}, ErrRecalcInProgress
	}
	defer rs.running.Unlock()

	run := p4p.RecalcRun{
		ID:        "run-" + uuid.NewString(),
		Trigger:   trigger,
		Status:    p4p.RunRunning,
		StartedAt: rs.now(),
	}
	if err := rs.Runs.SaveRecalcRun(ctx, run); err != nil {
		return run, p4p.BatchSummary{}, fmt.Errorf("failed to save run record: %w", err)
	}

	summary, err := rs.Service.RecalculateAllCompletedJobs(ctx)
	completed := rs.now()
	run.CompletedAt = &completed
	if err != nil {
		run.Status = p4p.RunFailed
		run.Error = err.Error()
	} else {
		run.Status = p4p.RunCompleted
		run.Total = summary.Total
		run.Succeeded = summary.Succeeded
		run.Skipped = summary.Skipped
		run.Failed = summary.Failed
	}

	// The run row is written even when ctx was cancelled mid-batch.
	if saveErr := rs.Runs.SaveRecalcRun(context.WithoutCancel(ctx), run); saveErr != nil {
		return run, summary, fmt.Errorf("failed to update run record: %w", saveErr)
	}
	if err != nil {
		return run, summary, err
	}

	rs.Logger.Info("recalculation run finished",
		zap.String("run_id", run.ID),
		zap.String("trigger", trigger),
		zap.Int("total", run.Total),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed))
	return run, summary, nil
}

// NextRunTime is an estimate for display.
func (rs *RecalcScheduler) NextRunTime() time.Time {
	return rs.now().Add(rs.Interval)
}
