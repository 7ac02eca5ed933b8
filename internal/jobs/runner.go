// ABOUTME: Runner drains the job queue: claim → execute until no job is
// ABOUTME: claimable. Start polls Drain on a ticker for daemon deployments.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Runner repeatedly claims and executes jobs. Any number of runners may
// operate on the same database concurrently; the claim statement guarantees
// each job goes to exactly one of them.
type Runner struct {
	executor *Executor
	interval time.Duration
}

// NewRunner creates a Runner polling at the given interval when started as
// a daemon. The interval does not affect Drain.
func NewRunner(e *Executor, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Runner{executor: e, interval: interval}
}

// Drain claims and executes jobs until a claim comes back empty, and
// returns the number of jobs attempted (regardless of outcome). A failing
// handler never stops the drain; a store error from persisting one job's
// outcome is logged and the drain moves on to the next claim.
func (r *Runner) Drain(ctx context.Context) (int, error) {
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		job, err := r.executor.store.ClaimNextJob(ctx)
		if err != nil {
			return count, fmt.Errorf("drain: %w", err)
		}
		if job == nil {
			return count, nil
		}

		count++
		if err := r.executor.Execute(ctx, job); err != nil {
			slog.Error("job outcome not persisted",
				"job", job.Code, "job_type", job.JobType, "error", err)
		}
	}
}

// Summary formats a drain result for operator output.
func Summary(count int) string {
	return fmt.Sprintf("Processed %d job(s)", count)
}

// Start drains the queue on a ticker until ctx is cancelled. Uses
// time.NewTicker (not time.After) to avoid timer leaks.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("job runner started", "poll_interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("job runner stopping")
			return
		case <-ticker.C:
			n, err := r.Drain(ctx)
			if err != nil && ctx.Err() == nil {
				slog.Error("drain failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("drained jobs", "count", n)
			}
		}
	}
}
