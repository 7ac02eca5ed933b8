// ABOUTME: Executor drives one claimed job through a single execution attempt:
// ABOUTME: count the attempt, dispatch by job type, persist done/retry/failed.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/store"
)

// Executor runs claimed jobs against the handler registry and persists the
// outcome. Handler failures never escape Execute; only store write errors do.
type Executor struct {
	store    *store.Store
	registry *Registry
}

// NewExecutor creates an Executor backed by s and reg.
func NewExecutor(s *store.Store, reg *Registry) *Executor {
	return &Executor{store: s, registry: reg}
}

// Execute runs one attempt of a job that the caller has just claimed.
//
// The attempt counter is persisted before the handler runs, so a crash
// mid-handler still consumes retry budget. Unknown job types are handled as
// ordinary failures and retried like any other — callers registering a
// handler late still get the remaining attempts.
func (e *Executor) Execute(ctx context.Context, job *store.Job) error {
	attempts, err := e.store.BeginJobAttempt(ctx, job.ID)
	if err != nil {
		return err
	}
	job.Attempts = attempts

	handlerErr := e.dispatch(ctx, job)
	if handlerErr == nil {
		return e.store.MarkJobDone(ctx, job.ID)
	}

	if attempts < job.MaxAttempts {
		due := time.Now().Add(Backoff(attempts))
		return e.store.RetryJobLater(ctx, job.ID, handlerErr.Error(), due)
	}
	return e.store.MarkJobFailed(ctx, job.ID, handlerErr.Error())
}

// dispatch looks up and invokes the handler for the job's type. A panicking
// handler is converted to an error so one bad job cannot take down the
// worker that claimed it.
func (e *Executor) dispatch(ctx context.Context, job *store.Job) (err error) {
	handler, ok := e.registry.Get(job.JobType)
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.JobType)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return handler(ctx, job.Payload)
}
