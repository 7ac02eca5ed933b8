// ABOUTME: Integration tests for the executor and drain runner: retry/backoff
// ABOUTME: sequencing, unknown job types, terminal stability, drain counts.
package jobs_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/jobs"
	"github.com/pulsewatch/pulsewatch/internal/store"
	"github.com/pulsewatch/pulsewatch/internal/testutil"
)

// newRunner builds a registry/executor/runner trio over the test store.
func newRunner(s *testutil.TestDB, reg *jobs.Registry) *jobs.Runner {
	return jobs.NewRunner(jobs.NewExecutor(s.Store, reg), time.Second)
}

// forceDue rewinds a job's scheduled_at so the next claim picks it up
// without waiting out the backoff.
func forceDue(t *testing.T, s *testutil.TestDB, ctx context.Context, id int64) {
	t.Helper()
	_, err := s.Pool().Exec(ctx,
		`UPDATE jobs SET scheduled_at = now() - interval '1 second' WHERE id = $1`, id)
	if err != nil {
		t.Fatalf("force due: %v", err)
	}
}

func TestDrainProcessesJobToDone(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	reg := jobs.NewRegistry()
	reg.Register("send_alert", func(context.Context, map[string]any) error { return nil })

	job, err := s.EnqueueJob(ctx, store.EnqueueJobParams{
		JobType: "send_alert",
		Payload: map[string]any{"check_code": "abc", "new_status": "down"},
	})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	n, err := newRunner(s, reg).Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 1 {
		t.Errorf("Drain = %d, want 1", n)
	}

	stored, _ := s.GetJobByCode(ctx, job.Code)
	if stored.Status != store.JobDone {
		t.Errorf("Status = %q, want done", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", stored.Attempts)
	}
	if stored.StartedAt == nil || stored.CompletedAt == nil {
		t.Error("StartedAt and CompletedAt should both be set")
	}
	if stored.Error != "" {
		t.Errorf("Error = %q, want empty", stored.Error)
	}
}

func TestDrainCountsAllEligible(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	reg := jobs.NewRegistry()
	reg.Register("send_alert", func(context.Context, map[string]any) error { return nil })

	const n = 4
	for range n {
		if _, err := s.EnqueueJob(ctx, store.EnqueueJobParams{JobType: "send_alert"}); err != nil {
			t.Fatalf("EnqueueJob: %v", err)
		}
	}

	runner := newRunner(s, reg)
	got, err := runner.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got != n {
		t.Errorf("first Drain = %d, want %d", got, n)
	}

	// With nothing new eligible, a second cycle reports zero.
	got, err = runner.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain 2: %v", err)
	}
	if got != 0 {
		t.Errorf("second Drain = %d, want 0", got)
	}
}

func TestDrainSkipsFutureJobs(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	reg := jobs.NewRegistry()
	reg.Register("send_alert", func(context.Context, map[string]any) error { return nil })

	job, err := s.EnqueueJob(ctx, store.EnqueueJobParams{
		JobType:     "send_alert",
		ScheduledAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	n, err := newRunner(s, reg).Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 0 {
		t.Errorf("Drain = %d, want 0", n)
	}

	stored, _ := s.GetJobByCode(ctx, job.Code)
	if stored.Status != store.JobPending || stored.Attempts != 0 {
		t.Errorf("future job touched: status=%q attempts=%d", stored.Status, stored.Attempts)
	}
}

func TestUnknownJobTypeFailsAfterSingleAttempt(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	job, err := s.EnqueueJob(ctx, store.EnqueueJobParams{
		JobType:     "nonexistent_type",
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	n, err := newRunner(s, jobs.NewRegistry()).Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 1 {
		t.Errorf("Drain = %d, want 1 (failed jobs still count as attempted)", n)
	}

	stored, _ := s.GetJobByCode(ctx, job.Code)
	if stored.Status != store.JobFailed {
		t.Errorf("Status = %q, want failed", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", stored.Attempts)
	}
	if !strings.Contains(stored.Error, "unknown job type") {
		t.Errorf("Error = %q, want it to mention unknown job type", stored.Error)
	}
}

func TestFailingHandlerRetriesThenFails(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	reg := jobs.NewRegistry()
	reg.Register("flaky", func(context.Context, map[string]any) error {
		return errors.New("connection refused")
	})

	job, err := s.EnqueueJob(ctx, store.EnqueueJobParams{
		JobType:     "flaky",
		MaxAttempts: 2,
	})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	runner := newRunner(s, reg)

	// Attempt 1: back to pending with a future due time and the message stored.
	before := time.Now()
	if _, err := runner.Drain(ctx); err != nil {
		t.Fatalf("Drain 1: %v", err)
	}
	stored, _ := s.GetJobByCode(ctx, job.Code)
	if stored.Status != store.JobPending {
		t.Fatalf("after attempt 1: Status = %q, want pending", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Errorf("after attempt 1: Attempts = %d, want 1", stored.Attempts)
	}
	if !stored.ScheduledAt.After(before) {
		t.Errorf("ScheduledAt = %v, want after the failure time", stored.ScheduledAt)
	}
	if stored.Error != "connection refused" {
		t.Errorf("Error = %q", stored.Error)
	}

	// Attempt 2 exhausts the budget: terminal failed.
	forceDue(t, s, ctx, job.ID)
	if _, err := runner.Drain(ctx); err != nil {
		t.Fatalf("Drain 2: %v", err)
	}
	stored, _ = s.GetJobByCode(ctx, job.Code)
	if stored.Status != store.JobFailed {
		t.Errorf("after attempt 2: Status = %q, want failed", stored.Status)
	}
	if stored.Attempts != 2 {
		t.Errorf("after attempt 2: Attempts = %d, want 2", stored.Attempts)
	}
	if stored.Error == "" {
		t.Error("terminal failure must retain the error message")
	}
	if stored.CompletedAt == nil {
		t.Error("CompletedAt should be set on terminal failure")
	}
}

func TestTerminalJobsNeverReprocessed(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	reg := jobs.NewRegistry()
	reg.Register("send_alert", func(context.Context, map[string]any) error { return nil })
	runner := newRunner(s, reg)

	done, err := s.EnqueueJob(ctx, store.EnqueueJobParams{JobType: "send_alert"})
	if err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := runner.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	// A second drain must not touch the done job even though its
	// scheduled_at is in the past.
	n, err := runner.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain 2: %v", err)
	}
	if n != 0 {
		t.Errorf("Drain 2 = %d, want 0", n)
	}
	stored, _ := s.GetJobByCode(ctx, done.Code)
	if stored.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 (unchanged)", stored.Attempts)
	}
}

func TestOneBadJobDoesNotHaltDrain(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	reg := jobs.NewRegistry()
	reg.Register("good", func(context.Context, map[string]any) error { return nil })
	reg.Register("bad", func(context.Context, map[string]any) error {
		panic("handler blew up")
	})

	bad, err := s.EnqueueJob(ctx, store.EnqueueJobParams{
		JobType: "bad", MaxAttempts: 1,
		ScheduledAt: time.Now().Add(-2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("EnqueueJob bad: %v", err)
	}
	good, err := s.EnqueueJob(ctx, store.EnqueueJobParams{
		JobType: "good", ScheduledAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("EnqueueJob good: %v", err)
	}

	n, err := newRunner(s, reg).Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 2 {
		t.Errorf("Drain = %d, want 2", n)
	}

	badStored, _ := s.GetJobByCode(ctx, bad.Code)
	if badStored.Status != store.JobFailed {
		t.Errorf("bad job Status = %q, want failed", badStored.Status)
	}
	if !strings.Contains(badStored.Error, "handler blew up") {
		t.Errorf("bad job Error = %q, want the panic message", badStored.Error)
	}
	goodStored, _ := s.GetJobByCode(ctx, good.Code)
	if goodStored.Status != store.JobDone {
		t.Errorf("good job Status = %q, want done", goodStored.Status)
	}
}

func TestHandlerReceivesPayload(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	var got map[string]any
	reg := jobs.NewRegistry()
	reg.Register("send_alert", func(_ context.Context, payload map[string]any) error {
		got = payload
		return nil
	})

	if _, err := s.EnqueueJob(ctx, store.EnqueueJobParams{
		JobType: "send_alert",
		Payload: map[string]any{"check_code": "abc", "new_status": "down"},
	}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := newRunner(s, reg).Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if got["check_code"] != "abc" || got["new_status"] != "down" {
		t.Errorf("handler payload = %v", got)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()
	if got := jobs.Summary(0); !strings.Contains(got, "0") {
		t.Errorf("Summary(0) = %q, want the literal 0", got)
	}
	if got := jobs.Summary(2); !strings.Contains(got, "2") {
		t.Errorf("Summary(2) = %q, want the literal 2", got)
	}
}
