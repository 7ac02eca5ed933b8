// ABOUTME: Store methods for the durable job queue: idempotent enqueue, atomic claim,
// ABOUTME: and the execute-side state transitions (done / retry / failed).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Job statuses. pending and processing are live; done and failed are
// terminal and never transition further.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobDone       = "done"
	JobFailed     = "failed"
)

// DefaultMaxAttempts is the attempt ceiling applied when an enqueue does not
// specify one.
const DefaultMaxAttempts = 3

// Job is one unit of deferred work tracked through a persisted record.
// Code is the external handle; ID is the internal row id and never leaves
// the store/API boundary.
type Job struct {
	ID             int64
	Code           uuid.UUID
	JobType        string
	Payload        map[string]any
	Status         string
	Attempts       int
	MaxAttempts    int
	IdempotencyKey string
	Created        time.Time
	ScheduledAt    time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	Error          string
}

// APIJob is the serialized projection exposed by the jobs listing API.
// started_at and completed_at render as JSON null when unset; error renders
// as an empty string.
type APIJob struct {
	UUID           string         `json:"uuid"`
	JobType        string         `json:"job_type"`
	Payload        map[string]any `json:"payload"`
	Status         string         `json:"status"`
	Attempts       int            `json:"attempts"`
	MaxAttempts    int            `json:"max_attempts"`
	IdempotencyKey string         `json:"idempotency_key"`
	Created        time.Time      `json:"created"`
	ScheduledAt    time.Time      `json:"scheduled_at"`
	StartedAt      *time.Time     `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	Error          string         `json:"error"`
}

// ToAPI returns the listing projection of j.
func (j *Job) ToAPI() APIJob {
	return APIJob{
		UUID:           j.Code.String(),
		JobType:        j.JobType,
		Payload:        j.Payload,
		Status:         j.Status,
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		IdempotencyKey: j.IdempotencyKey,
		Created:        j.Created,
		ScheduledAt:    j.ScheduledAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		Error:          j.Error,
	}
}

const jobColumns = `id, code, job_type, payload, status, attempts,
	max_attempts, idempotency_key, created, scheduled_at, started_at,
	completed_at, error`

// pgx.Row and *sql.Row both satisfy this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j         Job
		payload   []byte
		started   sql.NullTime
		completed sql.NullTime
	)
	err := row.Scan(
		&j.ID, &j.Code, &j.JobType, &payload, &j.Status, &j.Attempts,
		&j.MaxAttempts, &j.IdempotencyKey, &j.Created, &j.ScheduledAt,
		&started, &completed, &j.Error,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &j.Payload); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	j.StartedAt = nullableTime(started)
	j.CompletedAt = nullableTime(completed)
	return &j, nil
}

// EnqueueJobParams holds the caller-supplied fields for EnqueueJob.
// Zero values select the defaults: ScheduledAt = now, MaxAttempts = 3.
type EnqueueJobParams struct {
	JobType        string
	Payload        map[string]any
	IdempotencyKey string
	ScheduledAt    time.Time
	MaxAttempts    int
}

// EnqueueJob inserts a new pending job, or — when a non-empty idempotency
// key already maps to a job — returns that existing job unmodified with the
// new arguments discarded. The insert-or-fetch is atomic under concurrent
// duplicate enqueues: the partial unique index on idempotency_key arbitrates,
// never application code.
func (s *Store) EnqueueJob(ctx context.Context, p EnqueueJobParams) (*Job, error) {
	if p.Payload == nil {
		p.Payload = map[string]any{}
	}
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	if p.ScheduledAt.IsZero() {
		p.ScheduledAt = time.Now()
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (job_type, payload, idempotency_key, scheduled_at, max_attempts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) WHERE idempotency_key <> '' DO NOTHING
		RETURNING `+jobColumns,
		p.JobType, payload, p.IdempotencyKey, p.ScheduledAt, p.MaxAttempts,
	)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	// Conflict path: a job with this key already exists. Return it as-is.
	existing, err := s.GetJobByIdempotencyKey(ctx, p.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("enqueue job: key %q conflicted but no row found", p.IdempotencyKey)
	}
	return existing, nil
}

// ClaimNextJob atomically selects the oldest-due pending job, transitions it
// to processing, and sets started_at on first claim — all in one statement,
// so no two concurrent callers can ever receive the same job. Returns
// (nil, nil) when nothing is eligible; calling in a tight loop is safe.
func (s *Store) ClaimNextJob(ctx context.Context) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'processing',
		    started_at = COALESCE(started_at, now())
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND scheduled_at <= now()
			ORDER BY scheduled_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// BeginJobAttempt increments the job's attempt counter and returns the new
// count. Persisted before the handler runs, so a worker crash mid-handler
// still counts the attempt.
func (s *Store) BeginJobAttempt(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx,
		`UPDATE jobs SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`,
		id,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("begin job attempt %d: %w", id, err)
	}
	return attempts, nil
}

// MarkJobDone records a successful execution: terminal done status,
// completion timestamp, error cleared.
func (s *Store) MarkJobDone(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'done', completed_at = now(), error = '' WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark job %d done: %w", id, err)
	}
	return nil
}

// RetryJobLater records a failed attempt with retry budget remaining: the
// job returns to pending with the failure message and a future due time.
// completed_at stays null; started_at is not reset.
func (s *Store) RetryJobLater(ctx context.Context, id int64, errMsg string, scheduledAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'pending', error = $2, scheduled_at = $3 WHERE id = $1`,
		id, errMsg, scheduledAt,
	)
	if err != nil {
		return fmt.Errorf("retry job %d: %w", id, err)
	}
	return nil
}

// MarkJobFailed records a terminal failure after the attempt ceiling is
// exhausted. The last failure message is retained in error.
func (s *Store) MarkJobFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', error = $2, completed_at = now() WHERE id = $1`,
		id, errMsg,
	)
	if err != nil {
		return fmt.Errorf("mark job %d failed: %w", id, err)
	}
	return nil
}

// GetJobByCode returns the job with the given external code, or (nil, nil)
// if it does not exist.
func (s *Store) GetJobByCode(ctx context.Context, code uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE code = $1`, code)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", code, err)
	}
	return job, nil
}

// GetJobByIdempotencyKey returns the job holding the given non-empty key,
// or (nil, nil) if no such job exists.
func (s *Store) GetJobByIdempotencyKey(ctx context.Context, key string) (*Job, error) {
	if key == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE idempotency_key = $1`, key)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by key %q: %w", key, err)
	}
	return job, nil
}

// CountJobs returns the total number of job rows.
func (s *Store) CountJobs(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// JobFilter narrows ListProjectJobs. Zero values mean no filtering.
type JobFilter struct {
	Status  string
	JobType string
	Limit   int
}

// ListProjectJobs returns jobs visible to a project: those whose payload
// check_code references one of the project's checks. Ordered by scheduled_at
// then id, matching the queue's own ordering.
func (s *Store) ListProjectJobs(ctx context.Context, projectID int64, f JobFilter) ([]*Job, error) {
	q := psql.Select(
		"id", "code", "job_type", "payload", "status", "attempts",
		"max_attempts", "idempotency_key", "created", "scheduled_at",
		"started_at", "completed_at", "error",
	).
		From("jobs").
		Where("payload ->> 'check_code' IN (SELECT code::text FROM checks WHERE project_id = ?)", projectID).
		OrderBy("scheduled_at ASC", "id ASC")

	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}
	if f.JobType != "" {
		q = q.Where(sq.Eq{"job_type": f.JobType})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list jobs query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list project jobs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list project jobs: %w", err)
	}
	return jobs, nil
}
