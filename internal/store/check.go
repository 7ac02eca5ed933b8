// ABOUTME: Store methods for checks and ping ingestion. A status-changing ping
// ABOUTME: enqueues a send_alert job with a per-event idempotency key.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Check statuses. A check is born new, flips to up/down as pings arrive,
// and can be paused by its owner.
const (
	CheckNew    = "new"
	CheckUp     = "up"
	CheckDown   = "down"
	CheckPaused = "paused"
)

// Ping actions. success and fail drive status transitions; start and log
// are recorded without touching the status.
const (
	PingSuccess = "success"
	PingFail    = "fail"
	PingStart   = "start"
	PingLog     = "log"
)

// JobTypeSendAlert is the job type enqueued when a ping changes a check's status.
const JobTypeSendAlert = "send_alert"

// Check is a monitored entity. Code is the external handle used in ping URLs
// and in send_alert payloads.
type Check struct {
	ID        int64
	Code      uuid.UUID
	ProjectID int64
	Name      string
	Status    string
	LastPing  *time.Time
	Created   time.Time
}

const checkColumns = `id, code, project_id, name, status, last_ping, created_at`

func scanCheck(row rowScanner) (*Check, error) {
	var (
		c        Check
		lastPing sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Code, &c.ProjectID, &c.Name, &c.Status, &lastPing, &c.Created)
	if err != nil {
		return nil, err
	}
	c.LastPing = nullableTime(lastPing)
	return &c, nil
}

// CreateCheck inserts a new check for the given project with status new.
func (s *Store) CreateCheck(ctx context.Context, projectID int64, name string) (*Check, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO checks (project_id, name)
		VALUES ($1, $2)
		RETURNING `+checkColumns,
		projectID, name,
	)
	c, err := scanCheck(row)
	if err != nil {
		return nil, fmt.Errorf("create check: %w", err)
	}
	return c, nil
}

// GetCheckByCode returns the check with the given external code, or
// (nil, nil) if it does not exist.
func (s *Store) GetCheckByCode(ctx context.Context, code uuid.UUID) (*Check, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+checkColumns+` FROM checks WHERE code = $1`, code)
	c, err := scanCheck(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get check %s: %w", code, err)
	}
	return c, nil
}

// ListProjectChecks returns all checks for a project, newest first.
func (s *Store) ListProjectChecks(ctx context.Context, projectID int64) ([]*Check, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+checkColumns+` FROM checks WHERE project_id = $1 ORDER BY id DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var checks []*Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check row: %w", err)
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	return checks, nil
}

// RegisterPing records a ping against the check, applies the resulting
// status transition, and on a status change enqueues a send_alert job.
// Repeated pings that do not change the status enqueue nothing. The
// returned check reflects the post-ping state.
//
// The idempotency key embeds the event timestamp, so a retried upstream
// delivery of the same event collapses to one job while distinct events
// always get distinct jobs.
func (s *Store) RegisterPing(ctx context.Context, check *Check, action, remoteAddr string) (*Check, error) {
	now := time.Now()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pings (check_id, action, remote_addr) VALUES ($1, $2, $3)`,
		check.ID, action, remoteAddr,
	)
	if err != nil {
		return nil, fmt.Errorf("record ping: %w", err)
	}

	newStatus := check.Status
	switch action {
	case PingSuccess:
		newStatus = CheckUp
	case PingFail:
		newStatus = CheckDown
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE checks SET status = $2, last_ping = $3 WHERE id = $1`,
		check.ID, newStatus, now,
	)
	if err != nil {
		return nil, fmt.Errorf("update check status: %w", err)
	}

	if newStatus != check.Status {
		key := fmt.Sprintf("alert:%s:%s:%d", check.Code, newStatus, now.UnixNano())
		_, err = s.EnqueueJob(ctx, EnqueueJobParams{
			JobType: JobTypeSendAlert,
			Payload: map[string]any{
				"check_code": check.Code.String(),
				"new_status": newStatus,
			},
			IdempotencyKey: key,
		})
		if err != nil {
			return nil, fmt.Errorf("enqueue alert for check %s: %w", check.Code, err)
		}
	}

	updated := *check
	updated.Status = newStatus
	updated.LastPing = &now
	return &updated, nil
}
