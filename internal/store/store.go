// Package store provides the data access layer. All coordination between
// concurrent workers goes through Postgres itself — the claim transition is
// a single FOR UPDATE SKIP LOCKED statement, the idempotent enqueue rides a
// partial unique index. No in-memory locking is involved anywhere.
package store

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Store is the central data access object. Simple lookups and the job state
// machine run on the pgx pool directly; dynamic listing queries are built
// with squirrel and run through the stdlib-wrapped *sql.DB.
type Store struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

// New creates a Store backed by pool. The stdlib adapter shares the same
// pool, so both paths see the same connections and limits.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		db:   stdlib.OpenDBFromPool(pool),
	}
}

// Pool returns the underlying pgxpool for callers that need pgx native
// operations (health checks, test fixtures).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// psql is the squirrel statement builder configured for Postgres placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// nullableTime converts a *time.Time scan target to sql.NullTime and back.
func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
