// ABOUTME: Store methods for projects and their API keys.
// ABOUTME: LookupAPIKey is the authentication hot-path; only key hashes are stored.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Project groups checks under one owner. API keys are scoped to a project.
type Project struct {
	ID      int64
	Code    uuid.UUID
	Name    string
	Created time.Time
}

// APIKey is a project-scoped machine credential. ReadOnly keys may call
// GET endpoints only.
type APIKey struct {
	ID        int64
	ProjectID int64
	KeyHash   string
	ReadOnly  bool
	Created   time.Time
}

// CreateProject inserts a new project.
func (s *Store) CreateProject(ctx context.Context, name string) (*Project, error) {
	var p Project
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (name) VALUES ($1)
		RETURNING id, code, name, created_at`,
		name,
	).Scan(&p.ID, &p.Code, &p.Name, &p.Created)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &p, nil
}

// GetProject returns the project with the given id, or (nil, nil) if it
// does not exist.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	var p Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, created_at FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Code, &p.Name, &p.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return &p, nil
}

// CreateAPIKey inserts a new API key record. keyHash is sha256(raw_key);
// the raw key itself never reaches the store.
func (s *Store) CreateAPIKey(ctx context.Context, projectID int64, keyHash string, readOnly bool) (*APIKey, error) {
	var k APIKey
	err := s.pool.QueryRow(ctx, `
		INSERT INTO api_keys (project_id, key_hash, read_only)
		VALUES ($1, $2, $3)
		RETURNING id, project_id, key_hash, read_only, created_at`,
		projectID, keyHash, readOnly,
	).Scan(&k.ID, &k.ProjectID, &k.KeyHash, &k.ReadOnly, &k.Created)
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return &k, nil
}

// LookupAPIKey returns the active (non-revoked) key matching keyHash, or
// (nil, nil) if not found.
func (s *Store) LookupAPIKey(ctx context.Context, keyHash string) (*APIKey, error) {
	var k APIKey
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, key_hash, read_only, created_at
		FROM api_keys
		WHERE key_hash = $1 AND revoked_at IS NULL`,
		keyHash,
	).Scan(&k.ID, &k.ProjectID, &k.KeyHash, &k.ReadOnly, &k.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	return &k, nil
}

// RevokeAPIKey marks the key as revoked. An unknown id is silently a no-op.
func (s *Store) RevokeAPIKey(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("revoke api key %d: %w", id, err)
	}
	return nil
}
