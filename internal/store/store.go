// Package store owns persistence for loan applications, users, assignment
// requests and the settings singleton, including the conditional updates the
// lifecycle depends on.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"loan-triage/internal/common/logger"
)

// Store wraps the SQL database. All multi-step mutations run inside
// transactions; single-row lifecycle transitions are conditional updates so
// two concurrent callers can never both win.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func New(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "store"}),
	}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL DEFAULT 'officer',
		branches TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS loan_applications (
		id BIGSERIAL PRIMARY KEY,
		wp_entry_id TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		mobile TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		assigned_to_id BIGINT REFERENCES users(id),
		verification_status BOOLEAN NOT NULL DEFAULT FALSE,
		details JSONB NOT NULL DEFAULT '{}',
		closed_at TIMESTAMPTZ,
		closed_by_id BIGINT,
		cancellation_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loan_applications_branch ON loan_applications(branch)`,
	`CREATE INDEX IF NOT EXISTS idx_loan_applications_status ON loan_applications(status)`,
	`CREATE INDEX IF NOT EXISTS idx_loan_applications_created_at ON loan_applications(created_at)`,
	`CREATE TABLE IF NOT EXISTS assignment_requests (
		id BIGSERIAL PRIMARY KEY,
		loan_id BIGINT NOT NULL REFERENCES loan_applications(id),
		requested_by_id BIGINT NOT NULL REFERENCES users(id),
		status TEXT NOT NULL DEFAULT 'pending',
		handled_by_id BIGINT,
		handled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_assignment_requests_pending
		ON assignment_requests(loan_id, requested_by_id) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS settings (
		id BIGINT PRIMARY KEY,
		ad_server TEXT NOT NULL DEFAULT '',
		ad_port INT NOT NULL DEFAULT 389,
		ad_base_dn TEXT NOT NULL DEFAULT '',
		ad_domain TEXT NOT NULL DEFAULT '',
		ad_bind_user TEXT NOT NULL DEFAULT '',
		ad_bind_password TEXT NOT NULL DEFAULT '',
		ad_group_filter TEXT NOT NULL DEFAULT '',
		sync_interval INT NOT NULL DEFAULT 5,
		logo_url TEXT NOT NULL DEFAULT '',
		favicon_url TEXT NOT NULL DEFAULT '',
		last_sync_time TIMESTAMPTZ
	)`,
}
