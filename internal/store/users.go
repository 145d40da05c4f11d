package store

import (
	"context"
	"database/sql"
	"fmt"

	"loan-triage/internal/models"
)

const userColumns = `id, username, role, branches, password_hash, created_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Role, &u.Branches, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser returns the user or nil when absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userColumns)
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByUsername returns the user or nil when absent. Callers must pass a
// directory-clean (domain-stripped) username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE username = $1", userColumns)
	u, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	return u, nil
}

// ListUsers returns all users, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users ORDER BY created_at DESC", userColumns)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpsertUser creates or updates a user keyed by username, setting role and
// branches. The password hash is left alone on update.
func (s *Store) UpsertUser(ctx context.Context, username string, role models.Role, branches string) (*models.User, error) {
	query := fmt.Sprintf(`
		INSERT INTO users (username, role, branches)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET role = EXCLUDED.role, branches = EXCLUDED.branches
		RETURNING %s`, userColumns)
	u, err := scanUser(s.db.QueryRowContext(ctx, query, username, string(role), branches))
	if err != nil {
		return nil, fmt.Errorf("upsert user %q: %w", username, err)
	}
	return u, nil
}

// CreateUser inserts a new user (auto-registration path).
func (s *Store) CreateUser(ctx context.Context, username string, role models.Role, branches string) (*models.User, error) {
	query := fmt.Sprintf(`
		INSERT INTO users (username, role, branches)
		VALUES ($1, $2, $3)
		RETURNING %s`, userColumns)
	u, err := scanUser(s.db.QueryRowContext(ctx, query, username, string(role), branches))
	if err != nil {
		return nil, fmt.Errorf("create user %q: %w", username, err)
	}
	return u, nil
}

// DeleteUser removes a user. False when no such user exists.
func (s *Store) DeleteUser(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete user %d: %w", id, err)
	}
	return oneRowAffected(res)
}

// SetUserPassword stores a local password hash.
func (s *Store) SetUserPassword(ctx context.Context, id int64, passwordHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return false, fmt.Errorf("set password for user %d: %w", id, err)
	}
	return oneRowAffected(res)
}

// EnsureAdminUser guarantees the default admin account exists with wildcard
// branch access. Runs at startup.
func (s *Store) EnsureAdminUser(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, role, branches)
		VALUES ('admin', 'admin', 'All')
		ON CONFLICT (username) DO UPDATE SET role = 'admin', branches = 'All'`)
	if err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	}
	return nil
}
