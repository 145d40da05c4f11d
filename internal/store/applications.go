package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"loan-triage/internal/models"
	"loan-triage/internal/visibility"
)

const applicationColumns = `a.id, a.wp_entry_id, a.first_name, a.last_name, a.email, a.mobile,
	a.branch, a.status, a.assigned_to_id, COALESCE(u.username, ''), a.verification_status,
	a.details, a.closed_at, a.closed_by_id, a.cancellation_reason, a.created_at`

const applicationFrom = `FROM loan_applications a LEFT JOIN users u ON u.id = a.assigned_to_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.LoanApplication, error) {
	var (
		app        models.LoanApplication
		detailsRaw []byte
	)
	err := row.Scan(
		&app.ID, &app.WPEntryID, &app.FirstName, &app.LastName, &app.Email, &app.Mobile,
		&app.Branch, &app.Status, &app.AssignedToID, &app.AssignedToUsername, &app.VerificationStatus,
		&detailsRaw, &app.ClosedAt, &app.ClosedByID, &app.CancellationReason, &app.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(detailsRaw) > 0 {
		if err := json.Unmarshal(detailsRaw, &app.Details); err != nil {
			return nil, fmt.Errorf("decode details for application %d: %w", app.ID, err)
		}
	}
	if app.Details == nil {
		app.Details = models.Details{}
	}
	return &app, nil
}

// GetApplication returns the application or nil when absent.
func (s *Store) GetApplication(ctx context.Context, id int64) (*models.LoanApplication, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE a.id = $1", applicationColumns, applicationFrom)
	app, err := scanApplication(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get application %d: %w", id, err)
	}
	return app, nil
}

// ListApplications returns the page of applications visible under the
// compiled predicate, newest first, plus the total match count.
func (s *Store) ListApplications(ctx context.Context, pred visibility.Predicate, page, limit int) ([]models.LoanApplication, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM loan_applications a WHERE %s", pred.Where)
	if err := s.db.QueryRowContext(ctx, countQuery, pred.Args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	n := len(pred.Args)
	query := fmt.Sprintf(
		"SELECT %s %s WHERE %s ORDER BY a.created_at DESC LIMIT $%d OFFSET $%d",
		applicationColumns, applicationFrom, pred.Where, n+1, n+2,
	)
	args := append(append([]interface{}{}, pred.Args...), limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []models.LoanApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, *app)
	}
	return apps, total, rows.Err()
}

// UpsertSyncedEntry reconciles one external entry, keyed by wp_entry_id. On
// update only the reconciler-owned fields are touched: identity/content,
// branch and verification. Staff-set status and assignment are never
// clobbered.
func (s *Store) UpsertSyncedEntry(ctx context.Context, app *models.LoanApplication) (int64, error) {
	detailsJSON, err := json.Marshal(app.Details)
	if err != nil {
		return 0, fmt.Errorf("marshal details: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO loan_applications (
			wp_entry_id, first_name, last_name, email, mobile, branch,
			verification_status, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (wp_entry_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			mobile = EXCLUDED.mobile,
			branch = EXCLUDED.branch,
			verification_status = EXCLUDED.verification_status,
			details = EXCLUDED.details
		RETURNING id`,
		app.WPEntryID, app.FirstName, app.LastName, app.Email, app.Mobile, app.Branch,
		app.VerificationStatus, detailsJSON, app.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert entry %s: %w", app.WPEntryID, err)
	}
	return id, nil
}

// UpsertWebhookEntry ingests a direct webhook submission. Verification is not
// derived on this path, so an update leaves the stored flag alone.
func (s *Store) UpsertWebhookEntry(ctx context.Context, app *models.LoanApplication) (int64, error) {
	detailsJSON, err := json.Marshal(app.Details)
	if err != nil {
		return 0, fmt.Errorf("marshal details: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO loan_applications (
			wp_entry_id, first_name, last_name, email, mobile, branch, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (wp_entry_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			mobile = EXCLUDED.mobile,
			branch = EXCLUDED.branch,
			details = EXCLUDED.details
		RETURNING id`,
		app.WPEntryID, app.FirstName, app.LastName, app.Email, app.Mobile, app.Branch,
		detailsJSON, app.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert webhook entry %s: %w", app.WPEntryID, err)
	}
	return id, nil
}

// ClaimApplication atomically assigns an unassigned pending application. The
// check-and-set is a single conditional update; false means another caller
// won or the application left the claimable state.
func (s *Store) ClaimApplication(ctx context.Context, loanID, officerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET assigned_to_id = $1, status = 'in_progress'
		WHERE id = $2 AND assigned_to_id IS NULL AND status = 'pending'`,
		officerID, loanID,
	)
	if err != nil {
		return false, fmt.Errorf("claim application %d: %w", loanID, err)
	}
	return oneRowAffected(res)
}

// AssignApplication is the manager/admin direct assignment. Same conditional
// update as a claim; branch checks are the caller's concern.
func (s *Store) AssignApplication(ctx context.Context, loanID, officerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET assigned_to_id = $1, status = 'in_progress'
		WHERE id = $2 AND assigned_to_id IS NULL AND status = 'pending'`,
		officerID, loanID,
	)
	if err != nil {
		return false, fmt.Errorf("assign application %d: %w", loanID, err)
	}
	return oneRowAffected(res)
}

// ReassignApplication updates branch and/or assignee in one statement.
// Clearing the assignee resets status to pending; setting it forces
// in_progress. Terminal applications are frozen and never match.
func (s *Store) ReassignApplication(ctx context.Context, loanID int64, newBranch *string, setAssignee bool, officerID *int64) (bool, error) {
	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)

	if newBranch != nil {
		args = append(args, *newBranch)
		sets = append(sets, fmt.Sprintf("branch = $%d", len(args)))
	}
	if setAssignee {
		if officerID != nil {
			args = append(args, *officerID)
			sets = append(sets, fmt.Sprintf("assigned_to_id = $%d", len(args)), "status = 'in_progress'")
		} else {
			sets = append(sets, "assigned_to_id = NULL", "status = 'pending'")
		}
	}
	if len(sets) == 0 {
		return false, fmt.Errorf("reassign application %d: nothing to update", loanID)
	}

	args = append(args, loanID)
	query := fmt.Sprintf(
		"UPDATE loan_applications SET %s WHERE id = $%d AND status IN ('pending', 'in_progress')",
		strings.Join(sets, ", "), len(args),
	)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("reassign application %d: %w", loanID, err)
	}
	return oneRowAffected(res)
}

// CloseApplication transitions an open application to a terminal status,
// stamping closed_at/closed_by. False means the application was already
// terminal (or absent).
func (s *Store) CloseApplication(ctx context.Context, loanID int64, status models.Status, closedByID int64, reason string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET status = $1, closed_at = $2, closed_by_id = $3, cancellation_reason = $4
		WHERE id = $5 AND status IN ('pending', 'in_progress')`,
		string(status), now, closedByID, reason, loanID,
	)
	if err != nil {
		return false, fmt.Errorf("close application %d: %w", loanID, err)
	}
	return oneRowAffected(res)
}

// SetVerificationStatus overwrites the derived verification flag.
func (s *Store) SetVerificationStatus(ctx context.Context, loanID int64, verified bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE loan_applications SET verification_status = $1 WHERE id = $2`,
		verified, loanID,
	)
	if err != nil {
		return fmt.Errorf("set verification for application %d: %w", loanID, err)
	}
	return nil
}

// SearchApplicationsByMobile returns candidates whose mobile contains the
// given fragment, newest first. The personal-id suffix filter happens in the
// service, against the opaque details payload.
func (s *Store) SearchApplicationsByMobile(ctx context.Context, mobile string) ([]models.LoanApplication, error) {
	query := fmt.Sprintf(
		"SELECT %s %s WHERE a.mobile LIKE $1 ORDER BY a.created_at DESC",
		applicationColumns, applicationFrom,
	)
	rows, err := s.db.QueryContext(ctx, query, "%"+mobile+"%")
	if err != nil {
		return nil, fmt.Errorf("search by mobile: %w", err)
	}
	defer rows.Close()

	var apps []models.LoanApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

// CountApplications returns the total number of stored applications.
func (s *Store) CountApplications(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loan_applications`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}
	return total, nil
}

func oneRowAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
