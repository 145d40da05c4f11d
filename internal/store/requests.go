package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"loan-triage/internal/models"
)

// ErrDuplicatePendingRequest signals a second pending request from the same
// officer for the same loan. Backed by a partial unique index so concurrent
// submits cannot both slip through.
var ErrDuplicatePendingRequest = errors.New("duplicate pending assignment request")

const uniqueViolation = "23505"

// CreateAssignmentRequest files a pending claim request.
func (s *Store) CreateAssignmentRequest(ctx context.Context, loanID, requestedByID int64) (*models.AssignmentRequest, error) {
	var req models.AssignmentRequest
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO assignment_requests (loan_id, requested_by_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING id, loan_id, requested_by_id, status, created_at`,
		loanID, requestedByID,
	).Scan(&req.ID, &req.LoanID, &req.RequestedByID, &req.Status, &req.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, ErrDuplicatePendingRequest
		}
		return nil, fmt.Errorf("create assignment request: %w", err)
	}
	return &req, nil
}

// GetAssignmentRequest returns the request or nil when absent.
func (s *Store) GetAssignmentRequest(ctx context.Context, id int64) (*models.AssignmentRequest, error) {
	var req models.AssignmentRequest
	err := s.db.QueryRowContext(ctx, `
		SELECT id, loan_id, requested_by_id, status, handled_by_id, handled_at, created_at
		FROM assignment_requests WHERE id = $1`,
		id,
	).Scan(&req.ID, &req.LoanID, &req.RequestedByID, &req.Status, &req.HandledByID, &req.HandledAt, &req.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment request %d: %w", id, err)
	}
	return &req, nil
}

// ApproveAssignmentRequest runs the arbitration approval as one transaction:
// assign the loan to the requester, mark the request approved, reject every
// sibling pending request for the same loan. All three succeed or none do.
// False means the loan was no longer claimable or the request no longer
// pending; the transaction is rolled back in that case.
func (s *Store) ApproveAssignmentRequest(ctx context.Context, requestID, loanID, requesterID, handlerID int64, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin approve tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE loan_applications
		SET assigned_to_id = $1, status = 'in_progress'
		WHERE id = $2 AND assigned_to_id IS NULL AND status = 'pending'`,
		requesterID, loanID,
	)
	if err != nil {
		return false, fmt.Errorf("approve: assign loan %d: %w", loanID, err)
	}
	if ok, err := oneRowAffected(res); err != nil || !ok {
		return false, err
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE assignment_requests
		SET status = 'approved', handled_by_id = $1, handled_at = $2
		WHERE id = $3 AND status = 'pending'`,
		handlerID, now, requestID,
	)
	if err != nil {
		return false, fmt.Errorf("approve: mark request %d: %w", requestID, err)
	}
	if ok, err := oneRowAffected(res); err != nil || !ok {
		return false, err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE assignment_requests
		SET status = 'rejected', handled_by_id = $1, handled_at = $2
		WHERE loan_id = $3 AND id <> $4 AND status = 'pending'`,
		handlerID, now, loanID, requestID,
	); err != nil {
		return false, fmt.Errorf("approve: reject siblings for loan %d: %w", loanID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit approve tx: %w", err)
	}
	return true, nil
}

// RejectAssignmentRequest marks one pending request rejected. Siblings and
// the loan are untouched.
func (s *Store) RejectAssignmentRequest(ctx context.Context, requestID, handlerID int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE assignment_requests
		SET status = 'rejected', handled_by_id = $1, handled_at = $2
		WHERE id = $3 AND status = 'pending'`,
		handlerID, now, requestID,
	)
	if err != nil {
		return false, fmt.Errorf("reject assignment request %d: %w", requestID, err)
	}
	return oneRowAffected(res)
}

// ListPendingRequests returns pending requests joined with their loan and
// requester, newest first. A nil branch list means no branch restriction.
func (s *Store) ListPendingRequests(ctx context.Context, branches []string) ([]models.AssignmentRequest, error) {
	query := fmt.Sprintf(`
		SELECT r.id, r.loan_id, r.requested_by_id, COALESCE(ru.username, ''),
			r.status, r.handled_by_id, r.handled_at, r.created_at,
			%s
		FROM assignment_requests r
		JOIN loan_applications a ON a.id = r.loan_id
		LEFT JOIN users u ON u.id = a.assigned_to_id
		JOIN users ru ON ru.id = r.requested_by_id
		WHERE r.status = 'pending' AND ($1::text[] IS NULL OR a.branch = ANY($1))
		ORDER BY r.created_at DESC`, applicationColumns)

	rows, err := s.db.QueryContext(ctx, query, pq.Array(branches))
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var out []models.AssignmentRequest
	for rows.Next() {
		var (
			req        models.AssignmentRequest
			app        models.LoanApplication
			detailsRaw []byte
		)
		err := rows.Scan(
			&req.ID, &req.LoanID, &req.RequestedByID, &req.RequestedByUsername,
			&req.Status, &req.HandledByID, &req.HandledAt, &req.CreatedAt,
			&app.ID, &app.WPEntryID, &app.FirstName, &app.LastName, &app.Email, &app.Mobile,
			&app.Branch, &app.Status, &app.AssignedToID, &app.AssignedToUsername, &app.VerificationStatus,
			&detailsRaw, &app.ClosedAt, &app.ClosedByID, &app.CancellationReason, &app.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pending request: %w", err)
		}
		if len(detailsRaw) > 0 {
			if err := json.Unmarshal(detailsRaw, &app.Details); err != nil {
				return nil, fmt.Errorf("decode details for loan %d: %w", app.ID, err)
			}
		}
		req.Loan = &app
		out = append(out, req)
	}
	return out, rows.Err()
}
