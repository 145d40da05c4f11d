package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"loan-triage/internal/models"
)

// StatusCount is a grouped count by lifecycle status.
type StatusCount struct {
	Status models.Status `json:"statusKey"`
	Count  int64         `json:"count"`
}

// BranchCount is a grouped count by branch.
type BranchCount struct {
	Branch string `json:"branch"`
	Count  int64  `json:"count"`
}

// A nil branches slice means no branch restriction in all report queries.

// CountCreatedSince counts applications created at or after the given time.
func (s *Store) CountCreatedSince(ctx context.Context, since time.Time, branches []string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loan_applications
		WHERE created_at >= $1 AND ($2::text[] IS NULL OR branch = ANY($2))`,
		since, pq.Array(branches),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count created since: %w", err)
	}
	return n, nil
}

// CountCreatedBetween counts applications created in [from, to].
func (s *Store) CountCreatedBetween(ctx context.Context, from, to time.Time, branches []string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loan_applications
		WHERE created_at >= $1 AND created_at <= $2 AND ($3::text[] IS NULL OR branch = ANY($3))`,
		from, to, pq.Array(branches),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count created between: %w", err)
	}
	return n, nil
}

// CountByStatus counts applications currently in the given status.
func (s *Store) CountByStatus(ctx context.Context, status models.Status, branches []string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM loan_applications
		WHERE status = $1 AND ($2::text[] IS NULL OR branch = ANY($2))`,
		string(status), pq.Array(branches),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count by status: %w", err)
	}
	return n, nil
}

// StatusDistribution groups applications created since the given time by
// status.
func (s *Store) StatusDistribution(ctx context.Context, since time.Time, branches []string) ([]StatusCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM loan_applications
		WHERE created_at >= $1 AND ($2::text[] IS NULL OR branch = ANY($2))
		GROUP BY status`,
		since, pq.Array(branches),
	)
	if err != nil {
		return nil, fmt.Errorf("status distribution: %w", err)
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// BranchDistribution groups applications created since the given time by
// branch, largest first.
func (s *Store) BranchDistribution(ctx context.Context, since time.Time) ([]BranchCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT branch, COUNT(*) FROM loan_applications
		WHERE created_at >= $1
		GROUP BY branch
		ORDER BY COUNT(*) DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("branch distribution: %w", err)
	}
	defer rows.Close()

	var out []BranchCount
	for rows.Next() {
		var bc BranchCount
		if err := rows.Scan(&bc.Branch, &bc.Count); err != nil {
			return nil, fmt.Errorf("scan branch count: %w", err)
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

// DetailsSince streams only the opaque details payloads of applications
// created since the given time, for product-distribution projections.
func (s *Store) DetailsSince(ctx context.Context, since time.Time, branches []string) ([]models.Details, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT details FROM loan_applications
		WHERE created_at >= $1 AND ($2::text[] IS NULL OR branch = ANY($2))`,
		since, pq.Array(branches),
	)
	if err != nil {
		return nil, fmt.Errorf("details since: %w", err)
	}
	defer rows.Close()

	var out []models.Details
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan details: %w", err)
		}
		var d models.Details
		if len(raw) > 0 {
			// Malformed payloads count toward the fallback bucket downstream.
			_ = json.Unmarshal(raw, &d)
		}
		if d == nil {
			d = models.Details{}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
