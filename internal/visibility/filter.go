// Package visibility computes the role-scoped SQL predicate applied when
// listing loan applications.
package visibility

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"loan-triage/internal/branch"
	"loan-triage/internal/models"
)

// Scope identifies the caller for predicate construction.
type Scope struct {
	Role     models.Role
	Branches []string
	UserID   int64
}

// Filters are the optional listing filters ANDed with the role predicate.
// A non-nil MatchIDs means the free-text search was already resolved to ids
// (by the search mirror) and replaces the LIKE predicate; an empty non-nil
// slice matches nothing.
type Filters struct {
	Search       string
	MatchIDs     []int64
	DateFrom     *time.Time
	DateTo       *time.Time
	VerifiedOnly bool
}

// Predicate is a compiled WHERE fragment over the loan_applications table
// (alias "a"), with positional args numbered from the requested start index.
type Predicate struct {
	Where string
	Args  []interface{}

	// NoBranches is set when an officer or manager has no branches
	// configured. Callers must surface this instead of an ambiguous empty
	// result.
	NoBranches bool
}

// Build compiles the scope and filters into a Predicate. argStart is the
// first $n placeholder number to use, so the store can append its own
// parameters after ours.
func Build(scope Scope, f Filters, argStart int) Predicate {
	b := builder{next: argStart}

	switch scope.Role {
	case models.RoleAdmin, models.RoleAdminEditor, models.RoleManagerViewer:
		// Unrestricted reads. manager_viewer write denial is enforced at the
		// lifecycle boundary, not here.
	case models.RoleManager:
		if len(scope.Branches) == 0 {
			return Predicate{Where: "FALSE", NoBranches: true}
		}
		if !branch.HasWildcard(scope.Branches) {
			b.add(fmt.Sprintf("a.branch = ANY(%s)", b.ph(pq.Array(scope.Branches))))
		}
	case models.RoleOfficer:
		if len(scope.Branches) == 0 {
			return Predicate{Where: "FALSE", NoBranches: true}
		}
		pool := "a.status = 'pending' AND a.assigned_to_id IS NULL"
		if !branch.HasWildcard(scope.Branches) {
			pool += fmt.Sprintf(" AND a.branch = ANY(%s)", b.ph(pq.Array(scope.Branches)))
		}
		own := fmt.Sprintf("a.assigned_to_id = %s AND a.status IN ('pending', 'in_progress')", b.ph(scope.UserID))
		b.add(fmt.Sprintf("((%s) OR (%s))", pool, own))
	default:
		// Unknown roles see nothing.
		return Predicate{Where: "FALSE"}
	}

	switch {
	case f.MatchIDs != nil:
		b.add(fmt.Sprintf("a.id = ANY(%s)", b.ph(pq.Array(f.MatchIDs))))
	case f.Search != "":
		like := b.ph("%" + f.Search + "%")
		b.add(fmt.Sprintf(
			"(a.first_name ILIKE %[1]s OR a.last_name ILIKE %[1]s OR a.mobile LIKE %[1]s OR a.details::text ILIKE %[1]s)",
			like,
		))
	}
	if f.DateFrom != nil {
		b.add(fmt.Sprintf("a.created_at >= %s", b.ph(*f.DateFrom)))
	}
	if f.DateTo != nil {
		b.add(fmt.Sprintf("a.created_at <= %s", b.ph(endOfDay(*f.DateTo))))
	}
	if f.VerifiedOnly {
		b.add("a.verification_status = TRUE")
	}

	return Predicate{Where: b.where(), Args: b.args}
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

type builder struct {
	clauses []string
	args    []interface{}
	next    int
}

func (b *builder) ph(arg interface{}) string {
	b.args = append(b.args, arg)
	n := b.next + len(b.args) - 1
	return fmt.Sprintf("$%d", n)
}

func (b *builder) add(clause string) {
	b.clauses = append(b.clauses, clause)
}

func (b *builder) where() string {
	if len(b.clauses) == 0 {
		return "TRUE"
	}
	return strings.Join(b.clauses, " AND ")
}
