package visibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"loan-triage/internal/models"
)

func TestBuild_AdminUnrestricted(t *testing.T) {
	p := Build(Scope{Role: models.RoleAdmin}, Filters{}, 1)
	assert.Equal(t, "TRUE", p.Where)
	assert.Empty(t, p.Args)
	assert.False(t, p.NoBranches)
}

func TestBuild_ManagerViewerReadsEverything(t *testing.T) {
	p := Build(Scope{Role: models.RoleManagerViewer}, Filters{}, 1)
	assert.Equal(t, "TRUE", p.Where)
}

func TestBuild_ManagerBranchScoped(t *testing.T) {
	p := Build(Scope{Role: models.RoleManager, Branches: []string{"Saburtalo", "Didube"}}, Filters{}, 1)
	assert.Equal(t, "a.branch = ANY($1)", p.Where)
	assert.Len(t, p.Args, 1)
}

func TestBuild_ManagerWildcardBypassesBranches(t *testing.T) {
	p := Build(Scope{Role: models.RoleManager, Branches: []string{"All"}}, Filters{}, 1)
	assert.Equal(t, "TRUE", p.Where)
}

func TestBuild_ManagerNoBranches(t *testing.T) {
	p := Build(Scope{Role: models.RoleManager}, Filters{}, 1)
	assert.True(t, p.NoBranches)
	assert.Equal(t, "FALSE", p.Where)
}

func TestBuild_OfficerPoolPlusOwnWork(t *testing.T) {
	p := Build(Scope{Role: models.RoleOfficer, Branches: []string{"Saburtalo"}, UserID: 7}, Filters{}, 1)
	assert.Contains(t, p.Where, "a.status = 'pending' AND a.assigned_to_id IS NULL AND a.branch = ANY($1)")
	assert.Contains(t, p.Where, "a.assigned_to_id = $2 AND a.status IN ('pending', 'in_progress')")
	assert.Len(t, p.Args, 2)
	assert.Equal(t, int64(7), p.Args[1])
}

func TestBuild_OfficerWildcardDropsPoolBranchFilter(t *testing.T) {
	p := Build(Scope{Role: models.RoleOfficer, Branches: []string{"*"}, UserID: 3}, Filters{}, 1)
	assert.NotContains(t, p.Where, "ANY")
	assert.Contains(t, p.Where, "a.assigned_to_id = $1")
}

func TestBuild_OfficerNoBranches(t *testing.T) {
	p := Build(Scope{Role: models.RoleOfficer, UserID: 3}, Filters{}, 1)
	assert.True(t, p.NoBranches)
	assert.Equal(t, "FALSE", p.Where)
}

func TestBuild_SearchAndFlagsAreANDed(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	p := Build(
		Scope{Role: models.RoleManager, Branches: []string{"Saburtalo"}},
		Filters{Search: "599", DateFrom: &from, DateTo: &to, VerifiedOnly: true},
		1,
	)
	assert.Contains(t, p.Where, "a.branch = ANY($1)")
	assert.Contains(t, p.Where, "a.first_name ILIKE $2")
	assert.Contains(t, p.Where, "a.details::text ILIKE $2")
	assert.Contains(t, p.Where, "a.created_at >= $3")
	assert.Contains(t, p.Where, "a.created_at <= $4")
	assert.Contains(t, p.Where, "a.verification_status = TRUE")
	assert.Equal(t, "%599%", p.Args[1])

	// To-date is inclusive through end of day.
	endOfDay, ok := p.Args[3].(time.Time)
	assert.True(t, ok)
	assert.Equal(t, 23, endOfDay.Hour())
	assert.Equal(t, 31, endOfDay.Day())
}

func TestBuild_MatchIDsReplaceSearch(t *testing.T) {
	p := Build(Scope{Role: models.RoleAdmin}, Filters{Search: "nino", MatchIDs: []int64{42, 7}}, 1)
	assert.Equal(t, "a.id = ANY($1)", p.Where)
	assert.Len(t, p.Args, 1)

	// An empty resolved set still replaces the LIKE predicate and matches
	// nothing.
	p = Build(Scope{Role: models.RoleAdmin}, Filters{Search: "nino", MatchIDs: []int64{}}, 1)
	assert.Equal(t, "a.id = ANY($1)", p.Where)
}

func TestBuild_ArgStartOffset(t *testing.T) {
	p := Build(Scope{Role: models.RoleManager, Branches: []string{"Saburtalo"}}, Filters{}, 5)
	assert.Equal(t, "a.branch = ANY($5)", p.Where)
}
