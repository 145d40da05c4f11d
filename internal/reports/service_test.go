package reports

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-triage/internal/common/logger"
	"loan-triage/internal/loans"
	"loan-triage/internal/models"
	"loan-triage/internal/store"
)

func newTestService(t *testing.T, withCache bool) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var cache *redis.Client
	if withCache {
		mr := miniredis.RunT(t)
		cache = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { cache.Close() })
	}
	return NewService(store.New(db, logger.NewTestLogger(t)), cache, logger.NewTestLogger(t)), mock
}

func countRow(n int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func expectStatsQueries(mock sqlmock.Sqlmock, today, week, month, lastMonth, year, pending, inProgress, approved, rejected int64) {
	createdSince := `SELECT COUNT\(\*\) FROM loan_applications\s+WHERE created_at >= \$1 AND \(\$2`
	mock.ExpectQuery(createdSince).WillReturnRows(countRow(today))
	mock.ExpectQuery(createdSince).WillReturnRows(countRow(week))
	mock.ExpectQuery(createdSince).WillReturnRows(countRow(month))
	mock.ExpectQuery(`created_at >= \$1 AND created_at <= \$2`).WillReturnRows(countRow(lastMonth))
	mock.ExpectQuery(createdSince).WillReturnRows(countRow(year))
	mock.ExpectQuery(`WHERE status = \$1`).WillReturnRows(countRow(pending))
	mock.ExpectQuery(`WHERE status = \$1`).WillReturnRows(countRow(inProgress))
	mock.ExpectQuery(`WHERE status = \$1`).WillReturnRows(countRow(approved))
	mock.ExpectQuery(`WHERE status = \$1`).WillReturnRows(countRow(rejected))
}

func TestStatsCachesPerScope(t *testing.T) {
	svc, mock := newTestService(t, true)
	actor := loans.Actor{ID: 1, Role: models.RoleAdmin}

	expectStatsQueries(mock, 3, 10, 25, 20, 210, 7, 4, 90, 30)

	stats, err := svc.Stats(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Today)
	assert.Equal(t, int64(20), stats.LastMonth)
	assert.Equal(t, int64(210), stats.ThisYear)
	assert.Equal(t, int64(7), stats.Pending)
	assert.Equal(t, int64(90), stats.Approved)
	assert.InDelta(t, 25.0, stats.MonthlyGrowth(), 0.001)

	// Second call is served from the cache; no further SQL is expected.
	again, err := svc.Stats(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, stats, again)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsManagerWithoutBranches(t *testing.T) {
	svc, mock := newTestService(t, false)

	stats, err := svc.Stats(context.Background(), loans.Actor{ID: 3, Role: models.RoleManager, Branches: ""})
	require.NoError(t, err)
	assert.Equal(t, &Stats{}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardAggregations(t *testing.T) {
	svc, mock := newTestService(t, false)

	expectStatsQueries(mock, 1, 2, 6, 3, 40, 4, 5, 10, 2)
	mock.ExpectQuery(`GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 4).AddRow("approved", 9))
	mock.ExpectQuery(`GROUP BY branch`).
		WillReturnRows(sqlmock.NewRows([]string{"branch", "count"}).
			AddRow("Didube", 8).AddRow("Gldani", 5))
	mock.ExpectQuery(`SELECT details FROM loan_applications`).
		WillReturnRows(sqlmock.NewRows([]string{"details"}).
			AddRow([]byte(`{"16":"Micro Loan"}`)).
			AddRow([]byte(`{"16":"Micro Loan"}`)).
			AddRow([]byte(`{}`)))
	for i := 0; i < 12; i++ {
		mock.ExpectQuery(`created_at >= \$1 AND created_at <= \$2`).
			WillReturnRows(countRow(int64(i)))
	}

	dash, err := svc.Dashboard(context.Background(), loans.Actor{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, int64(1), dash.Stats.Today)
	assert.InDelta(t, 100.0, dash.MonthlyGrowth, 0.001)
	require.Len(t, dash.ProductDistribution, 2)
	assert.Equal(t, ProductCount{Product: "Micro Loan", Count: 2}, dash.ProductDistribution[0])
	assert.Equal(t, ProductCount{Product: "Unspecified", Count: 1}, dash.ProductDistribution[1])
	require.Len(t, dash.MonthlyTrend, 12)
	assert.Equal(t, int64(0), dash.MonthlyTrend[0].Count)
	assert.Equal(t, int64(11), dash.MonthlyTrend[11].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardScopedOmitsBranchDistribution(t *testing.T) {
	svc, mock := newTestService(t, false)

	expectStatsQueries(mock, 1, 2, 3, 2, 20, 4, 5, 6, 1)
	mock.ExpectQuery(`GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("pending", 4))
	// No branch-distribution query: a scoped manager must not see other
	// branches' volumes.
	mock.ExpectQuery(`SELECT details FROM loan_applications`).
		WillReturnRows(sqlmock.NewRows([]string{"details"}).AddRow([]byte(`{"16":"Micro Loan"}`)))
	for i := 0; i < 12; i++ {
		mock.ExpectQuery(`created_at >= \$1 AND created_at <= \$2`).
			WillReturnRows(countRow(1))
	}

	dash, err := svc.Dashboard(context.Background(), loans.Actor{ID: 3, Role: models.RoleManager, Branches: "Didube"})
	require.NoError(t, err)
	assert.Empty(t, dash.BranchDistribution)
	require.Len(t, dash.StatusDistribution, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardEmptyScope(t *testing.T) {
	svc, mock := newTestService(t, false)

	dash, err := svc.Dashboard(context.Background(), loans.Actor{ID: 7, Role: models.RoleOfficer, Branches: ""})
	require.NoError(t, err)
	assert.Empty(t, dash.StatusDistribution)
	require.Len(t, dash.MonthlyTrend, 12)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeBranches(t *testing.T) {
	assert.Nil(t, scopeBranches(loans.Actor{Role: models.RoleAdmin, Branches: ""}))
	assert.Nil(t, scopeBranches(loans.Actor{Role: models.RoleManager, Branches: "All"}))
	assert.Equal(t, []string{"Didube", "Gldani"},
		scopeBranches(loans.Actor{Role: models.RoleManager, Branches: "Didube, Gldani"}))
	scoped := scopeBranches(loans.Actor{Role: models.RoleOfficer, Branches: ""})
	assert.NotNil(t, scoped)
	assert.Empty(t, scoped)
}
