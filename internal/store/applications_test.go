package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-triage/internal/common/logger"
	"loan-triage/internal/models"
	"loan-triage/internal/visibility"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, logger.NewTestLogger(t)), mock
}

func applicationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "wp_entry_id", "first_name", "last_name", "email", "mobile",
		"branch", "status", "assigned_to_id", "username", "verification_status",
		"details", "closed_at", "closed_by_id", "cancellation_reason", "created_at",
	})
}

func TestGetApplication(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM loan_applications a LEFT JOIN users u`).
		WithArgs(int64(42)).
		WillReturnRows(applicationRows().AddRow(
			42, "1001", "Giorgi", "Beridze", "g@central.ge", "599112233",
			"Saburtalo", "pending", nil, "", false,
			[]byte(`{"31":"01001054567"}`), nil, nil, "", time.Now(),
		))

	app, err := s.GetApplication(context.Background(), 42)
	assert.NoError(t, err)
	assert.NotNil(t, app)
	assert.Equal(t, "1001", app.WPEntryID)
	assert.Equal(t, models.StatusPending, app.Status)
	assert.Equal(t, "01001054567", app.Details.PersonalID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetApplication_NotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM loan_applications a`).
		WithArgs(int64(9)).
		WillReturnRows(applicationRows())

	app, err := s.GetApplication(context.Background(), 9)
	assert.NoError(t, err)
	assert.Nil(t, app)
}

func TestClaimApplication_Wins(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE loan_applications`).
		WithArgs(int64(7), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.ClaimApplication(context.Background(), 42, 7)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimApplication_LosesRace(t *testing.T) {
	s, mock := newTestStore(t)

	// Another officer already holds the row; the conditional update matches
	// nothing.
	mock.ExpectExec(`UPDATE loan_applications`).
		WithArgs(int64(7), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.ClaimApplication(context.Background(), 42, 7)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertSyncedEntry_UpdatesOnlyOwnedFields(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`INSERT INTO loan_applications (.+) ON CONFLICT \(wp_entry_id\) DO UPDATE SET`).
		WithArgs(
			"1001", "Giorgi", "Beridze", "g@central.ge", "599112233", "Saburtalo",
			true, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	id, err := s.UpsertSyncedEntry(context.Background(), &models.LoanApplication{
		WPEntryID:          "1001",
		FirstName:          "Giorgi",
		LastName:           "Beridze",
		Email:              "g@central.ge",
		Mobile:             "599112233",
		Branch:             "Saburtalo",
		VerificationStatus: true,
		Details:            models.Details{"31": "01001054567"},
		CreatedAt:          time.Now(),
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseApplication_AlreadyTerminal(t *testing.T) {
	s, mock := newTestStore(t)

	now := time.Now()
	mock.ExpectExec(`UPDATE loan_applications`).
		WithArgs("approved", now, int64(3), "", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.CloseApplication(context.Background(), 42, models.StatusApproved, 3, "", now)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestReassignApplication_BranchOnly(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE loan_applications SET branch = \$1 WHERE id = \$2`).
		WithArgs("Didube", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	b := "Didube"
	ok, err := s.ReassignApplication(context.Background(), 42, &b, false, nil)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestReassignApplication_UnassignResetsPending(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE loan_applications SET assigned_to_id = NULL, status = 'pending' WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.ReassignApplication(context.Background(), 42, nil, true, nil)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestReassignApplication_NothingToUpdate(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.ReassignApplication(context.Background(), 42, nil, false, nil)
	assert.Error(t, err)
}

func TestListApplications_AppliesPredicateAndPaging(t *testing.T) {
	s, mock := newTestStore(t)

	pred := visibility.Build(visibility.Scope{
		Role:     models.RoleManager,
		Branches: []string{"Saburtalo"},
	}, visibility.Filters{}, 1)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM loan_applications a WHERE a\.branch = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(35))

	mock.ExpectQuery(`ORDER BY a\.created_at DESC LIMIT \$2 OFFSET \$3`).
		WillReturnRows(applicationRows().AddRow(
			1, "1001", "Giorgi", "Beridze", "", "599112233",
			"Saburtalo", "pending", nil, "", false,
			[]byte(`{}`), nil, nil, "", time.Now(),
		))

	apps, total, err := s.ListApplications(context.Background(), pred, 2, 20)
	assert.NoError(t, err)
	assert.Equal(t, int64(35), total)
	assert.Len(t, apps, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchApplicationsByMobile(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(`WHERE a\.mobile LIKE \$1 ORDER BY a\.created_at DESC`).
		WithArgs("%599112233%").
		WillReturnRows(applicationRows().AddRow(
			1, "1001", "Giorgi", "Beridze", "", "599112233",
			"Saburtalo", "in_progress", int64(7), "gmaisuradze", true,
			[]byte(`{"31":"01001054567","16":"Consumer Loan","14":"5000"}`), nil, nil, "", time.Now(),
		))

	apps, err := s.SearchApplicationsByMobile(context.Background(), "599112233")
	assert.NoError(t, err)
	assert.Len(t, apps, 1)
	assert.Equal(t, "gmaisuradze", apps[0].AssignedToUsername)
}
