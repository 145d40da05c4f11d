package sync

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loan-triage/internal/common/errors"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/creditinfo"
	"loan-triage/internal/gravity"
	"loan-triage/internal/models"
	"loan-triage/internal/store"
)

type fakeSource struct {
	entries []gravity.Entry
	err     error
}

func (f *fakeSource) FetchAll(context.Context) ([]gravity.Entry, error) {
	return f.entries, f.err
}

type fakeVerifier struct {
	result *creditinfo.Result
	err    error
}

func (f *fakeVerifier) Lookup(context.Context, string) (*creditinfo.Result, error) {
	return f.result, f.err
}

type fakeIndexer struct {
	ids []int64
}

func (f *fakeIndexer) Index(_ context.Context, app *models.LoanApplication) {
	f.ids = append(f.ids, app.ID)
}

func newTestStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(db, logger.NewTestLogger(t)), mock
}

func appRow(id int64, verified bool, details string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "wp_entry_id", "first_name", "last_name", "email", "mobile",
		"branch", "status", "assigned_to_id", "username", "verification_status",
		"details", "closed_at", "closed_by_id", "cancellation_reason", "created_at",
	}).AddRow(id, "1001", "Nino", "Beridze", "", "599123456",
		"Didube", "pending", nil, "", verified,
		[]byte(details), nil, nil, "", time.Now())
}

func TestRunOnceUnconfiguredIsNoOp(t *testing.T) {
	st, mock := newTestStore(t)
	r := NewReconciler(nil, nil, st, logger.NewTestLogger(t))

	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceUpsertsEntries(t *testing.T) {
	st, mock := newTestStore(t)
	source := &fakeSource{entries: []gravity.Entry{
		{"id": "1001", "33": "Nino", "21": "Didube"},
		{"id": "1002", "33": "Giorgi", "21": "Gldani"},
	}}
	r := NewReconciler(source, nil, st, logger.NewTestLogger(t))

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO loan_applications")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO loan_applications")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE settings SET last_sync_time")).
		WithArgs(sqlmock.AnyArg(), int64(models.SettingsID)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 2, Errors: 0}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceMirrorsSyncedEntries(t *testing.T) {
	st, mock := newTestStore(t)
	source := &fakeSource{entries: []gravity.Entry{{"id": "1001", "33": "Nino"}}}
	r := NewReconciler(source, nil, st, logger.NewTestLogger(t))
	idx := &fakeIndexer{}
	r.SetIndexer(idx)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO loan_applications")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE settings SET last_sync_time")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, idx.ids)
}

func TestRunOnceCountsEntryFailures(t *testing.T) {
	st, mock := newTestStore(t)
	source := &fakeSource{entries: []gravity.Entry{
		{"33": "no id"},
		{"id": "1001"},
		{"id": "1002"},
	}}
	r := NewReconciler(source, nil, st, logger.NewTestLogger(t))

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO loan_applications")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO loan_applications")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE settings SET last_sync_time")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1, Errors: 2}, res)
}

func TestRunOnceFetchFailure(t *testing.T) {
	st, _ := newTestStore(t)
	r := NewReconciler(&fakeSource{err: errors.New("connect: refused")}, nil, st, logger.NewTestLogger(t))

	_, err := r.RunOnce(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUpstreamUnavailable))
}

func TestRefreshVerificationPersistsChange(t *testing.T) {
	st, mock := newTestStore(t)
	verifier := &fakeVerifier{result: &creditinfo.Result{Found: true, Verified: true}}
	r := NewReconciler(nil, verifier, st, logger.NewTestLogger(t))

	mock.ExpectQuery(`SELECT .+ FROM loan_applications`).
		WithArgs(int64(42)).
		WillReturnRows(appRow(42, false, `{"31":"01001012345"}`))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE loan_applications SET verification_status")).
		WithArgs(true, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	verified, err := r.RefreshVerification(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, verified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshVerificationNoChangeSkipsWrite(t *testing.T) {
	st, mock := newTestStore(t)
	verifier := &fakeVerifier{result: &creditinfo.Result{Found: true, Verified: true}}
	r := NewReconciler(nil, verifier, st, logger.NewTestLogger(t))

	mock.ExpectQuery(`SELECT .+ FROM loan_applications`).
		WithArgs(int64(42)).
		WillReturnRows(appRow(42, true, `{"31":"01001012345"}`))

	verified, err := r.RefreshVerification(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, verified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshVerificationWithoutPersonalID(t *testing.T) {
	st, mock := newTestStore(t)
	verifier := &fakeVerifier{err: errors.New("must not be called")}
	r := NewReconciler(nil, verifier, st, logger.NewTestLogger(t))

	mock.ExpectQuery(`SELECT .+ FROM loan_applications`).
		WithArgs(int64(42)).
		WillReturnRows(appRow(42, true, `{}`))

	verified, err := r.RefreshVerification(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestRefreshVerificationUpstreamFailure(t *testing.T) {
	st, mock := newTestStore(t)
	verifier := &fakeVerifier{err: errors.New("timeout")}
	r := NewReconciler(nil, verifier, st, logger.NewTestLogger(t))

	mock.ExpectQuery(`SELECT .+ FROM loan_applications`).
		WithArgs(int64(42)).
		WillReturnRows(appRow(42, false, `{"31":"01001012345"}`))

	_, err := r.RefreshVerification(context.Background(), 42)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUpstreamUnavailable))
}

func TestSchedulerRescheduleAndStop(t *testing.T) {
	var runs int
	s := NewScheduler(func(context.Context) { runs++ }, logger.NewTestLogger(t))

	s.Start(5)
	s.Reschedule(10)
	s.Stop()
	s.Stop() // idempotent

	assert.Zero(t, runs)
}
