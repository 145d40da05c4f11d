package intake

import (
	"context"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loan-triage/internal/common/errors"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/store"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(store.New(db, logger.NewTestLogger(t)), logger.NewTestLogger(t)), mock
}

func TestIngestMapsWebhookFields(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO loan_applications")).
		WithArgs("555", "Nino", "Beridze", "nino@example.com", "599123456", "Didube",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	app, err := svc.Ingest(context.Background(), map[string]interface{}{
		"id":  "555",
		"1.3": "Nino",
		"1.6": "Beridze",
		"3":   "599123456",
		"4":   "Didube",
		"5":   "nino@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), app.ID)
	assert.Equal(t, "555", app.WPEntryID)
	assert.Equal(t, "Didube", app.Branch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestSynthesizesEntryID(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO loan_applications")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(43))

	app, err := svc.Ingest(context.Background(), map[string]interface{}{
		"1.3": "Giorgi",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(app.WPEntryID, "wh-"))
	assert.Equal(t, "Giorgi", app.FirstName)
	assert.Equal(t, "Main", app.Branch)
}

func TestIngestFallsBackToNumericFieldIDs(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO loan_applications")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(44))

	app, err := svc.Ingest(context.Background(), map[string]interface{}{
		"33": "Nino",
		"21": "Gldani",
		"27": "599000000",
	})
	require.NoError(t, err)
	assert.Equal(t, "Nino", app.FirstName)
	assert.Equal(t, "Gldani", app.Branch)
	assert.Equal(t, "599000000", app.Mobile)
}

func TestIngestRejectsBadPayloads(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Ingest(context.Background(), map[string]interface{}{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = svc.Ingest(context.Background(), map[string]interface{}{
		"1.3": map[string]interface{}{"nested": "object"},
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}
