package users

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loan-triage/internal/common/errors"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/models"
	"loan-triage/internal/store"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(store.New(db, logger.NewTestLogger(t)), logger.NewTestLogger(t)), mock
}

func userRow(id int64, username string, role models.Role, branches string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "role", "branches", "password_hash", "created_at"}).
		AddRow(id, username, string(role), branches, "", time.Now())
}

func TestUpsertCleansUsername(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("gio", "manager", "Didube, Gldani").
		WillReturnRows(userRow(9, "gio", models.RoleManager, "Didube, Gldani"))

	user, err := svc.Upsert(context.Background(), models.RoleAdmin, UpsertRequest{
		Username: "gio@corp.example",
		Role:     "manager",
		Branches: "Didube, Gldani",
	})
	require.NoError(t, err)
	assert.Equal(t, "gio", user.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Upsert(context.Background(), models.RoleAdmin, UpsertRequest{Username: "", Role: "officer"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = svc.Upsert(context.Background(), models.RoleAdmin, UpsertRequest{Username: "gio", Role: "superuser"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = svc.Upsert(context.Background(), models.RoleManager, UpsertRequest{Username: "gio", Role: "officer"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
}

func TestDeleteGuards(t *testing.T) {
	svc, mock := newTestService(t)

	err := svc.Delete(context.Background(), 1, models.RoleAdmin, 1)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	err = svc.Delete(context.Background(), 1, models.RoleOfficer, 2)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users")).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = svc.Delete(context.Background(), 1, models.RoleAdmin, 404)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestListEmpty(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT .+ FROM users ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "role", "branches", "password_hash", "created_at"}))

	users, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}
