package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

func TestAppend(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	entry := model.AuditEntry{
		PK:   "APP#UPDATE",
		SK:   "6f1c",
		Data: []byte(`{"key":"uploads/dom.jpg","status":"DONE"}`),
		TS:   "2025-01-01T00:00:00Z",
	}

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+audit_log\s*\(pk,\s*sk,\s*data,\s*ts\)`).
		WithArgs("APP#UPDATE", "6f1c", []byte(`{"key":"uploads/dom.jpg","status":"DONE"}`), "2025-01-01T00:00:00Z").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Append(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(errors.New("disk full"))

	err = NewRepository(db).Append(context.Background(), model.AuditEntry{PK: "APP#CREATE"})
	assert.ErrorContains(t, err, "disk full")
}
