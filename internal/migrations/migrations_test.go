package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(Migrations, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"00001_processing_status.sql", "00002_audit_log.sql"}, files)
}

func TestRun(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)

	origOpen, origUp := openDB, gooseUpContext
	t.Cleanup(func() { openDB, gooseUpContext = origOpen, origUp })

	var gotDSN, gotDir string
	openDB = func(dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return db, nil
	}
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, Run(context.Background(), "postgres://u:p@h:5432/d"))
	assert.Equal(t, "postgres://u:p@h:5432/d", gotDSN)
	assert.Equal(t, ".", gotDir)
}

func TestRun_Errors(t *testing.T) {
	origOpen, origUp := openDB, gooseUpContext
	t.Cleanup(func() { openDB, gooseUpContext = origOpen, origUp })

	openDB = func(string) (*sql.DB, error) { return nil, errors.New("bad dsn") }
	assert.ErrorContains(t, Run(context.Background(), "x"), "bad dsn")

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	openDB = func(string) (*sql.DB, error) { return db, nil }
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("no next version")
	}
	assert.ErrorContains(t, Run(context.Background(), "x"), "no next version")
}
