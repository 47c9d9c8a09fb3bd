package connection

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-publisher/internal/ddl"
	"model-publisher/internal/domain"
)

func TestAttachDatabases_SkipsPresentNames(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	mock.ExpectQuery(regexp.QuoteMeta(ddl.ListDatabases)).
		WillReturnRows(sqlmock.NewRows([]string{"database_name"}).AddRow("memory").AddRow("warehouse"))
	mock.ExpectExec(regexp.QuoteMeta(`ATTACH '/pkg/new.duckdb' AS "fresh"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = attachDatabases(context.Background(), db, "/pkg", []domain.AttachedDatabase{
		{Name: "warehouse", Type: domain.AttachedDuckDB, Path: "warehouse.duckdb"},
		{Name: "fresh", Type: domain.AttachedDuckDB, Path: "new.duckdb"},
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachDatabases_AlreadyExistsIsSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	mock.ExpectQuery(regexp.QuoteMeta(ddl.ListDatabases)).
		WillReturnRows(sqlmock.NewRows([]string{"database_name"}).AddRow("memory"))
	mock.ExpectExec("ATTACH").
		WillReturnError(errors.New(`Binder Error: Failed to attach database: database with name "lake" already exists`))

	err = attachDatabases(context.Background(), db, "/pkg", []domain.AttachedDatabase{
		{Name: "lake", Type: domain.AttachedDuckDB, Path: "lake.duckdb"},
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	// A single ATTACH was issued: the race is not retried.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachDatabases_OtherErrorsFail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	mock.ExpectQuery(regexp.QuoteMeta(ddl.ListDatabases)).
		WillReturnRows(sqlmock.NewRows([]string{"database_name"}))
	mock.ExpectExec("ATTACH").WillReturnError(errors.New("IO Error: permission denied"))

	err = attachDatabases(context.Background(), db, "/pkg", []domain.AttachedDatabase{
		{Name: "lake", Type: domain.AttachedDuckDB, Path: "lake.duckdb"},
	}, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestAttachDatabases_ObjectStoreRegistersSecret(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	mock.ExpectQuery(regexp.QuoteMeta(ddl.ListDatabases)).
		WillReturnRows(sqlmock.NewRows([]string{"database_name"}))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE OR REPLACE SECRET "raw"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = attachDatabases(context.Background(), db, "", []domain.AttachedDatabase{
		{Name: "raw", Type: domain.AttachedS3, S3: &domain.S3Config{AccessKeyID: "AKIA", SecretAccessKey: "x"}},
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachDatabases_ReattachLeavesListUnchanged(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	list := []domain.AttachedDatabase{{Name: "warehouse", Type: domain.AttachedDuckDB, Path: "warehouse.duckdb"}}
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	require.NoError(t, attachDatabases(ctx, db, dir, list, logger))
	before, err := attachedNames(ctx, db)
	require.NoError(t, err)
	require.True(t, before["warehouse"])

	require.NoError(t, attachDatabases(ctx, db, dir, list, logger))
	after, err := attachedNames(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.FileExists(t, filepath.Join(dir, "warehouse.duckdb"))
}

func TestAttachStatement_Validation(t *testing.T) {
	tests := []struct {
		name string
		db   domain.AttachedDatabase
	}{
		{name: "postgres_without_payload", db: domain.AttachedDatabase{Name: "pg", Type: domain.AttachedPostgres}},
		{name: "mysql_without_payload", db: domain.AttachedDatabase{Name: "my", Type: domain.AttachedMySQL}},
		{name: "unknown_type", db: domain.AttachedDatabase{Name: "x", Type: "oracle"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := attachStatement(tt.db, "/pkg")
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}
