package connection

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-publisher/internal/domain"
)

func TestSQLConnection_RunSQL(t *testing.T) {
	t.Run("row_limit_truncates", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		conn := NewSQLConnection("pg", domain.DialectPostgres, db)
		defer conn.Close() //nolint:errcheck

		mock.ExpectQuery("SELECT name, qty FROM items").WillReturnRows(
			sqlmock.NewRows([]string{"name", "qty"}).
				AddRow([]byte("a"), 1).
				AddRow([]byte("b"), 2).
				AddRow([]byte("c"), 3),
		)

		res, err := conn.RunSQL(context.Background(), "SELECT name, qty FROM items", domain.RunSQLOptions{RowLimit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "qty"}, []string{res.Columns[0].Name, res.Columns[1].Name})
		require.Len(t, res.Rows, 2)
		assert.Equal(t, "a", res.Rows[0][0], "byte slices are converted to strings")
		assert.True(t, res.Truncated)
	})

	t.Run("no_limit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		conn := NewSQLConnection("pg", domain.DialectPostgres, db)
		defer conn.Close() //nolint:errcheck

		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))

		res, err := conn.RunSQL(context.Background(), "SELECT 1", domain.RunSQLOptions{})
		require.NoError(t, err)
		assert.Len(t, res.Rows, 1)
		assert.False(t, res.Truncated)
	})
}

func TestSQLConnection_ListTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	conn := NewSQLConnection("pg", domain.DialectPostgres, db)
	defer conn.Close() //nolint:errcheck

	mock.ExpectQuery(regexp.QuoteMeta("WHERE table_schema = 'sales'")).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders").AddRow("customers"))

	tables, err := ListTables(context.Background(), conn, "sales")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "customers"}, tables)
}

func TestSQLConnection_Test(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	conn := NewSQLConnection("pg", domain.DialectPostgres, db)
	defer conn.Close() //nolint:errcheck

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	require.NoError(t, conn.Test(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttributesFor(t *testing.T) {
	assert.True(t, attributesFor(domain.DialectPostgres).IsPool)
	assert.Equal(t, "standardsql", attributesFor(domain.DialectBigQuery).DialectName)
	assert.False(t, attributesFor(domain.DialectS3).CanPersist)
	assert.Equal(t, "duckdb", attributesFor(domain.DialectGCS).DialectName)
}
