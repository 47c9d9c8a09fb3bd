package connection

import (
	"context"
	"database/sql"
	"fmt"

	"model-publisher/internal/ddl"
	"model-publisher/internal/domain"
)

var (
	_ domain.Connection   = (*SQLConnection)(nil)
	_ domain.SchemaLister = (*SQLConnection)(nil)
)

// SQLConnection is a Connection backed by a database/sql pool. It serves
// every dialect reachable through a database/sql driver.
type SQLConnection struct {
	name    string
	dialect domain.Dialect
	db      *sql.DB
}

// NewSQLConnection wraps db as a named connection of the given dialect.
func NewSQLConnection(name string, dialect domain.Dialect, db *sql.DB) *SQLConnection {
	return &SQLConnection{name: name, dialect: dialect, db: db}
}

// Name returns the connection name.
func (c *SQLConnection) Name() string { return c.name }

// Dialect returns the backend dialect.
func (c *SQLConnection) Dialect() domain.Dialect { return c.dialect }

// Attributes returns the capabilities of the dialect.
func (c *SQLConnection) Attributes() domain.ConnectionAttributes { return attributesFor(c.dialect) }

// DB exposes the underlying pool.
func (c *SQLConnection) DB() *sql.DB { return c.db }

// RunSQL executes query and materializes at most opts.RowLimit rows.
func (c *SQLConnection) RunSQL(ctx context.Context, query string, opts domain.RunSQLOptions) (*domain.SQLResult, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	defer rows.Close() //nolint:errcheck
	return scanRows(rows, opts.RowLimit)
}

// Test pings the backend and runs a trivial query.
func (c *SQLConnection) Test(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", c.name, err)
	}
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("query %s: %w", c.name, err)
	}
	return nil
}

// Close closes the pool.
func (c *SQLConnection) Close() error {
	return c.db.Close()
}

// ListSchemas returns the schema names visible to the connection.
func (c *SQLConnection) ListSchemas(ctx context.Context) ([]string, error) {
	return c.queryStrings(ctx, "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name")
}

// ListTables returns the table names of schema.
func (c *SQLConnection) ListTables(ctx context.Context, schema string) ([]string, error) {
	q := "SELECT table_name FROM information_schema.tables WHERE table_schema = " +
		ddl.QuoteLiteral(schema) + " ORDER BY table_name"
	return c.queryStrings(ctx, q)
}

func (c *SQLConnection) queryStrings(ctx context.Context, q string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// scanRows materializes sql.Rows into columns + data rows, stopping after
// limit rows when limit is positive.
func scanRows(rows *sql.Rows, limit int) (*domain.SQLResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &domain.SQLResult{Columns: make([]domain.Column, len(cols))}
	types, _ := rows.ColumnTypes()
	for i, name := range cols {
		result.Columns[i] = domain.Column{Name: name}
		if i < len(types) && types[i] != nil {
			result.Columns[i].Type = types[i].DatabaseTypeName()
		}
	}

	for rows.Next() {
		if limit > 0 && len(result.Rows) == limit {
			result.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		// Convert byte slices to strings for JSON serialization
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
