package packages

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"model-publisher/internal/domain"
	"model-publisher/internal/service/connection"
	"model-publisher/internal/service/storage"
)

// connectionStatement resolves name in the merged connection set and checks
// that stmt carries SQL.
func (p *Package) connectionStatement(name, stmt string) (domain.Connection, error) {
	if strings.TrimSpace(stmt) == "" {
		return nil, domain.ErrBadRequest("sql statement is required")
	}
	return p.GetConnection(name)
}

func (p *Package) connectionResource(name, kind string) string {
	return fmt.Sprintf("/projects/%s/packages/%s/connections/%s/%s", p.projectName, p.name, url.PathEscape(name), kind)
}

// RunConnectionSQL runs stmt directly on the named connection and returns at
// most limit rows. A non-positive limit returns every row.
func (p *Package) RunConnectionSQL(ctx context.Context, name, stmt string, limit int) (*domain.SQLResult, error) {
	conn, err := p.connectionStatement(name, stmt)
	if err != nil {
		return nil, err
	}
	return conn.RunSQL(ctx, stmt, domain.RunSQLOptions{RowLimit: limit})
}

// CreateTemporaryTable materializes stmt on the named connection and returns
// the table it was stored in.
func (p *Package) CreateTemporaryTable(ctx context.Context, name, stmt string) (*domain.TemporaryTable, error) {
	conn, err := p.connectionStatement(name, stmt)
	if err != nil {
		return nil, err
	}
	table, err := connection.CreateTemporaryTable(ctx, conn, stmt)
	if err != nil {
		return nil, err
	}
	return &domain.TemporaryTable{Table: table}, nil
}

// DescribeSQLSource returns the columns stmt yields on the named connection.
func (p *Package) DescribeSQLSource(ctx context.Context, name, stmt string) (*domain.SQLSource, error) {
	conn, err := p.connectionStatement(name, stmt)
	if err != nil {
		return nil, err
	}
	cols, err := connection.DescribeSQL(ctx, conn, stmt)
	if err != nil {
		return nil, err
	}
	return &domain.SQLSource{
		Resource: p.connectionResource(name, "sqlSource"),
		SQL:      stmt,
		Columns:  cols,
	}, nil
}

// DescribeTable returns the columns of schema.table on the named connection.
// An empty schema addresses the connection's default schema.
func (p *Package) DescribeTable(ctx context.Context, name, schema, table string) (*domain.TableSource, error) {
	if table == "" {
		return nil, domain.ErrBadRequest("table name is required")
	}
	conn, err := p.GetConnection(name)
	if err != nil {
		return nil, err
	}
	source := connection.TableRef(conn, schema, table)
	cols, err := connection.DescribeSQL(ctx, conn, "SELECT * FROM "+source)
	if err != nil {
		return nil, err
	}
	return &domain.TableSource{
		Resource: p.connectionResource(name, "tableSource"),
		Source:   source,
		Columns:  cols,
	}, nil
}

// ListConnectionSchemas lists the schemas of the named connection.
func (p *Package) ListConnectionSchemas(ctx context.Context, name string) ([]string, error) {
	conn, err := p.GetConnection(name)
	if err != nil {
		return nil, err
	}
	return connection.ListSchemas(ctx, conn)
}

// ListConnectionTables lists the tables in schema of the named connection.
func (p *Package) ListConnectionTables(ctx context.Context, name, schema string) ([]string, error) {
	conn, err := p.GetConnection(name)
	if err != nil {
		return nil, err
	}
	return connection.ListTables(ctx, conn, schema)
}

// DescribeBucket describes the data files under prefix in bucket of the named
// object store connection, running at most concurrency describes at once.
func (p *Package) DescribeBucket(ctx context.Context, name, bucket, prefix string, concurrency int) ([]storage.FileDescription, error) {
	conn, err := p.GetConnection(name)
	if err != nil {
		return nil, err
	}
	d, ok := conn.(connection.BucketDescriber)
	if !ok {
		return nil, domain.ErrNotImplemented("connection %q is not an object store", name)
	}
	return d.DescribeBucket(ctx, bucket, prefix, concurrency)
}
