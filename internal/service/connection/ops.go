package connection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"model-publisher/internal/ddl"
	"model-publisher/internal/domain"
	"model-publisher/internal/service/storage"
)

// BucketDescriber is implemented by object store connections.
type BucketDescriber interface {
	DescribeBucket(ctx context.Context, bucket, prefix string, limit int) ([]storage.FileDescription, error)
}

var _ BucketDescriber = (*ObjectStoreConnection)(nil)

// TemporaryTableName derives the table name for stmt. The same statement
// always maps to the same name.
func TemporaryTableName(stmt string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(stmt)))
	return "tt" + hex.EncodeToString(sum[:8])
}

// CreateTemporaryTable materializes stmt into a temporary table on conn and
// returns its name. Dialects without session temporary tables fail with
// NotImplementedError.
func CreateTemporaryTable(ctx context.Context, conn domain.Connection, stmt string) (string, error) {
	switch conn.Dialect() {
	case domain.DialectDuckDB, domain.DialectGCS, domain.DialectS3,
		domain.DialectPostgres, domain.DialectMySQL, domain.DialectSnowflake:
	default:
		return "", domain.ErrNotImplemented("connection %q does not support temporary tables", conn.Name())
	}
	name := TemporaryTableName(stmt)
	create, err := ddl.CreateTempTableAs(name, stmt)
	if err != nil {
		return "", domain.ErrValidation("temporary table: %v", err)
	}
	if _, err := conn.RunSQL(ctx, create, domain.RunSQLOptions{}); err != nil {
		return "", fmt.Errorf("create temporary table: %w", err)
	}
	return name, nil
}

// DescribeSQL returns the columns stmt yields on conn without fetching rows.
func DescribeSQL(ctx context.Context, conn domain.Connection, stmt string) ([]domain.Column, error) {
	q, err := ddl.DescribeQuery(stmt)
	if err != nil {
		return nil, domain.ErrValidation("describe: %v", err)
	}
	res, err := conn.RunSQL(ctx, q, domain.RunSQLOptions{RowLimit: 1})
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	cols := make([]domain.Column, len(res.Columns))
	for i, c := range res.Columns {
		cols[i] = domain.Column{Name: c.Name, Type: storage.NormalizeType(c.Type)}
	}
	return cols, nil
}

// TableRef renders schema.table for the dialect of conn. An empty schema
// addresses the connection's default schema.
func TableRef(conn domain.Connection, schema, table string) string {
	quote := ddl.QuoteIdentifier
	switch conn.Dialect() {
	case domain.DialectMySQL, domain.DialectBigQuery:
		quote = func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }
	}
	if schema == "" {
		return quote(table)
	}
	return quote(schema) + "." + quote(table)
}
