package storage

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"model-publisher/internal/ddl"
	"model-publisher/internal/domain"
)

// DefaultDescribeConcurrency bounds concurrent describes against one connection.
const DefaultDescribeConcurrency = 8

// DescribeFile reads the schema and row count of a data file through conn,
// which must be DuckDB-backed. name labels the resulting description.
func DescribeFile(ctx context.Context, conn domain.Connection, name, path string) (*domain.TableDescription, error) {
	format, ok := ddl.FormatForPath(path)
	if !ok {
		return nil, domain.ErrValidation("unsupported data file %q", path)
	}

	describeSQL, err := ddl.DescribeFile(path, format)
	if err != nil {
		return nil, err
	}
	res, err := conn.RunSQL(ctx, describeSQL, domain.RunSQLOptions{})
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", path, err)
	}
	nameIdx, typeIdx := columnIndex(res, "column_name"), columnIndex(res, "column_type")
	if nameIdx < 0 || typeIdx < 0 {
		return nil, fmt.Errorf("describe %s: unexpected result columns", path)
	}

	desc := &domain.TableDescription{Name: name, Columns: make([]domain.Column, 0, len(res.Rows))}
	for _, row := range res.Rows {
		desc.Columns = append(desc.Columns, domain.Column{
			Name: fmt.Sprint(row[nameIdx]),
			Type: NormalizeType(fmt.Sprint(row[typeIdx])),
		})
	}

	countSQL, err := ddl.CountFileRows(path, format)
	if err != nil {
		return nil, err
	}
	res, err = conn.RunSQL(ctx, countSQL, domain.RunSQLOptions{RowLimit: 1})
	if err != nil {
		return nil, fmt.Errorf("count rows of %s: %w", path, err)
	}
	if len(res.Rows) == 1 && len(res.Rows[0]) == 1 {
		desc.RowCount = toInt64(res.Rows[0][0])
	}
	return desc, nil
}

// FileDescription is the outcome of describing one file in a batch.
type FileDescription struct {
	Path  string
	Table *domain.TableDescription
	Err   error
}

// DescribeFiles describes every path through conn with at most limit
// describes in flight. Per-file failures are reported in the result rather
// than aborting the batch; results keep the order of paths.
func DescribeFiles(ctx context.Context, conn domain.Connection, paths []string, limit int) []FileDescription {
	if limit <= 0 {
		limit = DefaultDescribeConcurrency
	}
	out := make([]FileDescription, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range paths {
		g.Go(func() error {
			table, err := DescribeFile(gctx, conn, p, p)
			out[i] = FileDescription{Path: p, Table: table, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// DescribeBucket lists the data files under prefix and describes each of them.
func DescribeBucket(ctx context.Context, lister ObjectLister, conn domain.Connection, bucket, prefix string, limit int) ([]FileDescription, error) {
	keys, err := lister.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	return DescribeFiles(ctx, conn, FilterDataFiles(keys), limit), nil
}

func columnIndex(res *domain.SQLResult, name string) int {
	for i, c := range res.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n) //nolint:gosec // row counts fit in int64
	case float64:
		return int64(n)
	default:
		var out int64
		_, _ = fmt.Sscan(fmt.Sprint(v), &out)
		return out
	}
}
