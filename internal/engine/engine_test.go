package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-publisher/internal/domain"
	"model-publisher/internal/service/connection"
	"model-publisher/internal/testutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fileURL(path string) string {
	abs, _ := filepath.Abs(path)
	return "file://" + filepath.ToSlash(abs)
}

// setupDuckDB returns a package directory with flights.csv and a duckdb
// connection rooted at it.
func setupDuckDB(t *testing.T) (string, domain.ConnectionMap) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "flights.csv", "carrier,distance\nAA,100\nUA,250\nAA,300\n")
	conn, err := connection.OpenEphemeralDuckDB(context.Background(), dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return dir, domain.ConnectionMap{"duckdb": conn}
}

const flightsModel = `# flight facts
source: flights is duckdb.table('flights.csv')
# schedule @daily materialize duckdb -
view: by_carrier is SELECT carrier, count(*) AS n FROM flights GROUP BY carrier ORDER BY carrier
query: top_carriers is flights -> by_carrier limit 10
query: all_flights is flights
`

func TestCompileAndRun(t *testing.T) {
	dir, conns := setupDuckDB(t)
	ctx := context.Background()
	e := New(nil)

	compiled, err := e.Compile(ctx, domain.CompileRequest{
		URL:         fileURL(filepath.Join(dir, "flights.malloy")),
		Text:        flightsModel,
		Connections: conns,
	})
	require.NoError(t, err)

	t.Run("schema", func(t *testing.T) {
		sources := compiled.Sources()
		require.Len(t, sources, 1)
		assert.Equal(t, "flights", sources[0].Name)
		assert.Equal(t, "duckdb", sources[0].Connection)
		assert.Equal(t, []domain.Column{{Name: "carrier", Type: "string"}, {Name: "distance", Type: "number"}}, sources[0].Columns)
		assert.Equal(t, []string{"# flight facts"}, sources[0].Annotations)
		assert.Equal(t, []domain.ViewInfo{{
			Name:        "by_carrier",
			Annotations: []string{"# schedule @daily materialize duckdb -"},
		}}, sources[0].Views)

		assert.Equal(t, []domain.QueryInfo{
			{Name: "top_carriers", SourceName: "flights", Limit: 10},
			{Name: "all_flights", SourceName: "flights"},
		}, compiled.Queries())
		assert.Empty(t, compiled.Imports())
		assert.False(t, compiled.HasFinalQuery())
	})

	t.Run("named_query_through_view", func(t *testing.T) {
		res, err := e.Run(ctx, compiled, domain.EngineQuery{QueryName: "top_carriers", RowLimit: 10})
		require.NoError(t, err)
		assert.Contains(t, res.SQL, `WITH "flights" AS`)
		require.Len(t, res.Result.Rows, 2)
		assert.Equal(t, "AA", res.Result.Rows[0][0])
		assert.EqualValues(t, 2, res.Result.Rows[0][1])
	})

	t.Run("view_addressed_by_source", func(t *testing.T) {
		res, err := e.Run(ctx, compiled, domain.EngineQuery{SourceName: "flights", QueryName: "by_carrier"})
		require.NoError(t, err)
		assert.Len(t, res.Result.Rows, 2)
	})

	t.Run("raw_query_row_limit", func(t *testing.T) {
		res, err := e.Run(ctx, compiled, domain.EngineQuery{Query: "flights limit 2"})
		require.NoError(t, err)
		assert.Len(t, res.Result.Rows, 2)
		assert.True(t, res.Result.Truncated)

		res, err = e.Run(ctx, compiled, domain.EngineQuery{Query: "flights", RowLimit: 1})
		require.NoError(t, err)
		assert.Len(t, res.Result.Rows, 1)
	})

	t.Run("row_limit_order", func(t *testing.T) {
		tests := []struct {
			name string
			q    domain.EngineQuery
			want int
		}{
			{name: "declared_beats_default", q: domain.EngineQuery{Query: "flights limit 2", DefaultRowLimit: 1000}, want: 2},
			{name: "request_beats_declared", q: domain.EngineQuery{Query: "flights limit 2", RowLimit: 1, DefaultRowLimit: 1000}, want: 1},
			{name: "default_when_undeclared", q: domain.EngineQuery{Query: "flights", DefaultRowLimit: 1}, want: 1},
			{name: "named_undeclared", q: domain.EngineQuery{QueryName: "all_flights", DefaultRowLimit: 2}, want: 2},
			{name: "unlimited", q: domain.EngineQuery{Query: "flights"}, want: 3},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res, err := e.Run(ctx, compiled, tt.q)
				require.NoError(t, err)
				assert.Len(t, res.Result.Rows, tt.want)
			})
		}
	})

	t.Run("bad_requests", func(t *testing.T) {
		tests := []struct {
			name string
			q    domain.EngineQuery
		}{
			{name: "no_final_query", q: domain.EngineQuery{Final: true}},
			{name: "unknown_query", q: domain.EngineQuery{QueryName: "nope"}},
			{name: "unknown_view", q: domain.EngineQuery{SourceName: "flights", QueryName: "nope"}},
			{name: "unknown_source", q: domain.EngineQuery{Query: "carriers"}},
			{name: "malformed", q: domain.EngineQuery{Query: "SELECT 1"}},
			{name: "empty", q: domain.EngineQuery{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := e.Run(ctx, compiled, tt.q)
				var bre *domain.BadRequestError
				require.ErrorAs(t, err, &bre)
			})
		}
	})

	t.Run("foreign_artifact", func(t *testing.T) {
		_, err := e.Run(ctx, &testutil.StubArtifact{}, domain.EngineQuery{Final: true})
		require.Error(t, err)
	})
}

func TestCompile_Problems(t *testing.T) {
	_, conns := setupDuckDB(t)
	text := `view: early is SELECT 1
source: flights is missing.table('flights.csv')
source: ok is duckdb.sql("SELECT 1 AS x")
query: q is nowhere
run: ok -> nope
this is not a statement
`
	_, err := New(nil).Compile(context.Background(), domain.CompileRequest{Text: text, Connections: conns})
	var mce *domain.ModelCompilationError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, "compile model", mce.Message)
	require.Len(t, mce.Problems, 5)
	assert.Contains(t, mce.Problems[0], "line 6: unrecognised statement")
	assert.Contains(t, mce.Problems[1], "line 1: view early is not preceded by a source")
	assert.Contains(t, mce.Problems[2], `line 2: source flights: connection "missing" not found`)
	assert.Contains(t, mce.Problems[3], `line 4: query q: unknown source "nowhere"`)
	assert.Contains(t, mce.Problems[4], `line 5: run: source "ok" has no view "nope"`)
}

func TestCompile_DescribeFailure(t *testing.T) {
	conn := &testutil.MockConnection{
		ConnName: "warehouse",
		RunSQLFn: func(context.Context, string, domain.RunSQLOptions) (*domain.SQLResult, error) {
			return nil, errors.New("relation does not exist")
		},
	}
	_, err := New(nil).Compile(context.Background(), domain.CompileRequest{
		Text:        "source: orders is warehouse.table('public.orders')",
		Connections: domain.ConnectionMap{"warehouse": conn},
	})
	var mce *domain.ModelCompilationError
	require.ErrorAs(t, err, &mce)
	assert.Contains(t, mce.Error(), "relation does not exist")
	assert.Equal(t, []string{`SELECT * FROM (SELECT * FROM public.orders) AS "orders" LIMIT 0`}, conn.Queries())
}

func TestCompile_InvalidTableName(t *testing.T) {
	conn := &testutil.MockConnection{ConnName: "warehouse"}
	_, err := New(nil).Compile(context.Background(), domain.CompileRequest{
		Text:        "source: orders is warehouse.table('orders; DROP TABLE x')",
		Connections: domain.ConnectionMap{"warehouse": conn},
	})
	var mce *domain.ModelCompilationError
	require.ErrorAs(t, err, &mce)
	assert.Contains(t, mce.Error(), "invalid table name")
	assert.Empty(t, conn.Queries())
}

func TestCompile_ExtendsBase(t *testing.T) {
	_, conns := setupDuckDB(t)
	ctx := context.Background()
	e := New(nil)

	base, err := e.Compile(ctx, domain.CompileRequest{
		Text:        `source: a is duckdb.sql("SELECT 1 AS x")`,
		Connections: conns,
	})
	require.NoError(t, err)

	next, err := e.Compile(ctx, domain.CompileRequest{
		Text:        "view: doubled is SELECT x * 2 AS y FROM a\nquery: q is a\nrun: a",
		Base:        base,
		Connections: conns,
	})
	var mce *domain.ModelCompilationError
	require.ErrorAs(t, err, &mce, "views attach to a source declared in the same text")
	assert.Nil(t, next)

	next, err = e.Compile(ctx, domain.CompileRequest{
		Text:        "query: q is a\nrun: a",
		Base:        base,
		Connections: conns,
	})
	require.NoError(t, err)
	assert.Len(t, next.Sources(), 1)
	assert.Equal(t, []domain.QueryInfo{{Name: "q", SourceName: "a"}}, next.Queries())
	assert.True(t, next.HasFinalQuery())

	assert.Empty(t, base.Queries(), "base artifact is not modified")
	assert.False(t, base.HasFinalQuery())

	res, err := e.Run(ctx, next, domain.EngineQuery{Final: true})
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int32(1)}}, res.Result.Rows)

	_, err = e.Compile(ctx, domain.CompileRequest{Text: "run: a", Base: &testutil.StubArtifact{}})
	require.Error(t, err)
}

func TestCompile_Imports(t *testing.T) {
	dir, conns := setupDuckDB(t)
	ctx := context.Background()
	e := New(nil)

	writeFile(t, dir, "shared/base.malloy", `source: b is duckdb.sql("SELECT 2 AS y")`+"\nquery: all_b is b\n")
	main := writeFile(t, dir, "main.malloy", "")

	compiled, err := e.Compile(ctx, domain.CompileRequest{
		URL:         fileURL(main),
		Text:        "import \"shared/base.malloy\"\nsource: c is duckdb.sql(\"SELECT 3 AS z\")",
		Connections: conns,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{fileURL(filepath.Join(dir, "shared", "base.malloy"))}, compiled.Imports())

	names := make([]string, 0, 2)
	for _, s := range compiled.Sources() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"b", "c"}, names)
	assert.Equal(t, "all_b", compiled.Queries()[0].Name)

	t.Run("cycle", func(t *testing.T) {
		a := writeFile(t, dir, "cycle/a.malloy", `import "b.malloy"`)
		writeFile(t, dir, "cycle/b.malloy", `import "a.malloy"`)
		data, err := os.ReadFile(a)
		require.NoError(t, err)

		_, err = e.Compile(ctx, domain.CompileRequest{URL: fileURL(a), Text: string(data), Connections: conns})
		var mce *domain.ModelCompilationError
		require.ErrorAs(t, err, &mce)
		assert.Contains(t, mce.Error(), "import cycle")
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := e.Compile(ctx, domain.CompileRequest{URL: fileURL(main), Text: `import "nope.malloy"`, Connections: conns})
		var mce *domain.ModelCompilationError
		require.ErrorAs(t, err, &mce)
		assert.Contains(t, mce.Error(), "import nope.malloy")
	})
}

func TestResolveImport(t *testing.T) {
	got, err := resolveImport("file:///srv/pkg/models/main.malloy", "../shared/base.malloy")
	require.NoError(t, err)
	assert.Equal(t, fileURL("/srv/pkg/shared/base.malloy"), got)

	got, err = resolveImport("", "file:///x/y.malloy")
	require.NoError(t, err)
	assert.Equal(t, "file:///x/y.malloy", got)
}
