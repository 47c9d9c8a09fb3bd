package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-publisher/internal/domain"
	"model-publisher/internal/engine"
	"model-publisher/internal/service/connection"
	"model-publisher/internal/service/model"
)

func TestNotebookWithEngine(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"other.malloy": `source: b is duckdb.sql("SELECT 2 AS y")`,
		"flights.malloynb": `>>>markdown
# Flights
>>>malloy
source: a is duckdb.sql("SELECT 1 AS x")
>>>malloy
import "other.malloy"
run: b
`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	ctx := context.Background()
	duck, err := connection.OpenEphemeralDuckDB(ctx, dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = duck.Close() })

	m := model.Create(ctx, model.Deps{Engine: engine.New(nil)}, "faa", dir, "flights.malloynb",
		map[string]domain.Connection{domain.DefaultDuckDBConnectionName: duck})
	compiled, err := m.CompiledModel()
	require.NoError(t, err)

	require.Len(t, compiled.Cells, 3)
	assert.Equal(t, domain.NotebookCellMarkdown, compiled.Cells[0].Type)
	require.Len(t, compiled.Cells[1].NewSources, 1)
	assert.Equal(t, "a", compiled.Cells[1].NewSources[0].Name)
	require.Len(t, compiled.Cells[2].NewSources, 1)
	assert.Equal(t, "b", compiled.Cells[2].NewSources[0].Name)

	res, err := m.NotebookCellResult(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int32(2)}}, res.Result.Rows)

	_, err = m.NotebookCellResult(ctx, 1)
	var bre *domain.BadRequestError
	require.ErrorAs(t, err, &bre)
}

func TestModelWithEngine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "database.csv"), []byte("Name,Value\na,1\nb,2\nc,3\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db.malloy"), []byte(`source: db is duckdb.table('database.csv')
view: total is SELECT CAST(sum(Value) AS BIGINT) AS total FROM db
query: rows is db limit 2
`), 0o644))

	ctx := context.Background()
	duck, err := connection.OpenEphemeralDuckDB(ctx, dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = duck.Close() })

	m := model.Create(ctx, model.Deps{Engine: engine.New(nil)}, "faa", dir, "db.malloy",
		map[string]domain.Connection{domain.DefaultDuckDBConnectionName: duck})
	require.NoError(t, m.Err())

	res, err := m.QueryResults(ctx, domain.QueryRequest{QueryName: "rows"})
	require.NoError(t, err)
	assert.Len(t, res.Result.Rows, 2)
	assert.Equal(t, "/packages/faa/models/db.malloy", res.ModelInfo.Resource)

	res, err = m.QueryResults(ctx, domain.QueryRequest{SourceName: "db", QueryName: "total"})
	require.NoError(t, err)
	require.Len(t, res.Result.Rows, 1)
	assert.EqualValues(t, 6, res.Result.Rows[0][0])
}

func TestDeclaredLimitThroughModel(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"five.csv":  "n\n1\n2\n3\n4\n5\n",
		"db.malloy": "source: db is duckdb.table('five.csv')\n",
		"db.malloynb": `>>>malloy
source: db is duckdb.table('five.csv')
run: db limit 2
>>>malloy
run: db
`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	ctx := context.Background()
	duck, err := connection.OpenEphemeralDuckDB(ctx, dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = duck.Close() })
	conns := map[string]domain.Connection{domain.DefaultDuckDBConnectionName: duck}
	deps := model.Deps{Engine: engine.New(nil), DefaultRowLimit: 1000}

	t.Run("raw_query", func(t *testing.T) {
		m := model.Create(ctx, deps, "faa", dir, "db.malloy", conns)
		require.NoError(t, m.Err())

		res, err := m.QueryResults(ctx, domain.QueryRequest{Query: "run: db limit 2"})
		require.NoError(t, err)
		assert.Len(t, res.Result.Rows, 2)

		res, err = m.QueryResults(ctx, domain.QueryRequest{Query: "run: db limit 2", RowLimit: 1})
		require.NoError(t, err)
		assert.Len(t, res.Result.Rows, 1)

		res, err = m.QueryResults(ctx, domain.QueryRequest{Query: "run: db"})
		require.NoError(t, err)
		assert.Len(t, res.Result.Rows, 5)
	})

	t.Run("notebook_cell", func(t *testing.T) {
		m := model.Create(ctx, deps, "faa", dir, "db.malloynb", conns)
		require.NoError(t, m.Err())

		res, err := m.NotebookCellResult(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, res.Result.Rows, 2)

		res, err = m.NotebookCellResult(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, res.Result.Rows, 5)
	})
}
