package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-publisher/internal/domain"
	"model-publisher/internal/service/connection"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// setupServerRoot lays out a server root with one project holding the faa
// package and points the environment at it.
func setupServerRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "publisher.config.yaml", "projects:\n  - name: analytics\n    path: analytics\n")
	writeFile(t, root, "analytics/faa/publisher.json", `{"description": "FAA flights"}`)
	writeFile(t, root, "analytics/faa/flights.csv", "carrier,distance\nAA,100\nUA,250\nAA,300\n")
	writeFile(t, root, "analytics/faa/flights.malloy", `source: flights is duckdb.table('flights.csv')
# schedule @hourly report duckdb -
view: by_carrier is SELECT carrier, count(*) AS n FROM flights GROUP BY carrier ORDER BY carrier
query: top is flights -> by_carrier limit 5
`)
	writeFile(t, root, "analytics/faa/broken.malloy", "source: nope")

	for _, k := range []string{"PUBLISHER_CONFIG", "DEFAULT_ROW_LIMIT", "FROZEN_CONFIG", "ENV"} {
		t.Setenv(k, "")
	}
	t.Setenv("SERVER_ROOT", root)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("CREDENTIAL_DIR", t.TempDir())
	return root
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_Packages(t *testing.T) {
	setupServerRoot(t)

	out, err := runCLI(t, "packages", "-o", "json")
	require.NoError(t, err)
	var got []domain.PackageSummary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []domain.PackageSummary{{
		Resource:    "/projects/analytics/packages/faa",
		ProjectName: "analytics",
		Name:        "faa",
		Description: "FAA flights",
	}}, got)

	out, err = runCLI(t, "packages", "analytics")
	require.NoError(t, err)
	assert.Contains(t, out, "PROJECT")
	assert.Contains(t, out, "FAA flights")

	_, err = runCLI(t, "packages", "ghost")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestCLI_ServerRootFlag(t *testing.T) {
	root := setupServerRoot(t)
	t.Setenv("SERVER_ROOT", "")

	out, err := runCLI(t, "packages", "-o", "json", "--server-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "faa"`)
}

func TestCLI_Models(t *testing.T) {
	setupServerRoot(t)

	out, err := runCLI(t, "models", "analytics", "faa", "-o", "json")
	require.NoError(t, err)
	var got []domain.ModelSummary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "broken.malloy", got[0].Path)
	assert.NotEmpty(t, got[0].Error)
	assert.Equal(t, "flights.malloy", got[1].Path)
	assert.Empty(t, got[1].Error)

	_, err = runCLI(t, "models", "analytics", "weather")
	var pnf *domain.PackageNotFoundError
	require.ErrorAs(t, err, &pnf)
}

func TestCLI_Schedules(t *testing.T) {
	setupServerRoot(t)

	out, err := runCLI(t, "schedules", "analytics", "faa", "-o", "json")
	require.NoError(t, err)
	var got []domain.Schedule
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "flights.malloy > flights > by_carrier", got[0].Resource)
	assert.Equal(t, "@hourly", got[0].Schedule)
	assert.Equal(t, "0 * * * *", got[0].NormalizedCron)
	assert.Equal(t, domain.ScheduleActionReport, got[0].Action)
	assert.Equal(t, "duckdb", got[0].Connection)
}

func TestCLI_Query(t *testing.T) {
	setupServerRoot(t)

	t.Run("named_query", func(t *testing.T) {
		out, err := runCLI(t, "query", "analytics", "faa", "flights.malloy", "--query-name", "top", "-o", "json")
		require.NoError(t, err)
		var got domain.QueryResults
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got.Result.Rows, 2)
		assert.Equal(t, "AA", got.Result.Rows[0][0])
		assert.Equal(t, "/packages/faa/models/flights.malloy", got.ModelInfo.Resource)
	})

	t.Run("raw_query_table", func(t *testing.T) {
		out, err := runCLI(t, "query", "analytics", "faa", "flights.malloy", "--query", "flights", "--limit", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "CARRIER")
		assert.Contains(t, out, "AA")
		assert.NotContains(t, out, "UA")
	})

	t.Run("both_query_and_name", func(t *testing.T) {
		_, err := runCLI(t, "query", "analytics", "faa", "flights.malloy", "--query", "flights", "--query-name", "top")
		var bre *domain.BadRequestError
		require.ErrorAs(t, err, &bre)
	})

	t.Run("compilation_error", func(t *testing.T) {
		_, err := runCLI(t, "query", "analytics", "faa", "broken.malloy", "--query", "nope")
		var mce *domain.ModelCompilationError
		require.ErrorAs(t, err, &mce)
		assert.Equal(t, 424, domain.HTTPStatus(err))
	})

	t.Run("unknown_model", func(t *testing.T) {
		_, err := runCLI(t, "query", "analytics", "faa", "missing.malloy", "--query", "flights")
		var mnf *domain.ModelNotFoundError
		require.ErrorAs(t, err, &mnf)
	})
}

func TestCLI_TestConnection(t *testing.T) {
	setupServerRoot(t)
	dir := t.TempDir()
	file := writeFile(t, dir, "publisher.connections.json", `[
		{"name": "local", "type": "duckdb"},
		{"name": "unreachable", "type": "postgres", "postgresConnection": {"host": "127.0.0.1", "port": 1, "databaseName": "x"}},
		{"name": "invalid", "type": "oracle"}
	]`)

	out, err := runCLI(t, "test-connection", file, "local", "-o", "json")
	require.NoError(t, err)
	var got []connectionTestResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "local", got[0].Name)
	assert.Equal(t, domain.ConnectionStatusOK, got[0].Status)

	out, err = runCLI(t, "test-connection", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 connections failed")
	assert.Contains(t, out, "unsupported connection type")

	_, err = runCLI(t, "test-connection", file, "ghost")
	var cnf *domain.ConnectionNotFoundError
	require.ErrorAs(t, err, &cnf)
}

func TestCLI_OutputFormat(t *testing.T) {
	setupServerRoot(t)

	_, err := runCLI(t, "version", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")

	out, err := runCLI(t, "version", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version": "dev", "commit": "none"}`, out)
}

func TestCLI_Connection(t *testing.T) {
	setupServerRoot(t)
	const flightsSQL = "SELECT carrier, distance FROM 'flights.csv' ORDER BY distance"

	t.Run("query", func(t *testing.T) {
		out, err := runCLI(t, "connection", "query", "analytics", "faa", "duckdb", flightsSQL, "--limit", "2", "-o", "json")
		require.NoError(t, err)
		var got domain.SQLResult
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got.Rows, 2)
		assert.True(t, got.Truncated)
		assert.Equal(t, "AA", got.Rows[0][0])
	})

	t.Run("describe_sql", func(t *testing.T) {
		out, err := runCLI(t, "connection", "describe-sql", "analytics", "faa", "duckdb", flightsSQL, "-o", "json")
		require.NoError(t, err)
		var got domain.SQLSource
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "/projects/analytics/packages/faa/connections/duckdb/sqlSource", got.Resource)
		assert.Equal(t, []domain.Column{{Name: "carrier", Type: "string"}, {Name: "distance", Type: "number"}}, got.Columns)
	})

	t.Run("temp_table", func(t *testing.T) {
		out, err := runCLI(t, "connection", "temp-table", "analytics", "faa", "duckdb", flightsSQL)
		require.NoError(t, err)
		assert.Equal(t, connection.TemporaryTableName(flightsSQL)+"\n", out)
	})

	t.Run("schemas_and_tables", func(t *testing.T) {
		out, err := runCLI(t, "connection", "schemas", "analytics", "faa", "duckdb")
		require.NoError(t, err)
		assert.Contains(t, out, "main")

		out, err = runCLI(t, "connection", "tables", "analytics", "faa", "duckdb", "main", "-o", "json")
		require.NoError(t, err)
		var tables []string
		require.NoError(t, json.Unmarshal([]byte(out), &tables))
		assert.Empty(t, tables)
	})

	t.Run("describe_table_missing", func(t *testing.T) {
		_, err := runCLI(t, "connection", "describe-table", "analytics", "faa", "duckdb", "ghost", "--schema", "main")
		require.Error(t, err)
	})

	t.Run("describe_bucket_needs_object_store", func(t *testing.T) {
		_, err := runCLI(t, "connection", "describe-bucket", "analytics", "faa", "duckdb", "landing")
		var nie *domain.NotImplementedError
		require.ErrorAs(t, err, &nie)
		assert.Equal(t, 501, domain.HTTPStatus(err))
	})

	t.Run("unknown_connection", func(t *testing.T) {
		_, err := runCLI(t, "connection", "query", "analytics", "faa", "ghost", "SELECT 1")
		var cnf *domain.ConnectionNotFoundError
		require.ErrorAs(t, err, &cnf)
	})
}
