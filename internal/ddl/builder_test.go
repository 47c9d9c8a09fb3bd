package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path   string
		want   FileFormat
		wantOK bool
	}{
		{"data/flights.csv", FormatCSV, true},
		{"FLIGHTS.CSV", FormatCSV, true},
		{"a/b.parquet", FormatParquet, true},
		{"events.json", FormatJSON, true},
		{"events.jsonl", FormatNDJSON, true},
		{"events.ndjson", FormatNDJSON, true},
		{"model.malloy", "", false},
		{"noext", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := FormatForPath(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDescribeFile(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		format  FileFormat
		want    string
		wantErr string
	}{
		{
			name:   "csv",
			path:   "data.csv",
			format: FormatCSV,
			want:   "DESCRIBE SELECT * FROM read_csv_auto('data.csv')",
		},
		{
			name:   "parquet",
			path:   "s3://bucket/x.parquet",
			format: FormatParquet,
			want:   "DESCRIBE SELECT * FROM read_parquet('s3://bucket/x.parquet')",
		},
		{
			name:   "json",
			path:   "e.json",
			format: FormatJSON,
			want:   "DESCRIBE SELECT * FROM read_json_auto('e.json')",
		},
		{
			name:   "ndjson",
			path:   "e.ndjson",
			format: FormatNDJSON,
			want:   "DESCRIBE SELECT * FROM read_json_auto('e.ndjson', format = 'newline_delimited')",
		},
		{
			name:   "quote_escaped",
			path:   "it's.csv",
			format: FormatCSV,
			want:   "DESCRIBE SELECT * FROM read_csv_auto('it''s.csv')",
		},
		{name: "empty_path", format: FormatCSV, wantErr: "source path is required"},
		{name: "unknown_format", path: "x.xlsx", format: "xlsx", wantErr: "unsupported file format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DescribeFile(tt.path, tt.format)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountFileRows(t *testing.T) {
	got, err := CountFileRows("gs://b/data.parquet", FormatParquet)
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM read_parquet('gs://b/data.parquet')", got)
}

func TestAttachDatabase(t *testing.T) {
	tests := []struct {
		name     string
		db       string
		target   string
		typ      string
		readOnly bool
		want     string
		wantErr  string
	}{
		{
			name:   "native_file",
			db:     "warehouse",
			target: "/data/warehouse.duckdb",
			want:   `ATTACH '/data/warehouse.duckdb' AS "warehouse"`,
		},
		{
			name:     "postgres_read_only",
			db:       "pg",
			target:   "host=localhost dbname=app",
			typ:      "postgres",
			readOnly: true,
			want:     `ATTACH 'host=localhost dbname=app' AS "pg" (TYPE POSTGRES, READ_ONLY)`,
		},
		{
			name:   "sqlite",
			db:     "lite",
			target: "app.db",
			typ:    "sqlite",
			want:   `ATTACH 'app.db' AS "lite" (TYPE SQLITE)`,
		},
		{name: "bad_name", db: "my-db", target: "x", wantErr: "invalid database name"},
		{name: "no_target", db: "db", wantErr: "attach target is required"},
		{name: "bad_type", db: "db", target: "x", typ: "pg sql", wantErr: "invalid database type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AttachDatabase(tt.db, tt.target, tt.typ, tt.readOnly)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateS3Secret(t *testing.T) {
	t.Run("required_only", func(t *testing.T) {
		got, err := CreateS3Secret("s3_lake", S3SecretParams{KeyID: "AKIA", Secret: "shh"})
		require.NoError(t, err)
		assert.Equal(t, "CREATE OR REPLACE SECRET \"s3_lake\" (\n\tTYPE S3,\n\tKEY_ID 'AKIA',\n\tSECRET 'shh'\n)", got)
	})

	t.Run("optional_fields", func(t *testing.T) {
		got, err := CreateS3Secret("s3_lake", S3SecretParams{
			KeyID:    "AKIA",
			Secret:   "shh",
			Region:   "eu-west-1",
			Endpoint: "minio:9000",
			URLStyle: "path",
		})
		require.NoError(t, err)
		assert.Contains(t, got, "REGION 'eu-west-1'")
		assert.Contains(t, got, "ENDPOINT 'minio:9000'")
		assert.Contains(t, got, "URL_STYLE 'path'")
		assert.NotContains(t, got, "SESSION_TOKEN")
	})

	t.Run("missing_keys", func(t *testing.T) {
		_, err := CreateS3Secret("s3_lake", S3SecretParams{KeyID: "AKIA"})
		require.Error(t, err)
	})

	t.Run("bad_name", func(t *testing.T) {
		_, err := CreateS3Secret("s3-lake", S3SecretParams{KeyID: "a", Secret: "b"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid secret name")
	})
}

func TestCreateGCSSecret(t *testing.T) {
	got, err := CreateGCSSecret("gcs_raw", "GOOG1", "it's")
	require.NoError(t, err)
	assert.Equal(t, "CREATE OR REPLACE SECRET \"gcs_raw\" (\n\tTYPE GCS,\n\tKEY_ID 'GOOG1',\n\tSECRET 'it''s'\n)", got)

	_, err = CreateGCSSecret("gcs_raw", "", "x")
	require.Error(t, err)
}

func TestLoadExtension(t *testing.T) {
	got, err := LoadExtension("httpfs")
	require.NoError(t, err)
	assert.Equal(t, "INSTALL httpfs; LOAD httpfs;", got)

	_, err = LoadExtension("httpfs; DROP")
	require.Error(t, err)
}

func TestSetFileSearchPath(t *testing.T) {
	assert.Equal(t, "SET file_search_path = '/srv/pkg'", SetFileSearchPath("/srv/pkg"))
}

func TestCreateTempTableAs(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		query   string
		want    string
		wantErr string
	}{
		{
			name:  "plain",
			table: "tt0123abcd",
			query: "SELECT 1 AS one",
			want:  "CREATE TEMPORARY TABLE IF NOT EXISTS tt0123abcd AS (SELECT 1 AS one)",
		},
		{
			name:  "trailing_semicolon",
			table: "tt1",
			query: "  SELECT * FROM flights;\n",
			want:  "CREATE TEMPORARY TABLE IF NOT EXISTS tt1 AS (SELECT * FROM flights)",
		},
		{name: "bad_name", table: "t t", query: "SELECT 1", wantErr: "invalid table name"},
		{name: "empty_query", table: "tt1", query: " ; ", wantErr: "query is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CreateTempTableAs(tt.table, tt.query)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDescribeQuery(t *testing.T) {
	got, err := DescribeQuery("SELECT a, b FROM t;")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM (SELECT a, b FROM t) AS described LIMIT 0", got)

	_, err = DescribeQuery("   ")
	require.Error(t, err)
}
