// Package ddl builds DuckDB statements for attaching databases, registering
// object-store secrets, and describing data files.
package ddl

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileFormat is a data file format DuckDB can read directly.
type FileFormat string

// Supported data file formats.
const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
	FormatNDJSON  FileFormat = "ndjson"
)

// ListDatabases lists every database currently attached to a DuckDB instance.
const ListDatabases = "SELECT database_name FROM duckdb_databases()"

// FormatForPath returns the file format implied by a path's extension.
func FormatForPath(path string) (FileFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, true
	case ".parquet":
		return FormatParquet, true
	case ".json":
		return FormatJSON, true
	case ".jsonl", ".ndjson":
		return FormatNDJSON, true
	default:
		return "", false
	}
}

// ReadFileExpr returns the table function that reads path in the given format.
func ReadFileExpr(path string, format FileFormat) (string, error) {
	if path == "" {
		return "", fmt.Errorf("source path is required")
	}
	lit := QuoteLiteral(path)
	switch format {
	case FormatCSV:
		return fmt.Sprintf("read_csv_auto(%s)", lit), nil
	case FormatParquet:
		return fmt.Sprintf("read_parquet(%s)", lit), nil
	case FormatJSON:
		return fmt.Sprintf("read_json_auto(%s)", lit), nil
	case FormatNDJSON:
		return fmt.Sprintf("read_json_auto(%s, format = 'newline_delimited')", lit), nil
	default:
		return "", fmt.Errorf("unsupported file format: %q", format)
	}
}

// DescribeFile returns a DESCRIBE statement for the columns of a data file.
func DescribeFile(path string, format FileFormat) (string, error) {
	expr, err := ReadFileExpr(path, format)
	if err != nil {
		return "", err
	}
	return "DESCRIBE SELECT * FROM " + expr, nil
}

// CountFileRows returns a statement counting the rows of a data file.
func CountFileRows(path string, format FileFormat) (string, error) {
	expr, err := ReadFileExpr(path, format)
	if err != nil {
		return "", err
	}
	return "SELECT count(*) FROM " + expr, nil
}

// SetFileSearchPath returns a session-scoped statement that resolves relative
// file paths against dir.
func SetFileSearchPath(dir string) string {
	return "SET file_search_path = " + QuoteLiteral(dir)
}

// LoadExtension returns a statement that installs and loads a DuckDB extension.
func LoadExtension(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid extension name: %w", err)
	}
	return fmt.Sprintf("INSTALL %s; LOAD %s;", name, name), nil
}

// AttachDatabase returns an ATTACH statement. typ is the DuckDB storage
// extension type ("" for a native duckdb file).
func AttachDatabase(name, target, typ string, readOnly bool) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid database name: %w", err)
	}
	if target == "" {
		return "", fmt.Errorf("attach target is required for %q", name)
	}
	var opts []string
	if typ != "" {
		if err := ValidateIdentifier(typ); err != nil {
			return "", fmt.Errorf("invalid database type: %w", err)
		}
		opts = append(opts, "TYPE "+strings.ToUpper(typ))
	}
	if readOnly {
		opts = append(opts, "READ_ONLY")
	}
	stmt := fmt.Sprintf("ATTACH %s AS %s", QuoteLiteral(target), QuoteIdentifier(name))
	if len(opts) > 0 {
		stmt += " (" + strings.Join(opts, ", ") + ")"
	}
	return stmt, nil
}

// S3SecretParams holds the fields of a DuckDB S3 secret. Empty optional
// fields are omitted from the statement.
type S3SecretParams struct {
	KeyID        string
	Secret       string
	SessionToken string
	Region       string
	Endpoint     string
	URLStyle     string
}

// CreateS3Secret returns a DuckDB DDL statement to create an S3 secret.
func CreateS3Secret(name string, p S3SecretParams) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid secret name: %w", err)
	}
	if p.KeyID == "" || p.Secret == "" {
		return "", fmt.Errorf("key id and secret are required")
	}
	fields := []string{
		"TYPE S3",
		"KEY_ID " + QuoteLiteral(p.KeyID),
		"SECRET " + QuoteLiteral(p.Secret),
	}
	for _, opt := range []struct{ key, value string }{
		{"SESSION_TOKEN", p.SessionToken},
		{"REGION", p.Region},
		{"ENDPOINT", p.Endpoint},
		{"URL_STYLE", p.URLStyle},
	} {
		if opt.value != "" {
			fields = append(fields, opt.key+" "+QuoteLiteral(opt.value))
		}
	}
	return fmt.Sprintf("CREATE OR REPLACE SECRET %s (\n\t%s\n)", QuoteIdentifier(name), strings.Join(fields, ",\n\t")), nil
}

// CreateGCSSecret returns a DuckDB DDL statement to create a GCS secret from HMAC keys.
func CreateGCSSecret(name, keyID, secret string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid secret name: %w", err)
	}
	if keyID == "" || secret == "" {
		return "", fmt.Errorf("HMAC key id and secret are required")
	}
	return fmt.Sprintf("CREATE OR REPLACE SECRET %s (\n\tTYPE GCS,\n\tKEY_ID %s,\n\tSECRET %s\n)",
		QuoteIdentifier(name),
		QuoteLiteral(keyID),
		QuoteLiteral(secret),
	), nil
}

// CreateTempTableAs returns a statement that materializes query into the
// temporary table name. An existing table of that name is kept.
func CreateTempTableAs(name, query string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	query = trimStatement(query)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	return fmt.Sprintf("CREATE TEMPORARY TABLE IF NOT EXISTS %s AS (%s)", name, query), nil
}

// DescribeQuery returns a statement that yields the columns of query and no rows.
func DescribeQuery(query string) (string, error) {
	query = trimStatement(query)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS described LIMIT 0", query), nil
}

func trimStatement(query string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(query), ";"))
}
