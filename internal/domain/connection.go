package domain

import (
	"context"
	"strings"
)

// Dialect identifies the backend a connection talks to.
type Dialect string

// Supported connection dialects.
const (
	DialectPostgres  Dialect = "postgres"
	DialectMySQL     Dialect = "mysql"
	DialectBigQuery  Dialect = "bigquery"
	DialectSnowflake Dialect = "snowflake"
	DialectTrino     Dialect = "trino"
	DialectDuckDB    Dialect = "duckdb"
	DialectGCS       Dialect = "gcs"
	DialectS3        Dialect = "s3"
)

// DefaultDuckDBConnectionName is the name of the implicit per-package duckdb connection.
const DefaultDuckDBConnectionName = "duckdb"

// ConnectionAttributes are the capabilities derived from a connection's dialect.
type ConnectionAttributes struct {
	DialectName string `json:"dialectName"`
	IsPool      bool   `json:"isPool"`
	CanPersist  bool   `json:"canPersist"`
	CanStream   bool   `json:"canStream"`
}

// ConnectionConfig is the declarative form of a connection. Exactly one of the
// dialect payloads is set, matching Type. DuckDB may omit its payload.
type ConnectionConfig struct {
	Name      string           `json:"name"`
	Type      Dialect          `json:"type"`
	Postgres  *PostgresConfig  `json:"postgresConnection,omitempty"`
	MySQL     *MySQLConfig     `json:"mysqlConnection,omitempty"`
	BigQuery  *BigQueryConfig  `json:"bigqueryConnection,omitempty"`
	Snowflake *SnowflakeConfig `json:"snowflakeConnection,omitempty"`
	Trino     *TrinoConfig     `json:"trinoConnection,omitempty"`
	DuckDB    *DuckDBConfig    `json:"duckdbConnection,omitempty"`
	GCS       *GCSConfig       `json:"gcsConnection,omitempty"`
	S3        *S3Config        `json:"s3Connection,omitempty"`
}

// PostgresConfig holds postgres connection settings.
type PostgresConfig struct {
	Host             string `json:"host,omitempty"`
	Port             int    `json:"port,omitempty"`
	DatabaseName     string `json:"databaseName,omitempty"`
	UserName         string `json:"userName,omitempty"`
	Password         string `json:"password,omitempty"`
	ConnectionString string `json:"connectionString,omitempty"`
}

// MySQLConfig holds mysql connection settings.
type MySQLConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// BigQueryConfig holds bigquery connection settings.
type BigQueryConfig struct {
	DefaultProjectID         string `json:"defaultProjectId,omitempty"`
	BillingProjectID         string `json:"billingProjectId,omitempty"`
	Location                 string `json:"location,omitempty"`
	ServiceAccountKeyJSON    string `json:"serviceAccountKeyJson,omitempty"`
	MaximumBytesBilled       string `json:"maximumBytesBilled,omitempty"`
	QueryTimeoutMilliseconds string `json:"queryTimeoutMilliseconds,omitempty"`
}

// SnowflakeConfig holds snowflake connection settings.
type SnowflakeConfig struct {
	Account                     string `json:"account,omitempty"`
	Username                    string `json:"username,omitempty"`
	Password                    string `json:"password,omitempty"`
	Warehouse                   string `json:"warehouse,omitempty"`
	Database                    string `json:"database,omitempty"`
	Schema                      string `json:"schema,omitempty"`
	ResponseTimeoutMilliseconds int    `json:"responseTimeoutMilliseconds,omitempty"`
}

// TrinoConfig holds trino connection settings.
type TrinoConfig struct {
	Server   string `json:"server,omitempty"`
	Port     int    `json:"port,omitempty"`
	Catalog  string `json:"catalog,omitempty"`
	Schema   string `json:"schema,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// DuckDBConfig holds duckdb connection settings.
type DuckDBConfig struct {
	// DatabasePath is an optional database file, relative to the package directory.
	DatabasePath      string             `json:"databasePath,omitempty"`
	AttachedDatabases []AttachedDatabase `json:"attachedDatabases,omitempty"`
}

// AttachedDatabaseType identifies what an attached database points at.
type AttachedDatabaseType string

// Supported attached database types.
const (
	AttachedDuckDB   AttachedDatabaseType = "duckdb"
	AttachedSQLite   AttachedDatabaseType = "sqlite"
	AttachedPostgres AttachedDatabaseType = "postgres"
	AttachedMySQL    AttachedDatabaseType = "mysql"
	AttachedGCS      AttachedDatabaseType = "gcs"
	AttachedS3       AttachedDatabaseType = "s3"
)

// AttachedDatabase is a secondary database made visible inside a duckdb connection.
// Object-store entries register credentials rather than a catalog.
type AttachedDatabase struct {
	Name     string               `json:"name"`
	Type     AttachedDatabaseType `json:"type"`
	Path     string               `json:"path,omitempty"`
	ReadOnly bool                 `json:"readOnly,omitempty"`
	Postgres *PostgresConfig      `json:"postgresConnection,omitempty"`
	MySQL    *MySQLConfig         `json:"mysqlConnection,omitempty"`
	GCS      *GCSConfig           `json:"gcsConnection,omitempty"`
	S3       *S3Config            `json:"s3Connection,omitempty"`
}

// GCSConfig holds Google Cloud Storage credentials. KeyID/Secret are HMAC keys
// used by duckdb; ServiceAccountKeyJSON is used for bucket listing.
type GCSConfig struct {
	KeyID                 string `json:"keyId,omitempty"`
	Secret                string `json:"secret,omitempty"`
	ServiceAccountKeyJSON string `json:"serviceAccountKeyJson,omitempty"`
}

// S3Config holds S3 (or S3-compatible) credentials.
type S3Config struct {
	AccessKeyID     string `json:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty"`
	SessionToken    string `json:"sessionToken,omitempty"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	URLStyle        string `json:"urlStyle,omitempty"`
}

// Validate checks that the variant payload matches the declared dialect.
func (c *ConnectionConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrValidation("connection name is required")
	}
	set := c.payloadCount()
	switch c.Type {
	case DialectPostgres:
		if c.Postgres == nil {
			return ErrValidation("connection %q: postgresConnection is required", c.Name)
		}
	case DialectMySQL:
		if c.MySQL == nil {
			return ErrValidation("connection %q: mysqlConnection is required", c.Name)
		}
		if c.MySQL.Host == "" {
			return ErrValidation("connection %q: mysql host is required", c.Name)
		}
	case DialectBigQuery:
		if c.BigQuery == nil {
			return ErrValidation("connection %q: bigqueryConnection is required", c.Name)
		}
	case DialectSnowflake:
		if c.Snowflake == nil {
			return ErrValidation("connection %q: snowflakeConnection is required", c.Name)
		}
		if c.Snowflake.Account == "" {
			return ErrValidation("connection %q: snowflake account is required", c.Name)
		}
	case DialectTrino:
		if c.Trino == nil {
			return ErrValidation("connection %q: trinoConnection is required", c.Name)
		}
		if c.Trino.Server == "" {
			return ErrValidation("connection %q: trino server is required", c.Name)
		}
	case DialectDuckDB:
		if c.DuckDB == nil {
			set++ // payload is optional for duckdb
		}
	case DialectGCS:
		if c.GCS == nil {
			return ErrValidation("connection %q: gcsConnection is required", c.Name)
		}
	case DialectS3:
		if c.S3 == nil {
			return ErrValidation("connection %q: s3Connection is required", c.Name)
		}
	case "":
		return ErrValidation("connection %q: type is required", c.Name)
	default:
		return ErrValidation("connection %q: unsupported connection type %q", c.Name, c.Type)
	}
	if set != 1 {
		return ErrValidation("connection %q: exactly one connection payload must be set for type %q", c.Name, c.Type)
	}
	return nil
}

func (c *ConnectionConfig) payloadCount() int {
	n := 0
	for _, set := range []bool{
		c.Postgres != nil, c.MySQL != nil, c.BigQuery != nil, c.Snowflake != nil,
		c.Trino != nil, c.DuckDB != nil, c.GCS != nil, c.S3 != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Sanitized returns a copy of the config with credentials blanked out.
func (c ConnectionConfig) Sanitized() ConnectionConfig {
	out := c
	if c.Postgres != nil {
		p := *c.Postgres
		p.Password = ""
		p.ConnectionString = ""
		out.Postgres = &p
	}
	if c.MySQL != nil {
		m := *c.MySQL
		m.Password = ""
		out.MySQL = &m
	}
	if c.BigQuery != nil {
		b := *c.BigQuery
		b.ServiceAccountKeyJSON = ""
		out.BigQuery = &b
	}
	if c.Snowflake != nil {
		s := *c.Snowflake
		s.Password = ""
		out.Snowflake = &s
	}
	if c.Trino != nil {
		t := *c.Trino
		t.Password = ""
		out.Trino = &t
	}
	if c.DuckDB != nil {
		d := *c.DuckDB
		d.AttachedDatabases = make([]AttachedDatabase, len(c.DuckDB.AttachedDatabases))
		for i, a := range c.DuckDB.AttachedDatabases {
			d.AttachedDatabases[i] = a.sanitized()
		}
		out.DuckDB = &d
	}
	if c.GCS != nil {
		g := c.GCS.sanitized()
		out.GCS = &g
	}
	if c.S3 != nil {
		s := c.S3.sanitized()
		out.S3 = &s
	}
	return out
}

func (a AttachedDatabase) sanitized() AttachedDatabase {
	out := a
	if a.Postgres != nil {
		p := *a.Postgres
		p.Password = ""
		p.ConnectionString = ""
		out.Postgres = &p
	}
	if a.MySQL != nil {
		m := *a.MySQL
		m.Password = ""
		out.MySQL = &m
	}
	if a.GCS != nil {
		g := a.GCS.sanitized()
		out.GCS = &g
	}
	if a.S3 != nil {
		s := a.S3.sanitized()
		out.S3 = &s
	}
	return out
}

func (g GCSConfig) sanitized() GCSConfig {
	g.Secret = ""
	g.ServiceAccountKeyJSON = ""
	return g
}

func (s S3Config) sanitized() S3Config {
	s.SecretAccessKey = ""
	s.SessionToken = ""
	return s
}

// ConnectionStatus is the outcome of a connection health check.
type ConnectionStatus struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Connection status values.
const (
	ConnectionStatusOK     = "ok"
	ConnectionStatusFailed = "failed"
)

// Column describes one column of a table or query result.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableDescription is the schema and row count of a table or data file.
type TableDescription struct {
	Name     string   `json:"name"`
	RowCount int64    `json:"rowCount"`
	Columns  []Column `json:"columns"`
}

// SQLSource describes the columns a SQL statement yields on a connection.
type SQLSource struct {
	Resource string   `json:"resource"`
	SQL      string   `json:"source"`
	Columns  []Column `json:"columns"`
}

// TableSource describes the columns of a table reached through a connection.
type TableSource struct {
	Resource string   `json:"resource"`
	Source   string   `json:"source"`
	Columns  []Column `json:"columns"`
}

// TemporaryTable names a table materialized from a SQL statement.
type TemporaryTable struct {
	Table string `json:"table"`
}

// SQLResult holds rows returned by Connection.RunSQL.
type SQLResult struct {
	Columns   []Column `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// RunSQLOptions bounds a RunSQL call.
type RunSQLOptions struct {
	RowLimit int
}

// Connection is a live handle to a query-capable backend.
type Connection interface {
	Name() string
	Dialect() Dialect
	Attributes() ConnectionAttributes
	RunSQL(ctx context.Context, query string, opts RunSQLOptions) (*SQLResult, error)
	Test(ctx context.Context) error
	Close() error
}

// SchemaLister is implemented by connections that can enumerate their schemas and tables.
type SchemaLister interface {
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schema string) ([]string, error)
}
