// Package connection turns declarative connection configuration into live
// connections and merges them across project and package scope.
package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver

	"model-publisher/internal/domain"
)

// constructor builds one live connection. packagePath is empty at project scope.
type constructor func(ctx context.Context, cfg domain.ConnectionConfig, packagePath string) (domain.Connection, error)

// BrokerDeps holds the dependencies of a Broker.
type BrokerDeps struct {
	Logger *slog.Logger
	// CredentialDir receives secrets that drivers only accept as files.
	CredentialDir string
}

// Broker builds live connections from configuration.
type Broker struct {
	logger        *slog.Logger
	credentialDir string
	constructors  map[domain.Dialect]constructor
}

// NewBroker creates a Broker with one constructor per supported dialect.
func NewBroker(deps BrokerDeps) *Broker {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Broker{
		logger:        logger.With("component", "connection-broker"),
		credentialDir: deps.CredentialDir,
	}
	b.constructors = map[domain.Dialect]constructor{
		domain.DialectPostgres:  b.openPostgres,
		domain.DialectMySQL:     b.openMySQL,
		domain.DialectBigQuery:  b.openBigQuery,
		domain.DialectSnowflake: b.openSnowflake,
		domain.DialectTrino:     b.openTrino,
		domain.DialectDuckDB:    b.openDuckDB,
		domain.DialectGCS:       b.openObjectStore,
		domain.DialectS3:        b.openObjectStore,
	}
	return b
}

// BuildProjectConnections builds project-scope connections. duckdb entries are
// ignored at project scope because duckdb needs a package directory; they
// appear in neither result.
func (b *Broker) BuildProjectConnections(ctx context.Context, configs []domain.ConnectionConfig) (map[string]domain.Connection, []domain.ConnectionConfig, error) {
	kept := make([]domain.ConnectionConfig, 0, len(configs))
	for _, cfg := range b.dedupe(configs) {
		if cfg.Type == domain.DialectDuckDB {
			b.logger.Warn("duckdb connections are only available at package scope; ignoring", "connection", cfg.Name)
			continue
		}
		kept = append(kept, cfg)
	}
	return b.build(ctx, kept, "")
}

// BuildPackageConnections builds package-scope connections rooted at
// packagePath. The result always contains a duckdb connection named
// DefaultDuckDBConnectionName; a declared duckdb connection of that name
// supplies its settings.
func (b *Broker) BuildPackageConnections(ctx context.Context, configs []domain.ConnectionConfig, packagePath string) (map[string]domain.Connection, []domain.ConnectionConfig, error) {
	kept := b.dedupe(configs)
	hasDefault := false
	for _, cfg := range kept {
		if cfg.Name == domain.DefaultDuckDBConnectionName && cfg.Type == domain.DialectDuckDB {
			hasDefault = true
			break
		}
	}

	conns, sanitized, err := b.build(ctx, kept, packagePath)
	if err != nil {
		return nil, nil, err
	}
	if hasDefault {
		return conns, sanitized, nil
	}

	if prev, ok := conns[domain.DefaultDuckDBConnectionName]; ok {
		b.logger.Warn("connection name reserved for the package duckdb connection; replacing",
			"connection", prev.Name(), "type", prev.Dialect())
		_ = prev.Close()
	}
	duck, err := openDuckDB(ctx, domain.DefaultDuckDBConnectionName, packagePath, nil, b.logger)
	if err != nil {
		_ = CloseAll(conns)
		return nil, nil, err
	}
	conns[domain.DefaultDuckDBConnectionName] = duck
	return conns, sanitized, nil
}

// TestConnection builds a throwaway connection from cfg and runs its health
// check. Failures are reported in the status, never returned.
func (b *Broker) TestConnection(ctx context.Context, cfg domain.ConnectionConfig) domain.ConnectionStatus {
	conn, err := b.open(ctx, cfg, "")
	if err != nil {
		return domain.ConnectionStatus{Status: domain.ConnectionStatusFailed, ErrorMessage: err.Error()}
	}
	defer conn.Close() //nolint:errcheck

	if err := conn.Test(ctx); err != nil {
		return domain.ConnectionStatus{Status: domain.ConnectionStatusFailed, ErrorMessage: err.Error()}
	}
	return domain.ConnectionStatus{Status: domain.ConnectionStatusOK}
}

// dedupe keeps the first config of every name.
func (b *Broker) dedupe(configs []domain.ConnectionConfig) []domain.ConnectionConfig {
	seen := make(map[string]bool, len(configs))
	out := make([]domain.ConnectionConfig, 0, len(configs))
	for _, cfg := range configs {
		if seen[cfg.Name] {
			b.logger.Warn("duplicate connection name; keeping the first definition", "connection", cfg.Name)
			continue
		}
		seen[cfg.Name] = true
		out = append(out, cfg)
	}
	return out
}

func (b *Broker) build(ctx context.Context, configs []domain.ConnectionConfig, packagePath string) (map[string]domain.Connection, []domain.ConnectionConfig, error) {
	conns := make(map[string]domain.Connection, len(configs)+1)
	sanitized := make([]domain.ConnectionConfig, 0, len(configs))
	for _, cfg := range configs {
		conn, err := b.open(ctx, cfg, packagePath)
		if err != nil {
			_ = CloseAll(conns)
			return nil, nil, err
		}
		conns[cfg.Name] = conn
		sanitized = append(sanitized, cfg.Sanitized())
	}
	return conns, sanitized, nil
}

func (b *Broker) open(ctx context.Context, cfg domain.ConnectionConfig, packagePath string) (domain.Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctor, ok := b.constructors[cfg.Type]
	if !ok {
		return nil, domain.ErrValidation("connection %q: unsupported connection type %q", cfg.Name, cfg.Type)
	}
	conn, err := ctor(ctx, cfg, packagePath)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("connection built", "connection", cfg.Name, "type", cfg.Type)
	return conn, nil
}

func (b *Broker) openPostgres(_ context.Context, cfg domain.ConnectionConfig, _ string) (domain.Connection, error) {
	return openSQL(cfg, "pgx", buildPostgresDSN(*cfg.Postgres))
}

func (b *Broker) openMySQL(_ context.Context, cfg domain.ConnectionConfig, _ string) (domain.Connection, error) {
	return openSQL(cfg, "mysql", buildMySQLDSN(*cfg.MySQL))
}

func (b *Broker) openSnowflake(_ context.Context, cfg domain.ConnectionConfig, _ string) (domain.Connection, error) {
	dsn, err := buildSnowflakeDSN(*cfg.Snowflake)
	if err != nil {
		return nil, err
	}
	return openSQL(cfg, "snowflake", dsn)
}

func (b *Broker) openTrino(_ context.Context, cfg domain.ConnectionConfig, _ string) (domain.Connection, error) {
	dsn, err := buildTrinoDSN(*cfg.Trino)
	if err != nil {
		return nil, err
	}
	return openSQL(cfg, "trino", dsn)
}

func (b *Broker) openBigQuery(ctx context.Context, cfg domain.ConnectionConfig, _ string) (domain.Connection, error) {
	return openBigQuery(ctx, cfg.Name, *cfg.BigQuery, b.credentialDir)
}

func (b *Broker) openDuckDB(ctx context.Context, cfg domain.ConnectionConfig, packagePath string) (domain.Connection, error) {
	return openDuckDB(ctx, cfg.Name, packagePath, cfg.DuckDB, b.logger)
}

func (b *Broker) openObjectStore(ctx context.Context, cfg domain.ConnectionConfig, _ string) (domain.Connection, error) {
	return openObjectStore(ctx, cfg, b.logger)
}

// openSQL opens a lazily-connecting pool; no I/O happens until first use.
func openSQL(cfg domain.ConnectionConfig, driver, dsn string) (domain.Connection, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection %q: %w", driver, cfg.Name, err)
	}
	return NewSQLConnection(cfg.Name, cfg.Type, db), nil
}

// Merge combines connection layers; a later layer replaces earlier entries of
// the same name.
func Merge(layers ...map[string]domain.Connection) map[string]domain.Connection {
	out := make(map[string]domain.Connection)
	for _, layer := range layers {
		for name, conn := range layer {
			out[name] = conn
		}
	}
	return out
}

// CloseAll closes every connection, joining the errors.
func CloseAll(conns map[string]domain.Connection) error {
	var errs []error
	for name, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ListSchemas lists the schemas of conn, or fails with NotImplementedError
// when the backend cannot enumerate them.
func ListSchemas(ctx context.Context, conn domain.Connection) ([]string, error) {
	lister, ok := conn.(domain.SchemaLister)
	if !ok {
		return nil, domain.ErrNotImplemented("connection %q cannot list schemas", conn.Name())
	}
	return lister.ListSchemas(ctx)
}

// ListTables lists the tables of schema in conn, or fails with
// NotImplementedError when the backend cannot enumerate them.
func ListTables(ctx context.Context, conn domain.Connection, schema string) ([]string, error) {
	lister, ok := conn.(domain.SchemaLister)
	if !ok {
		return nil, domain.ErrNotImplemented("connection %q cannot list tables", conn.Name())
	}
	return lister.ListTables(ctx, schema)
}
