package connection

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"

	"github.com/duckdb/duckdb-go/v2"

	"model-publisher/internal/ddl"
	"model-publisher/internal/domain"
)

// openDuckDB opens a duckdb connection rooted at dir. Relative file paths in
// queries and attachments resolve against dir on every pooled connection.
func openDuckDB(ctx context.Context, name, dir string, cfg *domain.DuckDBConfig, logger *slog.Logger) (*SQLConnection, error) {
	dbPath := ""
	if cfg != nil && cfg.DatabasePath != "" {
		dbPath = resolvePath(dir, cfg.DatabasePath)
	}
	connector, err := duckdb.NewConnector(dbPath, searchPathInit(dir))
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", name, err)
	}
	db := sql.OpenDB(connector)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("duckdb %q: %w", name, err)
	}
	if cfg != nil {
		if err := attachDatabases(ctx, db, dir, cfg.AttachedDatabases, logger); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("duckdb %q: %w", name, err)
		}
	}
	return NewSQLConnection(name, domain.DialectDuckDB, db), nil
}

// searchPathInit sets file_search_path on each new driver connection. The
// setting is session scoped in duckdb.
func searchPathInit(dir string) func(driver.ExecerContext) error {
	if dir == "" {
		return nil
	}
	stmt := ddl.SetFileSearchPath(dir)
	return func(execer driver.ExecerContext) error {
		if _, err := execer.ExecContext(context.Background(), stmt, nil); err != nil {
			return fmt.Errorf("set file search path: %w", err)
		}
		return nil
	}
}

// OpenEphemeralDuckDB opens a throwaway in-memory duckdb rooted at dir, used
// for one-off work such as describing package data files.
func OpenEphemeralDuckDB(ctx context.Context, dir string) (*SQLConnection, error) {
	return openDuckDB(ctx, domain.DefaultDuckDBConnectionName, dir, nil, slog.New(slog.DiscardHandler))
}
