package connection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"model-publisher/internal/ddl"
	"model-publisher/internal/domain"
)

// attachDatabases makes every configured secondary database visible inside db.
// Names already present in duckdb_databases() are skipped, and an attach that
// races with another one and reports "already exists" counts as attached.
// Object-store entries register a secret instead of a catalog.
func attachDatabases(ctx context.Context, db *sql.DB, dir string, list []domain.AttachedDatabase, logger *slog.Logger) error {
	if len(list) == 0 {
		return nil
	}
	present, err := attachedNames(ctx, db)
	if err != nil {
		return err
	}

	for _, a := range list {
		if present[a.Name] {
			logger.Debug("database already attached", "database", a.Name)
			continue
		}
		stmt, err := attachStatement(a, dir)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if isAlreadyAttached(err) {
				logger.Debug("database attached concurrently", "database", a.Name)
				present[a.Name] = true
				continue
			}
			return fmt.Errorf("attach %q: %w", a.Name, err)
		}
		present[a.Name] = true
		logger.Info("attached database", "database", a.Name, "type", a.Type)
	}
	return nil
}

// attachedNames lists the databases currently attached to db.
func attachedNames(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, ddl.ListDatabases)
	if err != nil {
		return nil, fmt.Errorf("list attached databases: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}

func attachStatement(a domain.AttachedDatabase, dir string) (string, error) {
	switch a.Type {
	case domain.AttachedDuckDB, "":
		return ddl.AttachDatabase(a.Name, resolvePath(dir, a.Path), "", a.ReadOnly)
	case domain.AttachedSQLite:
		return ddl.AttachDatabase(a.Name, resolvePath(dir, a.Path), "sqlite", a.ReadOnly)
	case domain.AttachedPostgres:
		if a.Postgres == nil {
			return "", domain.ErrValidation("attached database %q: postgresConnection is required", a.Name)
		}
		return ddl.AttachDatabase(a.Name, buildPostgresDSN(*a.Postgres), "postgres", a.ReadOnly)
	case domain.AttachedMySQL:
		if a.MySQL == nil {
			return "", domain.ErrValidation("attached database %q: mysqlConnection is required", a.Name)
		}
		return ddl.AttachDatabase(a.Name, mysqlAttachTarget(*a.MySQL), "mysql", a.ReadOnly)
	case domain.AttachedGCS:
		if a.GCS == nil {
			return "", domain.ErrValidation("attached database %q: gcsConnection is required", a.Name)
		}
		return ddl.CreateGCSSecret(a.Name, a.GCS.KeyID, a.GCS.Secret)
	case domain.AttachedS3:
		if a.S3 == nil {
			return "", domain.ErrValidation("attached database %q: s3Connection is required", a.Name)
		}
		return ddl.CreateS3Secret(a.Name, s3SecretParams(*a.S3))
	default:
		return "", domain.ErrValidation("attached database %q: unsupported type %q", a.Name, a.Type)
	}
}

func isAlreadyAttached(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "already attached")
}

func resolvePath(dir, p string) string {
	if p == "" || dir == "" || filepath.IsAbs(p) || strings.Contains(p, "://") {
		return p
	}
	return filepath.Join(dir, p)
}

func s3SecretParams(c domain.S3Config) ddl.S3SecretParams {
	return ddl.S3SecretParams{
		KeyID:        c.AccessKeyID,
		Secret:       c.SecretAccessKey,
		SessionToken: c.SessionToken,
		Region:       c.Region,
		Endpoint:     c.Endpoint,
		URLStyle:     c.URLStyle,
	}
}
