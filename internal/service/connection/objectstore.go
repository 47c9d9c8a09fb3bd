package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"model-publisher/internal/ddl"
	"model-publisher/internal/domain"
	"model-publisher/internal/service/storage"
)

var (
	_ domain.Connection   = (*ObjectStoreConnection)(nil)
	_ domain.SchemaLister = (*ObjectStoreConnection)(nil)
)

// ObjectStoreConnection queries files in a GCS or S3 store through an
// in-memory duckdb holding the store's credentials. Buckets act as schemas and
// data files as tables.
type ObjectStoreConnection struct {
	*SQLConnection
	lister storage.ObjectLister
}

// openObjectStore builds a gcs or s3 connection.
func openObjectStore(ctx context.Context, cfg domain.ConnectionConfig, logger *slog.Logger) (*ObjectStoreConnection, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb for %q: %w", cfg.Name, err)
	}
	conn := &ObjectStoreConnection{SQLConnection: NewSQLConnection(cfg.Name, cfg.Type, db)}

	fail := func(err error) (*ObjectStoreConnection, error) {
		_ = conn.Close()
		return nil, fmt.Errorf("connection %q: %w", cfg.Name, err)
	}

	load, err := ddl.LoadExtension("httpfs")
	if err != nil {
		return fail(err)
	}
	if _, err := db.ExecContext(ctx, load); err != nil {
		return fail(err)
	}

	secretName := "secret_" + sanitizeIdent(cfg.Name)
	var secret string
	switch cfg.Type {
	case domain.DialectGCS:
		if cfg.GCS.KeyID != "" {
			if secret, err = ddl.CreateGCSSecret(secretName, cfg.GCS.KeyID, cfg.GCS.Secret); err != nil {
				return fail(err)
			}
		}
		if cfg.GCS.ServiceAccountKeyJSON != "" {
			lister, err := storage.NewGCSLister(ctx, *cfg.GCS)
			if err != nil {
				return fail(err)
			}
			conn.lister = lister
		}
	case domain.DialectS3:
		if cfg.S3.AccessKeyID != "" {
			if secret, err = ddl.CreateS3Secret(secretName, s3SecretParams(*cfg.S3)); err != nil {
				return fail(err)
			}
		}
		conn.lister = storage.NewS3Lister(*cfg.S3)
	default:
		return fail(domain.ErrValidation("not an object store dialect: %q", cfg.Type))
	}

	if secret != "" {
		if _, err := db.ExecContext(ctx, secret); err != nil {
			return fail(err)
		}
	}
	logger.Debug("object store connection ready", "connection", cfg.Name, "type", cfg.Type)
	return conn, nil
}

// Close closes the duckdb pool and the lister's client, if it holds one.
func (c *ObjectStoreConnection) Close() error {
	err := c.SQLConnection.Close()
	if closer, ok := c.lister.(io.Closer); ok {
		err = errors.Join(err, closer.Close())
	}
	return err
}

// ListSchemas returns the bucket names of the store.
func (c *ObjectStoreConnection) ListSchemas(ctx context.Context) ([]string, error) {
	if c.lister == nil {
		return nil, domain.ErrNotImplemented("connection %q has no listing credentials", c.Name())
	}
	return c.lister.ListBuckets(ctx)
}

// ListTables returns the data files in bucket.
func (c *ObjectStoreConnection) ListTables(ctx context.Context, bucket string) ([]string, error) {
	if c.lister == nil {
		return nil, domain.ErrNotImplemented("connection %q has no listing credentials", c.Name())
	}
	keys, err := c.lister.ListObjects(ctx, bucket, "")
	if err != nil {
		return nil, err
	}
	return storage.FilterDataFiles(keys), nil
}

// DescribeBucket describes every data file under prefix in bucket.
func (c *ObjectStoreConnection) DescribeBucket(ctx context.Context, bucket, prefix string, limit int) ([]storage.FileDescription, error) {
	if c.lister == nil {
		return nil, domain.ErrNotImplemented("connection %q has no listing credentials", c.Name())
	}
	return storage.DescribeBucket(ctx, c.lister, c, bucket, prefix, limit)
}

// sanitizeIdent maps a connection name onto identifier characters.
func sanitizeIdent(s string) string {
	b := []byte(s)
	for i, ch := range b {
		isAlnum := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
		if !isAlnum {
			b[i] = '_'
		}
	}
	return string(b)
}
