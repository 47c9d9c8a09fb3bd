package connection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"model-publisher/internal/domain"
)

var (
	_ domain.Connection   = (*BigQueryConnection)(nil)
	_ domain.SchemaLister = (*BigQueryConnection)(nil)
)

// BigQueryConnection runs standard SQL through the BigQuery client.
type BigQueryConnection struct {
	name           string
	client         *bigquery.Client
	projectID      string
	location       string
	maxBytesBilled int64
	timeout        time.Duration
}

// openBigQuery builds a BigQuery connection. A service account key is written
// to credentialDir because the client authenticates from a file.
func openBigQuery(ctx context.Context, name string, cfg domain.BigQueryConfig, credentialDir string) (*BigQueryConnection, error) {
	conn := &BigQueryConnection{
		name:      name,
		projectID: cfg.DefaultProjectID,
		location:  cfg.Location,
	}
	if cfg.MaximumBytesBilled != "" {
		n, err := strconv.ParseInt(cfg.MaximumBytesBilled, 10, 64)
		if err != nil {
			return nil, domain.ErrValidation("connection %q: invalid maximumBytesBilled %q", name, cfg.MaximumBytesBilled)
		}
		conn.maxBytesBilled = n
	}
	if cfg.QueryTimeoutMilliseconds != "" {
		ms, err := strconv.Atoi(cfg.QueryTimeoutMilliseconds)
		if err != nil {
			return nil, domain.ErrValidation("connection %q: invalid queryTimeoutMilliseconds %q", name, cfg.QueryTimeoutMilliseconds)
		}
		conn.timeout = time.Duration(ms) * time.Millisecond
	}

	var opts []option.ClientOption
	if cfg.ServiceAccountKeyJSON != "" {
		path, err := writeCredentialFile(credentialDir, []byte(cfg.ServiceAccountKeyJSON))
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, path))
	}

	billing := cfg.BillingProjectID
	if billing == "" {
		billing = cfg.DefaultProjectID
	}
	if billing == "" {
		billing = bigquery.DetectProjectID
	}
	client, err := bigquery.NewClient(ctx, billing, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client %q: %w", name, err)
	}
	conn.client = client
	if conn.projectID == "" {
		conn.projectID = client.Project()
	}
	return conn, nil
}

// Name returns the connection name.
func (c *BigQueryConnection) Name() string { return c.name }

// Dialect returns DialectBigQuery.
func (c *BigQueryConnection) Dialect() domain.Dialect { return domain.DialectBigQuery }

// Attributes returns the BigQuery capabilities.
func (c *BigQueryConnection) Attributes() domain.ConnectionAttributes {
	return attributesFor(domain.DialectBigQuery)
}

// RunSQL runs query as a standard SQL job.
func (c *BigQueryConnection) RunSQL(ctx context.Context, query string, opts domain.RunSQLOptions) (*domain.SQLResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	q := c.client.Query(query)
	q.Location = c.location
	q.MaxBytesBilled = c.maxBytesBilled

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}

	result := &domain.SQLResult{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		if opts.RowLimit > 0 && len(result.Rows) == opts.RowLimit {
			result.Truncated = true
			break
		}
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = v
		}
		result.Rows = append(result.Rows, values)
	}
	for _, f := range it.Schema {
		result.Columns = append(result.Columns, domain.Column{Name: f.Name, Type: string(f.Type)})
	}
	return result, nil
}

// Test runs a trivial query.
func (c *BigQueryConnection) Test(ctx context.Context) error {
	_, err := c.RunSQL(ctx, "SELECT 1", domain.RunSQLOptions{RowLimit: 1})
	return err
}

// Close releases the client.
func (c *BigQueryConnection) Close() error {
	return c.client.Close()
}

// ListSchemas returns the dataset IDs of the default project.
func (c *BigQueryConnection) ListSchemas(ctx context.Context) ([]string, error) {
	it := c.client.Datasets(ctx)
	it.ProjectID = c.projectID
	var out []string
	for {
		ds, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		out = append(out, ds.DatasetID)
	}
	return out, nil
}

// ListTables returns the table IDs of dataset.
func (c *BigQueryConnection) ListTables(ctx context.Context, dataset string) ([]string, error) {
	it := c.client.DatasetInProject(c.projectID, dataset).Tables(ctx)
	var out []string
	for {
		t, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list tables of %s: %w", dataset, err)
		}
		out = append(out, t.TableID)
	}
	return out, nil
}
