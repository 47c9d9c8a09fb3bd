package connection

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-publisher/internal/domain"
	"model-publisher/internal/testutil"
)

// newTestBroker returns a broker whose postgres constructor records the config
// it was given instead of opening a pool.
func newTestBroker(t *testing.T) (*Broker, map[string]domain.ConnectionConfig) {
	t.Helper()
	b := NewBroker(BrokerDeps{Logger: slog.New(slog.DiscardHandler), CredentialDir: t.TempDir()})
	built := make(map[string]domain.ConnectionConfig)
	b.constructors[domain.DialectPostgres] = func(_ context.Context, cfg domain.ConnectionConfig, _ string) (domain.Connection, error) {
		built[cfg.Name] = cfg
		return &testutil.MockConnection{ConnName: cfg.Name, ConnDialect: cfg.Type}, nil
	}
	return b, built
}

func pgConfig(name, host string) domain.ConnectionConfig {
	return domain.ConnectionConfig{
		Name:     name,
		Type:     domain.DialectPostgres,
		Postgres: &domain.PostgresConfig{Host: host, Password: "secret"},
	}
}

func TestBuildProjectConnections_DuplicateNameKeepsFirst(t *testing.T) {
	b, built := newTestBroker(t)

	conns, sanitized, err := b.BuildProjectConnections(context.Background(), []domain.ConnectionConfig{
		pgConfig("warehouse", "first.local"),
		pgConfig("other", "other.local"),
		pgConfig("warehouse", "second.local"),
	})
	require.NoError(t, err)

	assert.Len(t, conns, 2)
	require.Len(t, sanitized, 2)
	assert.Equal(t, "first.local", built["warehouse"].Postgres.Host)
	assert.Equal(t, "warehouse", sanitized[0].Name)
	assert.Equal(t, "first.local", sanitized[0].Postgres.Host)
	assert.Empty(t, sanitized[0].Postgres.Password)
}

func TestBuildProjectConnections_IgnoresDuckDB(t *testing.T) {
	b, _ := newTestBroker(t)

	conns, sanitized, err := b.BuildProjectConnections(context.Background(), []domain.ConnectionConfig{
		{Name: "local", Type: domain.DialectDuckDB},
		pgConfig("warehouse", "db.local"),
	})
	require.NoError(t, err)

	assert.NotContains(t, conns, "local")
	assert.Contains(t, conns, "warehouse")
	require.Len(t, sanitized, 1)
	assert.Equal(t, "warehouse", sanitized[0].Name)
}

func TestBuildProjectConnections_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.ConnectionConfig
	}{
		{name: "unknown_type", cfg: domain.ConnectionConfig{Name: "x", Type: "oracle"}},
		{name: "missing_type", cfg: domain.ConnectionConfig{Name: "x"}},
		{name: "missing_payload", cfg: domain.ConnectionConfig{Name: "x", Type: domain.DialectMySQL}},
		{name: "extra_payload", cfg: domain.ConnectionConfig{
			Name:     "x",
			Type:     domain.DialectPostgres,
			Postgres: &domain.PostgresConfig{},
			MySQL:    &domain.MySQLConfig{Host: "h"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBroker(t)
			good := &testutil.MockConnection{ConnName: "good"}
			b.constructors[domain.DialectPostgres] = func(context.Context, domain.ConnectionConfig, string) (domain.Connection, error) {
				return good, nil
			}

			_, _, err := b.BuildProjectConnections(context.Background(), []domain.ConnectionConfig{
				pgConfig("good", "h"), tt.cfg,
			})
			require.Error(t, err)
			var verr *domain.ValidationError
			assert.ErrorAs(t, err, &verr)
			assert.True(t, good.Closed(), "connections built before the failure are closed")
		})
	}
}

func TestBuildPackageConnections_ImplicitDuckDB(t *testing.T) {
	b, _ := newTestBroker(t)
	dir := t.TempDir()

	conns, sanitized, err := b.BuildPackageConnections(context.Background(), nil, dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseAll(conns) })

	require.Contains(t, conns, domain.DefaultDuckDBConnectionName)
	assert.Equal(t, domain.DialectDuckDB, conns["duckdb"].Dialect())
	assert.Empty(t, sanitized)

	res, err := conns["duckdb"].RunSQL(context.Background(), "SELECT current_setting('file_search_path')", domain.RunSQLOptions{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, dir, res.Rows[0][0])
}

func TestBuildPackageConnections_ReservedNameReplaced(t *testing.T) {
	b, _ := newTestBroker(t)

	conns, _, err := b.BuildPackageConnections(context.Background(), []domain.ConnectionConfig{
		pgConfig("duckdb", "db.local"),
	}, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseAll(conns) })

	assert.Equal(t, domain.DialectDuckDB, conns["duckdb"].Dialect())
}

func TestBuildPackageConnections_DeclaredDuckDBUsed(t *testing.T) {
	b, _ := newTestBroker(t)
	dir := t.TempDir()

	conns, sanitized, err := b.BuildPackageConnections(context.Background(), []domain.ConnectionConfig{
		{
			Name: "duckdb",
			Type: domain.DialectDuckDB,
			DuckDB: &domain.DuckDBConfig{AttachedDatabases: []domain.AttachedDatabase{
				{Name: "extra", Type: domain.AttachedDuckDB, Path: "extra.duckdb"},
			}},
		},
	}, dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseAll(conns) })

	require.Len(t, sanitized, 1)
	res, err := conns["duckdb"].RunSQL(context.Background(),
		"SELECT database_name FROM duckdb_databases() WHERE database_name = 'extra'", domain.RunSQLOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
}

func TestTestConnection(t *testing.T) {
	t.Run("invalid_config_reports_failure", func(t *testing.T) {
		b, _ := newTestBroker(t)
		status := b.TestConnection(context.Background(), domain.ConnectionConfig{Name: "x", Type: "oracle"})
		assert.Equal(t, domain.ConnectionStatusFailed, status.Status)
		assert.Contains(t, status.ErrorMessage, "unsupported connection type")
	})

	t.Run("health_check_failure", func(t *testing.T) {
		b, _ := newTestBroker(t)
		mock := &testutil.MockConnection{ConnName: "pg", TestFn: func(context.Context) error {
			return errors.New("connection refused")
		}}
		b.constructors[domain.DialectPostgres] = func(context.Context, domain.ConnectionConfig, string) (domain.Connection, error) {
			return mock, nil
		}

		status := b.TestConnection(context.Background(), pgConfig("pg", "h"))
		assert.Equal(t, domain.ConnectionStatusFailed, status.Status)
		assert.Equal(t, "connection refused", status.ErrorMessage)
		assert.True(t, mock.Closed())
	})

	t.Run("duckdb_ok", func(t *testing.T) {
		b, _ := newTestBroker(t)
		status := b.TestConnection(context.Background(), domain.ConnectionConfig{Name: "local", Type: domain.DialectDuckDB})
		assert.Equal(t, domain.ConnectionStatus{Status: domain.ConnectionStatusOK}, status)
	})
}

func TestMerge_LaterLayerWins(t *testing.T) {
	project := map[string]domain.Connection{
		"x": &testutil.MockConnection{ConnName: "x", ConnDialect: domain.DialectPostgres},
		"y": &testutil.MockConnection{ConnName: "y"},
	}
	pkg := map[string]domain.Connection{
		"x": &testutil.MockConnection{ConnName: "x", ConnDialect: domain.DialectMySQL},
	}

	merged := Merge(project, pkg)
	require.Len(t, merged, 2)
	assert.Same(t, pkg["x"], merged["x"])
	assert.Same(t, project["y"], merged["y"])
}

func TestListSchemas_NotImplemented(t *testing.T) {
	_, err := ListSchemas(context.Background(), &testutil.MockConnection{ConnName: "m"})
	var nie *domain.NotImplementedError
	require.ErrorAs(t, err, &nie)

	_, err = ListTables(context.Background(), &testutil.MockConnection{ConnName: "m"}, "public")
	require.ErrorAs(t, err, &nie)
}
