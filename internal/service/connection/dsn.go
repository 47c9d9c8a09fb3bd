package connection

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/snowflakedb/gosnowflake"
	"github.com/trinodb/trino-go-client/trino"

	"model-publisher/internal/domain"
)

// buildPostgresDSN constructs a PostgreSQL key=value connection string.
// An explicit connection string wins over the individual fields.
func buildPostgresDSN(cfg domain.PostgresConfig) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	parts := []string{"host=" + host, "port=" + strconv.Itoa(port)}
	if cfg.DatabaseName != "" {
		parts = append(parts, "dbname="+cfg.DatabaseName)
	}
	if cfg.UserName != "" {
		parts = append(parts, "user="+cfg.UserName)
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+cfg.Password)
	}
	return strings.Join(parts, " ")
}

// buildMySQLDSN constructs a go-sql-driver DSN.
func buildMySQLDSN(cfg domain.MySQLConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.ParseTime = true
	return mc.FormatDSN()
}

// mysqlAttachTarget is the libmysql-style string duckdb's mysql extension expects.
func mysqlAttachTarget(cfg domain.MySQLConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	parts := []string{"host=" + cfg.Host, "port=" + strconv.Itoa(port)}
	if cfg.Database != "" {
		parts = append(parts, "database="+cfg.Database)
	}
	if cfg.User != "" {
		parts = append(parts, "user="+cfg.User)
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+cfg.Password)
	}
	return strings.Join(parts, " ")
}

// buildSnowflakeDSN constructs a gosnowflake DSN.
func buildSnowflakeDSN(cfg domain.SnowflakeConfig) (string, error) {
	sf := &gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.Username,
		Password:  cfg.Password,
		Warehouse: cfg.Warehouse,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
	}
	if cfg.ResponseTimeoutMilliseconds > 0 {
		sf.RequestTimeout = time.Duration(cfg.ResponseTimeoutMilliseconds) * time.Millisecond
	}
	dsn, err := gosnowflake.DSN(sf)
	if err != nil {
		return "", domain.ErrValidation("snowflake config: %v", err)
	}
	return dsn, nil
}

// buildTrinoDSN constructs a trino-go-client DSN. Server may omit the scheme.
func buildTrinoDSN(cfg domain.TrinoConfig) (string, error) {
	server := cfg.Server
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", domain.ErrValidation("trino server %q: %v", cfg.Server, err)
	}
	if cfg.Port != 0 {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(cfg.Port))
	}
	switch {
	case cfg.User != "" && cfg.Password != "":
		u.User = url.UserPassword(cfg.User, cfg.Password)
	case cfg.User != "":
		u.User = url.User(cfg.User)
	}

	tc := &trino.Config{
		ServerURI: u.String(),
		Source:    "model-publisher",
		Catalog:   cfg.Catalog,
		Schema:    cfg.Schema,
	}
	dsn, err := tc.FormatDSN()
	if err != nil {
		return "", fmt.Errorf("format trino dsn: %w", err)
	}
	return dsn, nil
}
