package connection

import "model-publisher/internal/domain"

// attributesFor derives the capabilities of a dialect.
func attributesFor(d domain.Dialect) domain.ConnectionAttributes {
	switch d {
	case domain.DialectPostgres, domain.DialectMySQL, domain.DialectSnowflake:
		return domain.ConnectionAttributes{DialectName: string(d), IsPool: true, CanPersist: true, CanStream: true}
	case domain.DialectBigQuery:
		return domain.ConnectionAttributes{DialectName: "standardsql", CanPersist: true, CanStream: true}
	case domain.DialectTrino:
		return domain.ConnectionAttributes{DialectName: "trino", CanPersist: true, CanStream: true}
	case domain.DialectDuckDB:
		return domain.ConnectionAttributes{DialectName: "duckdb", CanPersist: true, CanStream: true}
	case domain.DialectGCS, domain.DialectS3:
		// Object stores are queried through an in-memory duckdb.
		return domain.ConnectionAttributes{DialectName: "duckdb", CanStream: true}
	default:
		return domain.ConnectionAttributes{DialectName: string(d)}
	}
}
