package store

import "log/slog"

// Open picks a backend from the DSN: empty means in-memory, PostgreSQL connection
// strings use Postgres, anything else is an SQLite file path.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}
