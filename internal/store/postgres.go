// Package store provides storage backends for Jeeves.
//
// This file implements a PostgreSQL-backed store for the delivery log and inbound dedup.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 10
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) RecordDelivery(d Delivery) error {
	_, err := s.db.Exec(
		`INSERT INTO deliveries (id, kind, user_id, channel_id, payload_json, status_code, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.Kind, d.UserID, d.ChannelID, d.PayloadJSON, d.StatusCode, nilIfEmpty(d.Error), d.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore RecordDelivery failed", "error", err, "id", d.ID)
		return fmt.Errorf("failed to insert delivery %s: %w", d.ID, err)
	}
	slog.Debug("PostgresStore RecordDelivery succeeded", "id", d.ID, "kind", d.Kind, "status", d.StatusCode)
	return nil
}

func (s *PostgresStore) ListDeliveries(limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(
		`SELECT id, kind, user_id, channel_id, payload_json, status_code, error, created_at
		 FROM deliveries ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		slog.Error("PostgresStore ListDeliveries query failed", "error", err)
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	return scanDeliveries(rows)
}

// Close closes the underlying database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
