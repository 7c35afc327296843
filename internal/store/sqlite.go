// Package store provides storage backends for Jeeves.
//
// This file implements an SQLite-backed store for the delivery log and inbound dedup.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) RecordDelivery(d Delivery) error {
	_, err := s.db.Exec(
		`INSERT INTO deliveries (id, kind, user_id, channel_id, payload_json, status_code, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Kind, d.UserID, d.ChannelID, d.PayloadJSON, d.StatusCode, nilIfEmpty(d.Error), d.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore RecordDelivery failed", "error", err, "id", d.ID)
		return fmt.Errorf("failed to insert delivery %s: %w", d.ID, err)
	}
	slog.Debug("SQLiteStore RecordDelivery succeeded", "id", d.ID, "kind", d.Kind, "status", d.StatusCode)
	return nil
}

func (s *SQLiteStore) ListDeliveries(limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(
		`SELECT id, kind, user_id, channel_id, payload_json, status_code, error, created_at
		 FROM deliveries ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		slog.Error("SQLiteStore ListDeliveries query failed", "error", err)
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	return scanDeliveries(rows)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
