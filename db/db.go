// Package db provides the Postgres connection, schema migration, and the
// channel binding and broadcast start-time stores.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/clipstream/crypto"
)

// Connect opens a pooled Postgres handle. The connection is verified lazily;
// call Ping to check reachability.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db: empty DSN")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	dbx.SetMaxOpenConns(10)
	dbx.SetMaxIdleConns(5)
	dbx.SetConnMaxIdleTime(5 * time.Minute)
	return dbx, nil
}

// NewEncryptor returns the endpoint encryptor for key, or nil when key is
// empty (endpoints are then stored in plaintext with encryption_version 0).
func NewEncryptor(key string) (crypto.Encryptor, error) {
	if key == "" {
		slog.Warn("ENCRYPTION_KEY not set, notification endpoints will be stored in plaintext", slog.String("component", "db_encryption"))
		return nil, nil
	}
	enc, err := crypto.NewAESEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	slog.Info("notification endpoint encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
	return enc, nil
}

// Migrate applies the schema with idempotent statements. It is the fallback
// when versioned migrations cannot run.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channel_bindings (
			channel_id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			channel_url TEXT NOT NULL DEFAULT '',
			notification_endpoint TEXT NOT NULL,
			encryption_version INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_bindings_created_at ON channel_bindings(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS broadcast_start_times (
			broadcast_id TEXT PRIMARY KEY,
			start_time TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
