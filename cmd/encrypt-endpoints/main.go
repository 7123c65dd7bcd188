// Command encrypt-endpoints seals notification endpoints that were stored in
// plaintext (encryption_version=0) with AES-256-GCM (encryption_version=1).
//
// Usage:
//
//	encrypt-endpoints [--dry-run] [--channel CHANNEL_ID] [--status]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
//
// Example:
//
//	export ENCRYPTION_KEY="$(openssl rand -base64 32)"
//	./encrypt-endpoints --dry-run
//	./encrypt-endpoints
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/onnwee/clipstream/crypto"
	"github.com/onnwee/clipstream/db"
)

// endpointRow is a plaintext binding awaiting encryption.
type endpointRow struct {
	ChannelID string
	Endpoint  string
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be encrypted without making changes")
	channel := flag.String("channel", "", "Encrypt the endpoint of one channel only (default: all)")
	statusOnly := flag.Bool("status", false, "Report encryption status and exit")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN environment variable is required")
		os.Exit(1)
	}
	database, err := db.Connect(dsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.PingContext(ctx); err != nil {
		slog.Error("failed to ping database", slog.Any("error", err))
		os.Exit(1)
	}

	if *statusOnly {
		if err := reportStatus(ctx, database); err != nil {
			slog.Error("status query failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		slog.Error("ENCRYPTION_KEY environment variable is required")
		os.Exit(1)
	}
	enc, err := crypto.NewAESEncryptor(key)
	if err != nil {
		slog.Error("failed to initialize encryptor", slog.Any("error", err))
		os.Exit(1)
	}

	if err := encryptEndpoints(ctx, database, enc, *dryRun, *channel); err != nil {
		slog.Error("encryption failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("encryption completed successfully")
}

// encryptEndpoints seals every plaintext endpoint, optionally for one channel.
// Rows are updated one at a time; a row changed concurrently is reported and
// skipped.
func encryptEndpoints(ctx context.Context, database *sql.DB, enc crypto.Encryptor, dryRun bool, channelFilter string) error {
	query := `SELECT channel_id, notification_endpoint FROM channel_bindings WHERE encryption_version = 0`
	var args []any
	if channelFilter != "" {
		query += ` AND channel_id = $1`
		args = append(args, channelFilter)
	}
	query += ` ORDER BY channel_id`

	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query plaintext endpoints: %w", err)
	}
	var pending []endpointRow
	for rows.Next() {
		var r endpointRow
		if err := rows.Scan(&r.ChannelID, &r.Endpoint); err != nil {
			rows.Close()
			return fmt.Errorf("scan binding row: %w", err)
		}
		pending = append(pending, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate binding rows: %w", err)
	}

	if len(pending) == 0 {
		slog.Info("no plaintext endpoints found")
		return nil
	}
	slog.Info("found plaintext endpoints", slog.Int("count", len(pending)), slog.Bool("dry_run", dryRun))

	done, failed := 0, 0
	for i, r := range pending {
		logger := slog.With(
			slog.String("channel_id", r.ChannelID),
			slog.String("endpoint", crypto.RedactURL(r.Endpoint)),
			slog.Int("index", i+1),
			slog.Int("total", len(pending)))
		if dryRun {
			logger.Info("would encrypt endpoint (dry-run)")
			done++
			continue
		}
		if err := encryptOne(ctx, database, enc, r); err != nil {
			logger.Error("failed to encrypt endpoint", slog.Any("error", err))
			failed++
			continue
		}
		logger.Info("endpoint encrypted")
		done++
	}

	slog.Info("encryption summary",
		slog.Int("total", len(pending)),
		slog.Int("encrypted", done),
		slog.Int("errors", failed),
		slog.Bool("dry_run", dryRun))
	if failed > 0 {
		return fmt.Errorf("encryption completed with %d errors", failed)
	}
	return nil
}

func encryptOne(ctx context.Context, database *sql.DB, enc crypto.Encryptor, r endpointRow) error {
	sealed, err := crypto.EncryptString(enc, r.Endpoint)
	if err != nil {
		return fmt.Errorf("encrypt endpoint: %w", err)
	}
	res, err := database.ExecContext(ctx,
		`UPDATE channel_bindings SET notification_endpoint = $1, encryption_version = 1
		 WHERE channel_id = $2 AND encryption_version = 0 AND notification_endpoint = $3`,
		sealed, r.ChannelID, r.Endpoint)
	if err != nil {
		return fmt.Errorf("update binding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("expected 1 row updated, got %d (binding may have been modified concurrently)", n)
	}
	return nil
}

// reportStatus logs how many bindings exist per encryption version.
func reportStatus(ctx context.Context, database *sql.DB) error {
	rows, err := database.QueryContext(ctx,
		`SELECT encryption_version, COUNT(*) FROM channel_bindings GROUP BY encryption_version ORDER BY encryption_version`)
	if err != nil {
		return fmt.Errorf("query status: %w", err)
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var version, count int
		if err := rows.Scan(&version, &count); err != nil {
			return fmt.Errorf("scan status row: %w", err)
		}
		slog.Info("endpoint encryption",
			slog.Int("encryption_version", version),
			slog.String("description", versionDescription(version)),
			slog.Int("count", count))
		total += count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate status rows: %w", err)
	}
	slog.Info("total bindings", slog.Int("count", total))
	return nil
}

func versionDescription(v int) string {
	switch v {
	case 0:
		return "plaintext"
	case 1:
		return "encrypted (AES-256-GCM)"
	default:
		return fmt.Sprintf("unknown version %d", v)
	}
}
