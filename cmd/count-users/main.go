// Command count-users prints every registered channel binding and the total.
// It reads the same environment as the server (DB_DSN or DB_CREDENTIALS_PATH).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/clipstream/config"
	"github.com/onnwee/clipstream/db"
)

// lister is the slice of the binding store this command reads.
type lister interface {
	ListBindings(ctx context.Context, withEndpoints bool) ([]db.Binding, error)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := run(ctx, db.NewBindingStore(database, nil), os.Stdout); err != nil {
		slog.Error("count users failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, store lister, w io.Writer) error {
	// Endpoints are not needed, so no encryption key is required.
	list, err := store.ListBindings(ctx, false)
	if err != nil {
		return fmt.Errorf("list bindings: %w", err)
	}
	printBindings(w, list)
	return nil
}

func printBindings(w io.Writer, list []db.Binding) {
	rule := strings.Repeat("=", 40)
	fmt.Fprintf(w, "\nRegistered channels\n%s\n", rule)
	for i, b := range list {
		email := b.Email
		if email == "" {
			email = "N/A"
		}
		joined := "N/A"
		if !b.CreatedAt.IsZero() {
			joined = b.CreatedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "  %d. %s | Channel: %s | Joined: %s\n", i+1, email, b.ChannelID, joined)
	}
	fmt.Fprintf(w, "%s\nTotal: %d\n", rule, len(list))
}
