// Command clipstream serves the channel signup page and the chat-bot clip
// endpoint. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs migrations. A database failure is logged
//     and the server still starts so health checks and the page can report it.
//   - Wires the live probe, the metered start-time lookup and its cache, and
//     the notification dispatcher into the clip pipeline.
//   - Exposes the HTTP server with /webhook/*, /healthz, /readyz, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM; queued notifications are drained
// before the database closes.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/clipstream/clip"
	"github.com/onnwee/clipstream/config"
	"github.com/onnwee/clipstream/db"
	"github.com/onnwee/clipstream/live"
	"github.com/onnwee/clipstream/notify"
	"github.com/onnwee/clipstream/server"
	"github.com/onnwee/clipstream/starttime"
	"github.com/onnwee/clipstream/telemetry"
	"github.com/onnwee/clipstream/youtubeapi"
)

func main() {
	// Local dev convenience only; production relies on real env.
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateClipReady(); err != nil {
		slog.Warn("clip requests will report a misconfiguration", slog.Any("err", err))
	}

	telemetry.Init()

	// Optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing("clipstream", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database := openDatabase(ctx, cfg)
	if database != nil {
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
	}

	api, err := youtubeapi.New(ctx, cfg)
	if err != nil {
		slog.Error("youtube client init failed", slog.Any("err", err))
		os.Exit(1)
	}
	dispatcher := notify.New(
		notify.WithTimeout(cfg.NotifyTimeout),
		notify.WithMaxConcurrent(cfg.NotifyMaxConcurrent),
	)

	deps := server.Deps{
		Notifier:     dispatcher,
		MeteredReady: api.Configured,
		StaticDir:    cfg.StaticDir,
	}
	orch := &clip.Orchestrator{
		Live: live.NewResolver(
			live.WithBaseURL(cfg.LiveBaseURL),
			live.WithTimeout(cfg.LiveProbeTimeout),
		),
		StartTimes:   starttime.New(api, startTimeStore(cfg, database)),
		Notifier:     dispatcher,
		MeteredReady: api.Configured,
		ShareBase:    cfg.ShareBaseURL,
	}
	// Assigned only when present so the interfaces stay nil rather than
	// holding a nil *db.BindingStore.
	if database != nil {
		enc, err := db.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			slog.Error("encryption init failed", slog.Any("err", err))
			os.Exit(1)
		}
		store := db.NewBindingStore(database, enc)
		deps.Bindings = store
		orch.Bindings = store
	}
	deps.Clips = orch

	if os.Getenv("ENABLE_PPROF") == "1" {
		go servePprof()
	}

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	<-serverDone

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.NotifyTimeout+2*time.Second)
	defer cancel()
	if err := dispatcher.Wait(drainCtx); err != nil {
		slog.Warn("notifications still in flight at shutdown", slog.Int("active", dispatcher.Active()))
	}
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

// openDatabase connects and migrates. It returns nil when the database cannot
// be used; the caller runs without a binding store.
func openDatabase(ctx context.Context, cfg *config.Config) *sql.DB {
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		slog.Error("database unreachable, bindings disabled", slog.Any("err", err))
		_ = database.Close()
		return nil
	}

	// Versioned migrations first, embedded idempotent SQL as the fallback.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			_ = database.Close()
			return nil
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed", slog.String("component", "db_migrate"))
	}
	return database
}

// startTimeStore picks the start-time cache backend. A nil result selects the
// in-process store.
func startTimeStore(cfg *config.Config, database *sql.DB) starttime.Store {
	if cfg.StartTimeCache != config.CacheBackendPostgres {
		return nil
	}
	if database == nil {
		slog.Warn("START_TIME_CACHE=postgres but database unavailable, using memory", slog.String("component", "starttime"))
		return nil
	}
	return db.NewStartTimeStore(database)
}

func servePprof() {
	addr := os.Getenv("PPROF_ADDR")
	if addr == "" {
		addr = "localhost:6060"
	}
	slog.Info("pprof profiling enabled", slog.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil, // default mux exposes /debug/pprof
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("pprof server error", slog.Any("err", err))
	}
}
