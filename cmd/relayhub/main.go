package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sqliteadapter "github.com/ericfisherdev/relayhub/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/relayhub/internal/adapter/driving/http"
	wshandler "github.com/ericfisherdev/relayhub/internal/adapter/driving/ws"
	"github.com/ericfisherdev/relayhub/internal/application"
	"github.com/ericfisherdev/relayhub/internal/config"
	"github.com/ericfisherdev/relayhub/internal/relay"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on bad env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"session_ttl", cfg.SessionTTL,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	keyStore := sqliteadapter.NewKeyRepo(db)
	nodeStore := sqliteadapter.NewNodeRepo(db)
	eventStore := sqliteadapter.NewEventLogRepo(db)
	configStore := sqliteadapter.NewConfigRepo(db)

	// 6. Bootstrap credentials. The initial admin key is printed exactly once;
	// it is unrecoverable afterwards.
	if bootstrap, rawKey, err := keyStore.EnsureInitialAdminKey(ctx); err != nil {
		return err
	} else if bootstrap != nil {
		slog.Info("initial admin key created, store it now: it will not be shown again",
			"id", bootstrap.ID,
			"key", rawKey,
		)
	}

	if cfg.PanelPassword != "" {
		hasPassword, err := configStore.HasPanelPassword(ctx)
		if err != nil {
			return err
		}
		if !hasPassword {
			if err := configStore.SetPanelPassword(ctx, cfg.PanelPassword); err != nil {
				return err
			}
			slog.Info("panel password set from environment")
		}
	}

	// 7. Create the relay hub and background services.
	hub := relay.NewHub(nodeStore, slog.Default())
	go hub.Run(ctx, cfg.HeartbeatInterval)

	sessionSvc := application.NewSessionService(cfg.SessionTTL, slog.Default())
	go sessionSvc.Run(ctx, cfg.SessionSweepInterval)

	keySvc := application.NewKeyService(keyStore, hub, slog.Default())
	nodeSvc := application.NewNodeService(nodeStore, hub, slog.Default())
	eventSvc := application.NewEventService(eventStore, hub, slog.Default())

	// 8. Create the HTTP surface: management API plus the relay endpoint.
	relayEndpoint := wshandler.NewHandler(hub, nodeStore, slog.Default())
	apiHandler := httphandler.NewHandler(keySvc, nodeSvc, eventSvc, sessionSvc, configStore, slog.Default())
	mux := httphandler.NewServeMux(apiHandler, keyStore, relayEndpoint)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("relayhub started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
