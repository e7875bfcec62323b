package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/tablekit/internal/access"
	"github.com/JonMunkholm/tablekit/internal/config"
	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/tables"
	"github.com/JonMunkholm/tablekit/internal/docstore"
	"github.com/JonMunkholm/tablekit/internal/logging"
	"github.com/JonMunkholm/tablekit/internal/metrics"
	"github.com/JonMunkholm/tablekit/internal/web"
	"github.com/JonMunkholm/tablekit/internal/web/middleware"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	store, err := docstore.Open(ctx, cfg.Store.Options())
	if err != nil {
		slog.Error("failed to open document store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	flag, closeFlag, err := bootstrapFlag(ctx, cfg, store)
	if err != nil {
		slog.Error("failed to set up bootstrap flag", "error", err)
		os.Exit(1)
	}
	defer closeFlag()

	m := metrics.New()
	audit := core.NewAuditLog(store, cfg.Store.AuditCollection)
	imports := core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)

	users := access.NewUsers(store, flag,
		access.WithUsersCollection(cfg.Store.UsersCollection),
		access.WithAudit(audit),
	)
	svc := tables.NewService(store,
		tables.WithMetadataCollection(cfg.Store.MetadataCollection),
		tables.WithReservedCollections(cfg.Store.UsersCollection, cfg.Store.AuditCollection),
		tables.WithBatchParallelism(cfg.Batch.Parallelism),
		tables.WithAudit(audit),
		tables.WithMetrics(m),
		tables.WithImportLimiter(imports),
		tables.WithMaxImportBytes(cfg.Import.MaxFileSize),
	)

	var scanner *tables.OrphanScanner
	if cfg.Orphans.Enabled {
		scanner, err = tables.NewOrphanScanner(svc, cfg.Orphans.Schedule)
		if err != nil {
			slog.Error("invalid orphan scan schedule", "schedule", cfg.Orphans.Schedule, "error", err)
			os.Exit(1)
		}
		scanner.Start()
	}

	server := web.NewServer(cfg, web.Deps{
		Tables:   svc,
		Users:    users,
		Audit:    audit,
		Metrics:  m,
		Verifier: middleware.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
	})

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if scanner != nil {
			scanner.Stop(shutdownCtx)
		}

		// Wait for active imports to complete (with timeout)
		if active := imports.Active(); active > 0 {
			slog.Info("waiting for imports to complete", "active", active)
			if err := imports.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}

// bootstrapFlag uses Redis when configured and the document store otherwise.
func bootstrapFlag(ctx context.Context, cfg *config.Config, store docstore.Store) (access.BootstrapFlag, func(), error) {
	if cfg.Redis.Addr == "" {
		return access.NewStoreFlag(store), func() {}, nil
	}
	flag, err := access.NewRedisFlag(ctx, access.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Key:      cfg.Redis.BootstrapKey,
	})
	if err != nil {
		return nil, nil, err
	}
	return flag, func() { _ = flag.Close() }, nil
}
