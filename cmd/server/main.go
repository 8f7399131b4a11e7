package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/Nandanaskartha/acme-product-uploader/internal/config"
	"github.com/Nandanaskartha/acme-product-uploader/internal/event"
	"github.com/Nandanaskartha/acme-product-uploader/internal/importer"
	"github.com/Nandanaskartha/acme-product-uploader/internal/logging"
	"github.com/Nandanaskartha/acme-product-uploader/internal/store"
	"github.com/Nandanaskartha/acme-product-uploader/internal/web"
	"github.com/Nandanaskartha/acme-product-uploader/internal/webhook"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	st := store.New(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	// Every domain event flows through the bus; the webhook dispatcher fans
	// each one out to matching registrations.
	bus := event.NewBus()
	dispatcher := webhook.NewDispatcher(st, webhook.Options{
		Timeout:     cfg.Webhook.DeliveryTimeout,
		MaxAttempts: cfg.Webhook.MaxAttempts,
		Backoff:     cfg.Webhook.RetryBackoff,
		BackoffMax:  cfg.Webhook.RetryBackoffMax,
	})
	bus.Subscribe(dispatcher)

	imports := importer.NewService(st, bus, importer.Options{
		BatchSize:     cfg.Import.BatchSize,
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWait:       cfg.Import.MaxWaitTime,
		JobTimeout:    cfg.Import.Timeout,
		SpoolDir:      cfg.Import.SpoolDir,
	})

	server := web.NewServer(st, imports, dispatcher, bus, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if active := imports.ActiveCount(); active > 0 {
			slog.Info("waiting for imports to complete", "active", active)
			if err := imports.Wait(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		// Let in-flight events reach the dispatcher, then drain deliveries.
		bus.Wait()
		dispatcher.Drain()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
