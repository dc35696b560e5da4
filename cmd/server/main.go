package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/testcatalog/internal/app"
	"github.com/JonMunkholm/testcatalog/internal/config"
	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/export"
	"github.com/JonMunkholm/testcatalog/internal/logging"
	"github.com/JonMunkholm/testcatalog/internal/metrics"
	"github.com/JonMunkholm/testcatalog/internal/web"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("could not load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Database.Driver,
		"export_sink", cfg.Export.Sink,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	store, err := app.OpenStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	sink, err := app.OpenSink(ctx, cfg.Export)
	if err != nil {
		slog.Error("failed to open export sink", "sink", cfg.Export.Sink, "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	service, err := app.NewService(store, cfg.Import, m)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}
	m.TrackLimiter(service.Limiter())

	slog.Info("categories registered", "count", len(core.Categories()))

	server := web.NewServer(service, cfg,
		web.WithPublisher(export.NewPublisher(sink)),
		web.WithMetrics(m),
		web.WithHealthCheck(store.Ping),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		status := service.Limiter().Status()
		if status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
}
