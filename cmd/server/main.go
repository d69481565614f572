package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/david/holiday-watch/internal/api"
	"github.com/david/holiday-watch/internal/config"
	"github.com/david/holiday-watch/internal/db"
	"github.com/david/holiday-watch/internal/fingerprint"
	"github.com/david/holiday-watch/internal/ingest"
	"github.com/david/holiday-watch/internal/logging"
	"github.com/david/holiday-watch/internal/monitor"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database.URL, db.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if _, err := db.ApplyMigrations(ctx, pool); err != nil {
			logrus.Fatalf("Migration failed: %v", err)
		}
	}

	providers, err := ingest.LoadProviderRegistry(cfg.Scraping.ProvidersFile)
	if err != nil {
		logrus.Fatalf("Failed to load providers: %v", err)
	}
	scrapingOn := cfg.Scraping.Enabled
	adapters := ingest.BuildAdapterRegistry(providers, ingest.DefaultSiteParsers(), ingest.AdapterOptions{
		UserAgent:       cfg.Scraping.UserAgent,
		BrowserPath:     cfg.Scraping.BrowserPath,
		ScrapingEnabled: func() bool { return scrapingOn },
	})
	defer func() {
		if err := adapters.Cleanup(); err != nil {
			logrus.WithError(err).Warn("Adapter cleanup failed")
		}
	}()

	store := db.NewStore(pool)
	srv := api.NewServer(
		store,
		monitor.NewPreviewer(store, store, adapters),
		fingerprint.NewSyncer(store, adapters),
		adapters,
		api.Options{
			AdminSecret:    cfg.Server.AdminSecret,
			CORSOrigins:    cfg.Server.CORSOrigins,
			PreviewTimeout: cfg.Preview.Timeout,
		},
	)

	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Server shutdown did not complete cleanly")
	}
	logrus.Info("Server stopped")
}
