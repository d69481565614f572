package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/david/holiday-watch/internal/config"
	"github.com/david/holiday-watch/internal/db"
	"github.com/david/holiday-watch/internal/fingerprint"
	"github.com/david/holiday-watch/internal/ingest"
	"github.com/david/holiday-watch/internal/logging"
	"github.com/david/holiday-watch/internal/monitor"
	"github.com/david/holiday-watch/internal/notify"
	"github.com/david/holiday-watch/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	jobs := queue.NewClient(rdb, cfg.Redis.Prefix, cfg.Redis.DedupeTTL)
	if err := jobs.Ping(ctx); err != nil {
		logrus.Fatalf("Failed to connect to redis: %v", err)
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
	if _, err := monitor.SyncAllProfiles(ctx, store, fingerprint.NewSyncer(store, adapters)); err != nil {
		logrus.WithError(err).Warn("Initial profile sync failed")
	}

	sender, err := buildSender(ctx, cfg.Notify)
	if err != nil {
		logrus.Fatalf("Failed to build notifier: %v", err)
	}

	base := queue.WorkerOptions{
		MaxAttempts: cfg.Workers.MaxAttempts,
		BaseBackoff: cfg.Workers.BaseBackoff,
		MaxBackoff:  cfg.Workers.MaxBackoff,
	}
	withQueue := func(name string, concurrency int, limiter *rate.Limiter) queue.WorkerOptions {
		opts := base
		opts.Queue = name
		opts.Concurrency = concurrency
		opts.Limiter = limiter
		return opts
	}

	var monitorLimiter *rate.Limiter
	if cfg.Workers.MonitorJobsPerMinute > 0 {
		monitorLimiter = rate.NewLimiter(perMinute(cfg.Workers.MonitorJobsPerMinute), 1)
	}
	var dealLimiter *rate.Limiter
	if cfg.Workers.DealScanPerMinute > 0 {
		dealLimiter = rate.NewLimiter(perMinute(cfg.Workers.DealScanPerMinute), 1)
	}

	workers := []*queue.Worker{
		queue.NewWorker(jobs, monitor.NewMonitorWorker(store, store, store, adapters, jobs),
			withQueue(queue.Monitor, cfg.Workers.MonitorConcurrency, monitorLimiter)),
		queue.NewWorker(jobs, monitor.NewInsightWorker(store, store, jobs),
			withQueue(queue.Insight, cfg.Workers.InsightConcurrency, nil)),
		queue.NewWorker(jobs, monitor.NewAlertWorker(store, monitor.NewAlertService(store, store, store, sender)),
			withQueue(queue.Alert, cfg.Workers.AlertConcurrency, nil)),
		queue.NewWorker(jobs, monitor.NewDealScanWorker(adapters, store, dealLimiter),
			withQueue(queue.DealScan, 1, nil)),
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Scheduler.Enabled {
		scheduler := monitor.NewScheduler(store, jobs, cfg.Scheduler.Interval)
		g.Go(func() error { return scheduler.Run(gctx) })
	}
	for _, w := range workers {
		g.Go(func() error { return w.Run(gctx) })
	}

	logrus.WithField("workers", len(workers)).Info("Worker process started")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logrus.Fatalf("Worker process failed: %v", err)
	}
	logrus.Info("Worker process stopped")
}

func perMinute(n float64) rate.Limit {
	return rate.Every(time.Duration(float64(time.Minute) / n))
}

func buildSender(ctx context.Context, cfg config.NotifyConfig) (notify.Sender, error) {
	if cfg.Mode != "aws" {
		return notify.NewLogSender(), nil
	}
	sesSender, snsSender, err := notify.NewAWSSenders(ctx, cfg.AWSRegion, cfg.FromEmail)
	if err != nil {
		return nil, err
	}
	if !cfg.SMS {
		return sesSender, nil
	}
	return notify.NewMultiSender(sesSender, snsSender), nil
}
