package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"problem_fetcher/internal/config"
	"problem_fetcher/internal/publisher"
	"problem_fetcher/internal/retry"
	"problem_fetcher/internal/scheduler"
	"problem_fetcher/internal/service"
	"problem_fetcher/internal/source/judge"
	"problem_fetcher/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "sync every source once and exit")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize RabbitMQ publisher
	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	// Initialize stores
	problemStore := postgres.NewProblemStore(db)
	tagStore := postgres.NewTagStore(db)
	syncStateStore := postgres.NewSyncStateStore(db)
	txManager := postgres.NewTransactionManager(db)

	// One sync service per enabled judge
	var syncers []scheduler.Syncer
	for id, srcCfg := range cfg.Sources {
		if !srcCfg.Enabled {
			logger.Info("source disabled", "source", id)
			continue
		}

		source, err := judge.New(id, judge.Config{
			BaseURL:      srcCfg.BaseURL,
			RequestDelay: srcCfg.RequestDelay,
			Timeout:      cfg.Fetch.Timeout,
			Retry:        retryConfig(cfg.Fetch.Retry),
		}, logger)
		if err != nil {
			logger.Error("failed to build source", "source", id, "error", err)
			os.Exit(1)
		}

		syncers = append(syncers, service.NewSyncService(
			source,
			problemStore,
			tagStore,
			syncStateStore,
			txManager,
			rabbitMQ,
			logger,
			cfg.Sync,
		))
	}

	if len(syncers) == 0 {
		logger.Error("no sources enabled")
		os.Exit(1)
	}

	sched := scheduler.NewScheduler(syncers, cfg.Sync.Interval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting problem syncer",
		"sources", len(syncers),
		"interval", cfg.Sync.Interval,
		"max_problems", cfg.Sync.MaxProblemsPerSync,
	)

	if *once {
		sched.RunOnce(ctx)
		return
	}

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func retryConfig(cfg config.RetryConfig) retry.Config {
	return retry.Config{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
