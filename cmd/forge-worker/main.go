package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/brasaforge/forge/internal/adapters/postgres"
	"github.com/brasaforge/forge/internal/adapters/providers"
	"github.com/brasaforge/forge/internal/adapters/redisstore"
	"github.com/brasaforge/forge/internal/adapters/upstash"
	"github.com/brasaforge/forge/internal/config"
	"github.com/brasaforge/forge/internal/core/ports"
	"github.com/brasaforge/forge/internal/core/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting forge worker")

	if err := run(logger); err != nil {
		logger.Error("worker startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	defer pool.Close()

	sites := postgres.NewSiteRepository(pool)
	tracker := postgres.NewJobTracker(pool)
	ledger := postgres.NewCreditLedger(pool)

	registry := providers.Build(providers.Config{
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GoogleAPIKey:    cfg.GoogleAPIKey,
	})

	queue := services.NewQueueEngine(logger, store, services.Keyspace{Prefix: cfg.QueuePrefix})
	processors := services.NewProcessors(logger, registry, sites, tracker, ledger)
	worker := services.NewWorker(logger, queue, processors, tracker, cfg.PollInterval)
	pruner := services.NewStalePruner(logger, queue, cfg.PrunerSchedule, services.DefaultStaleAfter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return pruner.Run(gctx)
	})

	logger.Info("worker running", "poll_interval", cfg.PollInterval.String())
	return g.Wait()
}

func buildStore(cfg config.Config) (ports.CommandStore, error) {
	switch cfg.StoreBackend {
	case config.StoreUpstash:
		return upstash.NewClient(cfg.UpstashRESTURL, cfg.UpstashToken), nil
	case config.StoreRedis:
		return redisstore.NewFromAddr(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
