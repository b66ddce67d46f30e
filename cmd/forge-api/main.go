package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/brasaforge/forge/internal/adapters/postgres"
	"github.com/brasaforge/forge/internal/adapters/providers"
	"github.com/brasaforge/forge/internal/adapters/redisstore"
	"github.com/brasaforge/forge/internal/adapters/upstash"
	"github.com/brasaforge/forge/internal/config"
	"github.com/brasaforge/forge/internal/core/ports"
	"github.com/brasaforge/forge/internal/core/services"
	"github.com/brasaforge/forge/pkg/api"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting forge api")

	if err := run(logger); err != nil {
		logger.Error("api startup failed", "error", err)
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

	registry := providers.Build(providers.Config{
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GoogleAPIKey:    cfg.GoogleAPIKey,
	})

	queue := services.NewQueueEngine(logger, store, services.Keyspace{Prefix: cfg.QueuePrefix})
	limiter := services.NewRateLimiter(store, "rate:")

	server := api.NewServer(
		logger,
		queue,
		store,
		limiter,
		registry,
		postgres.NewSiteRepository(pool),
		postgres.NewJobTracker(pool),
		postgres.NewCreditLedger(pool),
		postgres.NewAPILogRecorder(logger, pool),
	)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Forge-User-ID", "Idempotency-Key"},
	})

	httpServer := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           corsMiddleware.Handler(server.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("api listening", "addr", cfg.APIAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
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
