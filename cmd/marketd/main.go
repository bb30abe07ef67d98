package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/serkee5559/coin-portal/internal/bootstrap"
	"github.com/serkee5559/coin-portal/internal/consumer"
	"github.com/serkee5559/coin-portal/pkg/config"
	"github.com/serkee5559/coin-portal/pkg/logger"
	"github.com/serkee5559/coin-portal/pkg/postgres"
	"github.com/serkee5559/coin-portal/pkg/redis"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.NewLogger(logger.WithLoggingLevel(logger.Level(cfg.App.LogLevel)))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	// Open infrastructure that is allowed to be absent: the pipeline runs
	// from memory when neither database nor cache is reachable.
	pgClient := openPostgres(ctx, cfg, lg)
	redisClient := openRedis(ctx, cfg, lg)

	b := bootstrap.Bootstrap{}
	b.Init(bootstrap.BootstrapConfig{
		Config:   cfg,
		Logger:   lg,
		Postgres: pgClient,
		Redis:    redisClient,
	})

	if b.Snapshot != nil {
		if err := b.Snapshot.Restore(ctx); err != nil {
			lg.ErrorContext(ctx, err, logger.Field{Key: "action", Value: "snapshot_restore"})
		}
		b.Snapshot.Start(ctx)
	}

	if err := b.Usecase.Alert.LoadRules(ctx); err != nil {
		lg.ErrorContext(ctx, err, logger.Field{Key: "action", Value: "load_rules"})
	}
	b.Usecase.Alert.Start(ctx)
	b.Usecase.Broadcast.Start(ctx)

	feedDone := startFeed(ctx, cfg, lg, &b)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: b.Handler.InitRoutes(),
	}
	go func() {
		lg.Info("http server listening", logger.Field{
			Key:   "action",
			Value: "serve",
		}, logger.Field{
			Key:   "addr",
			Value: server.Addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error(err, logger.Field{Key: "action", Value: "serve"})
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	lg.Info("shutting down", logger.Field{Key: "action", Value: "shutdown"})
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error(err, logger.Field{Key: "action", Value: "shutdown_http"})
	}

	<-feedDone
	b.Usecase.Broadcast.Stop()
	b.Usecase.Alert.Stop()
	if b.Snapshot != nil {
		b.Snapshot.Stop(shutdownCtx)
	}
	if redisClient != nil {
		_ = redisClient.Disconnect(shutdownCtx)
	}
	if pgClient != nil {
		pgClient.Close()
	}

	lg.Info("stopped", logger.Field{Key: "action", Value: "shutdown"})
}

// startFeed launches the configured feed source and returns a channel closed
// when the feed goroutines exit.
func startFeed(ctx context.Context, cfg *config.Config, lg logger.Interface, b *bootstrap.Bootstrap) <-chan struct{} {
	done := make(chan struct{})

	switch cfg.Feed.Source {
	case "kafka":
		tickConsumer := consumer.NewTickConsumer(cfg.TickKafka, lg, b.Usecase.Store)
		go tickConsumer.Subscribe(ctx)
		go func() {
			defer close(done)
			tickConsumer.Start(ctx)
			_ = tickConsumer.Stop()
		}()
	default:
		upbit := consumer.NewUpbitConsumer(cfg.Feed, lg, b.Usecase.Store)
		go func() {
			defer close(done)
			upbit.Start(ctx)
		}()
	}

	return done
}

func openPostgres(ctx context.Context, cfg *config.Config, lg logger.Interface) postgres.PostgresClient {
	client, err := postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		lg.Warn("database unreachable, continuing without persistence", logger.Field{
			Key:   "action",
			Value: "open_postgres",
		}, logger.Field{
			Key:   "error",
			Value: err.Error(),
		})
		return nil
	}
	return client
}

func openRedis(ctx context.Context, cfg *config.Config, lg logger.Interface) redis.Client {
	client := redis.NewClient(lg, &cfg.Redis)
	if err := client.Connect(ctx); err != nil {
		lg.Warn("redis unreachable, continuing without snapshot cache", logger.Field{
			Key:   "action",
			Value: "open_redis",
		}, logger.Field{
			Key:   "error",
			Value: err.Error(),
		})
		return nil
	}
	return client
}
