package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"opsdeck.app/chat/common/logger"
	"opsdeck.app/chat/core/config"
	"opsdeck.app/chat/internal/events"
	"opsdeck.app/chat/internal/notify"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg)

	if !cfg.Events.Enabled() {
		slog.ErrorContext(ctx, "notifier requires a redis url")
		os.Exit(1)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "notifier"
	}

	slog.InfoContext(ctx, "notifier starting",
		"env", cfg.Env,
		"stream", cfg.Events.Stream,
		"group", cfg.Events.Group,
		"consumer", hostname)

	redisOpts, err := redis.ParseURL(cfg.Events.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected")

	consumer, err := events.NewRedisConsumer(redisClient, events.ConsumerConfig{
		Stream:    cfg.Events.Stream,
		Group:     cfg.Events.Group,
		Consumer:  hostname,
		BatchSize: 32,
		Block:     5 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	notifier := notify.New(consumer, notify.NewRedisPublisher(redisClient))

	errCh := make(chan error, 1)
	go func() {
		errCh <- notifier.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.InfoContext(ctx, "shutting down...")
		notifier.Stop()
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "notifier error", "error", err)
			os.Exit(1)
		}
	}

	slog.InfoContext(ctx, "shutdown complete")
}
