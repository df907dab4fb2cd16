// Package main is the entrypoint for the Tracklight analytics consumer. It
// drains the Kafka hand-off topics into ClickHouse.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tracklight/tracklight/internal/analytics"
	"github.com/tracklight/tracklight/internal/config"
	"github.com/tracklight/tracklight/internal/consumer"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "brokers", cfg.Kafka.Brokers, "clickhouse", cfg.ClickHouse.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ClickHouse and Kafka usually come up alongside the consumer, so retry
	// the initial connection instead of exiting on the first refusal.
	writer, err := connectClickHouse(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect clickhouse: %w", err)
	}
	defer writer.Close()

	if err := writer.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure clickhouse schema: %w", err)
	}
	slog.Info("clickhouse ready", "database", cfg.ClickHouse.Database)

	c := consumer.New(consumer.NewReaders(cfg.Kafka), writer, logger)
	defer c.Close()
	slog.Info("consumer started",
		"events_topic", cfg.Kafka.EventsTopic,
		"sessions_topic", cfg.Kafka.SessionsTopic,
		"group", cfg.Kafka.GroupID)

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer run: %w", err)
	}

	slog.Info("consumer stopped gracefully")
	return nil
}

func connectClickHouse(ctx context.Context, cfg *config.Config) (*analytics.Writer, error) {
	var lastErr error
	for attempt := 1; attempt <= consumer.DialAttempts; attempt++ {
		writer, err := analytics.Connect(ctx, cfg.ClickHouse)
		if err == nil {
			return writer, nil
		}
		lastErr = err
		slog.Warn("clickhouse not ready, retrying",
			"attempt", attempt, "max_attempts", consumer.DialAttempts, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(consumer.DialBackoff):
		}
	}
	return nil, fmt.Errorf("gave up after %d attempts: %w", consumer.DialAttempts, lastErr)
}
