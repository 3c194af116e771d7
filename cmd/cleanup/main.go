// Command cleanup runs one expired-entry sweep and exits. It is meant for an
// external scheduler such as cron or a Kubernetes CronJob.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"ttl-cache-store/internal/cache"
	"ttl-cache-store/internal/config"
	"ttl-cache-store/internal/database"
	"ttl-cache-store/internal/logger"
	"ttl-cache-store/internal/scheduler"

	"go.uber.org/zap"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "abort the sweep after this long")
	clearAll := flag.Bool("clear", false, "remove every entry instead of only expired ones")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	err = run(ctx, cfg, zlog, *clearAll)
	cancel()
	_ = zlog.Sync()
	if err != nil {
		log.Fatal(err)
	}
}

// run opens the configured backend, sweeps it and closes it again.
func run(ctx context.Context, cfg *config.Config, zlog *zap.Logger, clearAll bool) error {
	repo, err := database.Open(cfg, zlog)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	store, err := cache.New(repo, cache.Options{DefaultTTL: cfg.ExpiresIn, Namespace: cfg.Namespace, Logger: zlog})
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}

	if clearAll {
		deleted, err := store.Clear(ctx)
		if err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		zlog.Info("clear finished", zap.Int64("deleted", deleted))
		return nil
	}

	if _, err := scheduler.Sweep(ctx, store, 0, zlog); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}
