package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ttl-cache-store/internal/auth"
	"ttl-cache-store/internal/cache"
	"ttl-cache-store/internal/config"
	"ttl-cache-store/internal/database"
	"ttl-cache-store/internal/logger"
	"ttl-cache-store/internal/metrics"
	"ttl-cache-store/internal/realtime"
	"ttl-cache-store/internal/routes"
	"ttl-cache-store/internal/scheduler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	hash := flag.Bool("hash-password", false, "read a password from stdin, print its bcrypt hash for CACHE_ADMIN_PASSWORD_HASH and exit")
	flag.Parse()

	if *hash {
		if err := hashPassword(os.Stdin, os.Stdout); err != nil {
			log.Fatal("Failed to hash password: ", err)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, zlog)
	stop()
	_ = zlog.Sync()
	if err != nil {
		log.Fatal(err)
	}
}

// hashPassword reads the first line of in and writes its bcrypt hash to out.
func hashPassword(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return errors.New("no password on stdin")
	}
	password := strings.TrimRight(scanner.Text(), "\r")
	if password == "" {
		return errors.New("password is empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

// run serves the cache API until ctx is cancelled, then shuts down and
// releases the backing store.
func run(ctx context.Context, cfg *config.Config, zlog *zap.Logger) error {
	// Init database
	repo, err := database.Open(cfg, zlog)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	m := metrics.NewMetrics("ttl_cache")
	hub := realtime.NewHub(zlog)
	store, err := cache.New(repo, cache.Options{
		DefaultTTL: cfg.ExpiresIn,
		Namespace:  cfg.Namespace,
		Observer:   m,
		Notifier:   hub,
		Logger:     zlog,
	})
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}

	var sweeper *scheduler.Scheduler
	if cfg.CleanupSchedule != "" {
		sweeper, err = scheduler.New(store, cfg.CleanupSchedule, time.Minute, zlog)
		if err != nil {
			return fmt.Errorf("schedule cleanup: %w", err)
		}
		sweeper.Start()
		zlog.Info("cleanup scheduled", zap.String("schedule", cfg.CleanupSchedule), zap.Time("next", sweeper.Next()))
	}

	// Setup the routes (public and protected routes)
	ginRoutes := routes.SetupRoutes(routes.Deps{
		Store:   store,
		Hub:     hub,
		Metrics: m,
		Tokens:  auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL),
		Admin:   auth.Admin{Username: cfg.AdminUsername, PasswordHash: cfg.AdminPasswordHash},
		Logger:  zlog,
	})
	if cfg.AdminPasswordHash == "" {
		zlog.Warn("admin_password_hash is empty, login is disabled")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           ginRoutes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zlog.Info("server starting",
			zap.String("addr", cfg.ListenAddr),
			zap.String("backend", cfg.Backend),
			zap.String("database", cfg.DatabaseName),
			zap.String("collection", cfg.CollectionName),
			zap.Duration("default_ttl", store.DefaultTTL()),
		)
		serveErr <- srv.ListenAndServe()
	}()

	var listenErr error
	select {
	case err := <-serveErr:
		listenErr = fmt.Errorf("start server: %w", err)
	case <-ctx.Done():
		zlog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sweeper != nil {
		select {
		case <-sweeper.Stop().Done():
		case <-shutdownCtx.Done():
		}
	}
	if listenErr != nil {
		return listenErr
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
