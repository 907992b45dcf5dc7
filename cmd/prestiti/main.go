package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"prestiti/internal/amqp"
	"prestiti/internal/config"
	apphttp "prestiti/internal/http"
	applog "prestiti/internal/log"
	"prestiti/internal/middleware/ratelimit"
	"prestiti/internal/services"
	"prestiti/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	// AMQP is optional. Without it, export requests are left in pending
	// state and picked up by the worker's periodic sweep.
	var publisher services.ExportPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, exports fall back to the periodic sweep", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	}

	limiter := buildLimiter(cfg, logger)

	svc := services.NewLoanService(repo, publisher)
	defer svc.Close()

	srv := apphttp.NewServer(":"+cfg.Port, svc, limiter)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting prestiti server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

// buildLimiter prefers the Redis limiter when an address is configured, so
// the limit holds across instances. Otherwise the in-process limiter is used.
func buildLimiter(cfg *config.Config, logger *applog.Logger) ratelimit.Allower {
	if cfg.RedisAddr != "" {
		rl := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
			Addr:              cfg.RedisAddr,
			Password:          cfg.RedisPassword,
			DB:                cfg.RedisDB,
			RequestsPerMinute: cfg.RateLimitPerMinute,
		})

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer pingCancel()
		if err := rl.Ping(pingCtx); err != nil {
			logger.Warn("Redis unreachable, using in-process rate limiter", "addr", cfg.RedisAddr, "error", err)
			_ = rl.Close()
		} else {
			logger.Info("Rate limiting backed by Redis", "addr", cfg.RedisAddr)
			return rl
		}
	}

	return ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
	})
}
