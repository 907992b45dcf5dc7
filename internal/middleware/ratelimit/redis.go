package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed window rate limiter backed by Redis, so the
// limit holds across multiple instances of the service. When Redis is
// unreachable it fails open rather than blocking traffic.
type RedisLimiter struct {
	client            *redis.Client
	requestsPerMinute int
	keyPrefix         string
}

// RedisConfig holds Redis-backed rate limiter configuration
type RedisConfig struct {
	Addr              string
	Password          string
	DB                int
	RequestsPerMinute int
	KeyPrefix         string
}

// NewRedisLimiter creates a rate limiter backed by the given Redis instance
func NewRedisLimiter(config RedisConfig) *RedisLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ratelimit"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisLimiter{
		client:            client,
		requestsPerMinute: config.RequestsPerMinute,
		keyPrefix:         config.KeyPrefix,
	}
}

// Ping verifies connectivity to Redis
func (rl *RedisLimiter) Ping(ctx context.Context) error {
	if err := rl.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Allow increments the counter for the current minute window and checks
// it against the configured limit
func (rl *RedisLimiter) Allow(ctx context.Context, key string) bool {
	window := time.Now().Unix() / 60
	redisKey := fmt.Sprintf("%s:%s:%d", rl.keyPrefix, key, window)

	pipe := rl.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "rate limit check failed, allowing request",
			"component", "ratelimit", "error", err)
		return true
	}

	return count.Val() <= int64(rl.requestsPerMinute)
}

// Close releases the Redis connection
func (rl *RedisLimiter) Close() error {
	return rl.client.Close()
}
