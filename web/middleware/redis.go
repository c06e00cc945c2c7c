package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "bygga:ratelimit:"

type redisRateLimiter struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisRateLimiter shares counters between instances through redis.
// Redis failures let requests through.
func NewRedisRateLimiter(ctx context.Context, addr, password string, db int) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &redisRateLimiter{client: client, timeout: 250 * time.Millisecond}, nil
}

func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	redisKey := redisKeyPrefix + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	// INCR and the first EXPIRE commit together so a counter never outlives its window
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, window)
		ttl = pipe.TTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		logRedisError("incr", err)
		return Decision{Allowed: true}
	}

	return windowDecision(incr.Val(), ttl.Val(), limit, window, time.Now())
}

// windowDecision turns a counter and its remaining TTL into a Decision.
// A missing or negative TTL falls back to the full window.
func windowDecision(counter int64, ttl time.Duration, limit int, window time.Duration, now time.Time) Decision {
	if ttl <= 0 {
		ttl = window
	}
	return Decision{
		Allowed:   int(counter) <= limit,
		Count:     int(counter),
		WindowEnd: now.Add(ttl),
	}
}

func (rl *redisRateLimiter) Close() {
	if err := rl.client.Close(); err != nil {
		logRedisError("close", err)
	}
}

func logRedisError(op string, err error) {
	slog.Error("Redis rate limiter error",
		"layer", "middleware",
		"operation", "rate_limit_"+op,
		"error", err)
}
