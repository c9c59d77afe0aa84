package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter stores markers in Redis so the window holds across instances.
// SET NX PX makes the check and the marker write one conditional operation:
// exactly one caller wins a window, the rest read the remaining TTL.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit:"}
}

func (l *RedisLimiter) CheckAndConsume(ctx context.Context, key string, window time.Duration) (Result, error) {
	redisKey := l.prefix + key

	ok, err := l.client.SetNX(ctx, redisKey, time.Now().Add(window).Unix(), window).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit setnx: %w", err)
	}
	if ok {
		return Result{Allowed: true, ResetAt: time.Now().Add(window)}, nil
	}

	ttl, err := l.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit pttl: %w", err)
	}
	if ttl <= 0 {
		// Key expired between SETNX and PTTL; treat as a closed window that
		// is about to reopen rather than racing a second SETNX.
		ttl = time.Second
	}
	return Result{
		Allowed:    false,
		RetryAfter: retryAfterSeconds(ttl),
		ResetAt:    time.Now().Add(ttl),
	}, nil
}
