package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests of a subject inside a scope. count is the number of
// requests seen in the current window including this one.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RedisRateLimiter counts requests in clock-aligned windows shared by every API
// instance. Each window has its own key, so counters never need resetting.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "ravito"
	}
	return &RedisRateLimiter{
		client: client,
		prefix: prefix + ":rate_limit",
		now:    time.Now,
	}
}

// windowKey returns the counter key of the window containing now and the instant the
// window ends.
func (r *RedisRateLimiter) windowKey(scope, subject string, window time.Duration, now time.Time) (string, time.Time) {
	start := now.UTC().Truncate(window)
	return fmt.Sprintf("%s:%s:%s:%d", r.prefix, scope, subject, start.Unix()), start.Add(window)
}

func (r *RedisRateLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}
	if window < time.Second {
		window = time.Second
	}

	now := r.now()
	key, resetAt := r.windowKey(scope, subject, window, now)

	var incr *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, resetAt.Add(time.Second))
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}

	return int(incr.Val()), retryAfter(resetAt.Sub(now)), nil
}

func retryAfter(wait time.Duration) int {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
