package app

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, _, err := limiter.ConsumeRateLimit(ctx, "api", "10.0.0.1", 3, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != i {
			t.Fatalf("request %d: expected count %d, got %d", i, i, count)
		}
	}

	count, retry, err := limiter.ConsumeRateLimit(ctx, "api", "10.0.0.1", 3, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count <= 3 || retry != 20 {
		t.Fatalf("expected the fourth request to be limited for 20s, got count=%d retry=%d", count, retry)
	}

	if count, _, _ := limiter.ConsumeRateLimit(ctx, "api", "10.0.0.2", 3, time.Minute); count != 1 {
		t.Fatalf("expected another subject to have its own bucket, got count %d", count)
	}

	now = now.Add(20 * time.Second)
	if count, _, _ := limiter.ConsumeRateLimit(ctx, "api", "10.0.0.1", 3, time.Minute); count > 3 {
		t.Fatalf("expected a token to be refilled, got count %d", count)
	}
}

func TestRateLimitersIgnoreDisabledLimits(t *testing.T) {
	limiters := map[string]RateLimiter{
		"memory": NewMemoryRateLimiter(),
		"redis":  NewRedisRateLimiter(nil, ""),
	}
	for name, limiter := range limiters {
		t.Run(name, func(t *testing.T) {
			count, retry, err := limiter.ConsumeRateLimit(context.Background(), "api", "10.0.0.1", 0, time.Minute)
			if err != nil || count != 0 || retry != 0 {
				t.Fatalf("expected a disabled limit to be a no-op, got count=%d retry=%d err=%v", count, retry, err)
			}
		})
	}
}

func TestRedisRateLimiterPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "ravito:rate_limit"},
		{in: "staging:", want: "staging:rate_limit"},
		{in: " prod ", want: "prod:rate_limit"},
	}
	for _, tt := range tests {
		if got := NewRedisRateLimiter(nil, tt.in).prefix; got != tt.want {
			t.Fatalf("prefix %q: expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestRedisRateLimiterWindowKey(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "ravito")
	now := time.Date(2024, 3, 1, 10, 0, 45, 0, time.UTC)

	key, resetAt := limiter.windowKey("api", "user:u1", time.Minute, now)
	windowStart := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if want := fmt.Sprintf("ravito:rate_limit:api:user:u1:%d", windowStart.Unix()); key != want {
		t.Fatalf("expected key %q, got %q", want, key)
	}
	if !resetAt.Equal(windowStart.Add(time.Minute)) {
		t.Fatalf("expected the window to end at 10:01, got %s", resetAt)
	}
	if got := retryAfter(resetAt.Sub(now)); got != 15 {
		t.Fatalf("expected retry after 15s, got %d", got)
	}

	next, _ := limiter.windowKey("api", "user:u1", time.Minute, now.Add(15*time.Second))
	if next == key {
		t.Fatalf("expected a new key once the window ends")
	}
}
