package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type memoryBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryRateLimiter is a per-process token bucket limiter used when Redis is not
// configured. Limits are per instance only.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	now     func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		buckets: make(map[string]*memoryBucket),
		now:     time.Now,
	}
}

func (m *MemoryRateLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	now := m.now()
	key := scope + ":" + subject

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets[key]
	if !ok {
		m.evictIdle(now)
		bucket = &memoryBucket{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		m.buckets[key] = bucket
	}
	bucket.lastSeen = now

	reservation := bucket.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return limit + 1, retryAfter(delay), nil
	}

	used := limit - int(bucket.limiter.TokensAt(now))
	if used < 1 {
		used = 1
	}
	return used, retryAfter(window), nil
}

func (m *MemoryRateLimiter) evictIdle(now time.Time) {
	for key, bucket := range m.buckets {
		if now.Sub(bucket.lastSeen) > limiterIdleTTL {
			delete(m.buckets, key)
		}
	}
}
