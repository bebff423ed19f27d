package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether an actor may perform another operation of a given
// class. Keys follow the "{class}:{actorID}" convention so distinct operation
// classes count independently.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// RedisLimiter counts operations in Redis so the quota holds across multiple
// running instances.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter builds a limiter backed by the provided client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit"}
}

// Allow increments the window counter and reports whether the quota still
// holds. The first increment in a window sets the TTL, so idle keys expire on
// their own.
func (l *RedisLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	if max <= 0 {
		return true, nil
	}
	bucket := time.Now().UnixMilli() / window.Milliseconds()
	counterKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	pipe.Expire(ctx, counterKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit incr %s: %w", key, err)
	}
	return incr.Val() <= int64(max), nil
}

// MemoryLimiter is a per-process sliding window used when Redis is not
// configured. Counters are pruned on access and idle keys are evicted so
// memory stays bounded.
type MemoryLimiter struct {
	mu      sync.Mutex
	events  map[string][]time.Time
	lastGC  time.Time
	maxIdle time.Duration
	now     func() time.Time
}

// NewMemoryLimiter constructs the in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		events:  make(map[string][]time.Time),
		maxIdle: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow records the attempt and reports whether it fits within the trailing
// window for the key.
func (l *MemoryLimiter) Allow(_ context.Context, key string, max int, window time.Duration) (bool, error) {
	if max <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	kept := l.events[key][:0]
	for _, at := range l.events[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= max {
		l.events[key] = kept
		l.gc(now)
		return false, nil
	}

	l.events[key] = append(kept, now)
	l.gc(now)
	return true, nil
}

// gc drops keys whose newest event is older than maxIdle. Runs at most once
// per minute and under the limiter lock.
func (l *MemoryLimiter) gc(now time.Time) {
	if now.Sub(l.lastGC) < time.Minute {
		return
	}
	l.lastGC = now
	for key, events := range l.events {
		if len(events) == 0 || now.Sub(events[len(events)-1]) > l.maxIdle {
			delete(l.events, key)
		}
	}
}
