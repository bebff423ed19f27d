package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(start time.Time) (*MemoryLimiter, *time.Time) {
	clock := start
	l := NewMemoryLimiter()
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestMemoryLimiterRejectsBeyondMax(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1700000000, 0))

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(context.Background(), "enroll:user-1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d should pass", i+1)
	}

	ok, err := l.Allow(context.Background(), "enroll:user-1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "sixth attempt within the window must be rejected")
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1700000000, 0))

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(context.Background(), "enroll:user-1", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}

	blocked, err := l.Allow(context.Background(), "enroll:user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, blocked)

	// Same actor, different operation class.
	ok, err := l.Allow(context.Background(), "attendance:user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same class, different actor.
	ok, err = l.Allow(context.Background(), "enroll:user-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiterWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(time.Unix(1700000000, 0))

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(context.Background(), "attendance:user-1", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := l.Allow(context.Background(), "attendance:user-1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	*clock = clock.Add(61 * time.Second)
	ok, err = l.Allow(context.Background(), "attendance:user-1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "attempts outside the trailing window must not count")
}

func TestMemoryLimiterEvictsIdleKeys(t *testing.T) {
	l, clock := newTestLimiter(time.Unix(1700000000, 0))

	for i := 0; i < 50; i++ {
		_, err := l.Allow(context.Background(), "enroll:user-"+string(rune('a'+i%26)), 10, time.Minute)
		require.NoError(t, err)
	}
	require.NotEmpty(t, l.events)

	*clock = clock.Add(20 * time.Minute)
	_, err := l.Allow(context.Background(), "enroll:fresh", 10, time.Minute)
	require.NoError(t, err)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.events, 1, "idle keys should be evicted")
}

func TestMemoryLimiterZeroMaxMeansUnlimited(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1700000000, 0))
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "enroll:user-1", 0, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}
}
