package rate_limiter

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewMemoryRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	r, _ := l.Allow(ctx, "10.0.0.1")
	assert.True(t, r.Allowed)
	assert.Equal(t, 1, r.Remaining)
	r, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, r.Allowed)
	r, _ = l.Allow(ctx, "10.0.0.1")
	assert.False(t, r.Allowed)
	assert.Zero(t, r.Remaining)

	r, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, r.Allowed, "不同的键独立计数")

	now = now.Add(time.Minute)
	r, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, r.Allowed, "新窗口重新计数")
	assert.Len(t, l.windows, 1, "过期窗口被清理")
}

// TestRedisRateLimiter 需要可用的 Redis，未配置 REDIS_HOST 时跳过
func TestRedisRateLimiter(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST 未设置")
	}
	client := redis.NewClient(&redis.Options{Addr: host + ":6379"})
	defer client.Close()

	l := NewRedisRateLimiter(client, 2, time.Minute)
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, r.Allowed)
	}
	r, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Greater(t, r.ResetAt, time.Now().Unix()-1)
}
