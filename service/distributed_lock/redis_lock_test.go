package distributed_lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLock()
	l.now = func() time.Time { return now }

	ok, err := l.TryLock(ctx, "3550308:2024", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.TryLock(ctx, "3550308:2024", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	locked, _ := l.IsLocked(ctx, "3550308:2024")
	assert.False(t, locked)
	ok, _ = l.TryLock(ctx, "3550308:2024", time.Minute)
	assert.True(t, ok)
}

func TestExecuteWithLockReturnsErrLockHeld(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLock()
	exec := NewLockExecutor(l)

	inner := 0
	err := exec.ExecuteWithLock(ctx, "k", time.Minute, func() error {
		inner++
		err := exec.ExecuteWithLock(ctx, "k", time.Minute, func() error {
			inner++
			return nil
		})
		assert.ErrorIs(t, err, ErrLockHeld)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inner)

	locked, _ := l.IsLocked(ctx, "k")
	assert.False(t, locked, "执行结束后释放锁")
}

func TestExecuteWithLockPropagatesError(t *testing.T) {
	exec := NewLockExecutor(NewMemoryLock())
	boom := errors.New("boom")
	err := exec.ExecuteWithLockAndRefresh(context.Background(), "k", time.Minute, 10*time.Millisecond, func() error {
		time.Sleep(25 * time.Millisecond)
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

// TestRedisLock 需要可用的 Redis，未设置 REDIS_HOST 时跳过
func TestRedisLock(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST 未设置")
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port)})
	defer client.Close()

	ctx := context.Background()
	l := NewRedisLock(client)
	key := fmt.Sprintf("test:%d", time.Now().UnixNano())

	ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	other := &RedisLock{client: client, instanceID: "other"}
	ok, err = other.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, other.Refresh(ctx, key, time.Minute), ErrLockHeld)

	require.NoError(t, other.Unlock(ctx, key))
	locked, _ := l.IsLocked(ctx, key)
	assert.True(t, locked, "非持有者不能释放锁")

	require.NoError(t, l.Refresh(ctx, key, time.Minute))
	require.NoError(t, l.Unlock(ctx, key))
	locked, _ = l.IsLocked(ctx, key)
	assert.False(t, locked)
}
