/*
 * @module service/rate_limiter/redis_rate_limiter
 * @description 分析提交限流：固定窗口计数，Redis 实现多实例共享，进程内实现用于单实例
 * @architecture 工具层 - 提供分布式限流能力
 * @documentReference DESIGN.md
 * @stateFlow 构造窗口键 -> 原子计数 -> 判断是否超限
 * @rules 使用Redis INCR和EXPIRE实现固定窗口限流；计数与过期在同一脚本内完成
 * @dependencies github.com/go-redis/redis/v8
 * @refs api/middleware/rate_limit.go
 */

package rate_limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimitResult 限流检查结果
type RateLimitResult struct {
	Allowed   bool  `json:"allowed"`   // 是否允许请求
	Limit     int   `json:"limit"`     // 限制数量
	Remaining int   `json:"remaining"` // 剩余数量
	ResetAt   int64 `json:"reset_at"`  // 重置时间（Unix时间戳）
}

// Limiter 限流器
type Limiter interface {
	Allow(ctx context.Context, key string) (*RateLimitResult, error)
}

const keyPrefix = "siconfi:rate_limit:"

var incrScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
if ttl < 0 then
	ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter Redis限流器
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisRateLimiter 创建Redis限流器，每个键在 window 内最多 limit 次
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window}
}

// Allow 计数并判断是否超限
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	seconds := int64(r.window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	windowKey := fmt.Sprintf("%s%s:%d", keyPrefix, key, time.Now().Unix()/seconds)

	res, err := incrScript.Run(ctx, r.client, []string{windowKey}, seconds).Slice()
	if err != nil {
		return nil, fmt.Errorf("限流检查失败: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("限流脚本返回值异常: %v", res)
	}
	count, _ := res[0].(int64)
	ttl, _ := res[1].(int64)
	return result(int(count), r.limit, time.Now().Add(time.Duration(ttl)*time.Second)), nil
}

func result(count, limit int, resetAt time.Time) *RateLimitResult {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt.Unix(),
	}
}

// MemoryRateLimiter 进程内固定窗口限流器
type MemoryRateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimiter 创建进程内限流器
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

// Allow 计数并判断是否超限
func (m *MemoryRateLimiter) Allow(_ context.Context, key string) (*RateLimitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		// 顺便清理过期窗口
		for k, old := range m.windows {
			if !now.Before(old.resetAt) {
				delete(m.windows, k)
			}
		}
		w = &memoryWindow{resetAt: now.Add(m.window)}
		m.windows[key] = w
	}
	w.count++
	return result(w.count, m.limit, w.resetAt), nil
}
