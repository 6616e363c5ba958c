/*
 * @module service/cache/report_cache
 * @description 分析报告缓存，读取已完成的分析时避免重复查询判定与维度汇总
 * @architecture 缓存旁路模式
 * @documentReference DESIGN.md
 * @stateFlow 查询 -> 缓存命中返回 / 未命中查库后回填
 * @rules 只缓存已结束的分析；重跑或删除时失效；未配置 Redis 时不缓存
 * @dependencies github.com/go-redis/redis/v8
 * @refs service/analysis/analysis_service.go
 */

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "siconfi:report:"

// ReportCache 报告缓存接口
type ReportCache interface {
	// Get 读取缓存并解码到 dst，未命中返回 false
	Get(ctx context.Context, runID string, dst interface{}) (bool, error)
	Set(ctx context.Context, runID string, v interface{}) error
	Delete(ctx context.Context, runIDs ...string) error
}

// NewRedisClient 创建并检测 Redis 客户端
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}
	return client, nil
}

// RedisReportCache 基于 Redis 的报告缓存
type RedisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReportCache 创建报告缓存
func NewRedisReportCache(client *redis.Client, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{client: client, ttl: ttl}
}

func (c *RedisReportCache) Get(ctx context.Context, runID string, dst interface{}) (bool, error) {
	b, err := c.client.Get(ctx, keyPrefix+runID).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("读取报告缓存失败: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		// 损坏的缓存条目直接丢弃
		slog.Warn("报告缓存解码失败，已删除", "run_id", runID, "error", err)
		c.client.Del(ctx, keyPrefix+runID)
		return false, nil
	}
	return true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, runID string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+runID, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("写入报告缓存失败: %w", err)
	}
	return nil
}

func (c *RedisReportCache) Delete(ctx context.Context, runIDs ...string) error {
	if len(runIDs) == 0 {
		return nil
	}
	keys := make([]string, len(runIDs))
	for i, id := range runIDs {
		keys[i] = keyPrefix + id
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("删除报告缓存失败: %w", err)
	}
	return nil
}

// NopReportCache 不缓存
type NopReportCache struct{}

func (NopReportCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (NopReportCache) Set(context.Context, string, interface{}) error         { return nil }
func (NopReportCache) Delete(context.Context, ...string) error                { return nil }
