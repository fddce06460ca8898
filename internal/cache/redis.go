package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

const trialPrefix = "trials:"

// RedisCache 基于 Redis 的试次缓存
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache 连接 Redis 并检查连接
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

// key 生成会话对应的 Redis 键
func (r *RedisCache) key(sessionID string) string {
	return trialPrefix + sessionID
}

func (r *RedisCache) Get(ctx context.Context, sessionID string) ([]survey.Trial, bool, error) {
	data, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get trials: %w", err)
	}

	var trials []survey.Trial
	if err := json.Unmarshal(data, &trials); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal trials: %w", err)
	}
	return trials, true, nil
}

func (r *RedisCache) Set(ctx context.Context, sessionID string, trials []survey.Trial) error {
	data, err := json.Marshal(trials)
	if err != nil {
		return fmt.Errorf("failed to marshal trials: %w", err)
	}
	if err := r.client.Set(ctx, r.key(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set trials: %w", err)
	}
	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete trials: %w", err)
	}
	return nil
}

// Flush 清除所有缓存的试次集
func (r *RedisCache) Flush(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, trialPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// Close 关闭 Redis 连接
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Ping 检查 Redis 连接
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
