// Package cache keeps recently served trial sets close to the handlers.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

// DefaultTTL bounds how long a cached trial set is served.
const DefaultTTL = 10 * time.Minute

// TrialCache 按会话ID缓存试次集
type TrialCache interface {
	Get(ctx context.Context, sessionID string) ([]survey.Trial, bool, error)
	Set(ctx context.Context, sessionID string, trials []survey.Trial) error
	Invalidate(ctx context.Context, sessionID string) error
	Flush(ctx context.Context) error
	Close() error
}

type entry struct {
	trials  []survey.Trial
	expires time.Time
}

// MemoryCache 单进程内的试次缓存
type MemoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]entry
	now   func() time.Time
}

// NewMemoryCache 创建空缓存, ttl <= 0 时使用 DefaultTTL
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{ttl: ttl, items: make(map[string]entry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, sessionID string) ([]survey.Trial, bool, error) {
	c.mu.RLock()
	e, ok := c.items[sessionID]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.items, sessionID)
		c.mu.Unlock()
		return nil, false, nil
	}
	return append([]survey.Trial(nil), e.trials...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, sessionID string, trials []survey.Trial) error {
	c.mu.Lock()
	c.items[sessionID] = entry{
		trials:  append([]survey.Trial(nil), trials...),
		expires: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, sessionID string) error {
	c.mu.Lock()
	delete(c.items, sessionID)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Flush(context.Context) error {
	c.mu.Lock()
	c.items = make(map[string]entry)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Close() error { return nil }
