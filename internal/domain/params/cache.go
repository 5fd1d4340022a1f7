package params

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/pkg/metrics"
)

const (
	cacheKey         = "guardian"
	cacheNumCounters = 100
	cacheMaxCost     = 1 << 10
	cacheBufferItems = 64
	defaultParamsTTL = 5 * time.Minute
)

// CachedProvider keeps a Loader's snapshot for a TTL.
type CachedProvider struct {
	next  Loader
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedProvider wraps next. A non-positive ttl falls back to five minutes.
func NewCachedProvider(next Loader, ttl time.Duration) (*CachedProvider, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("params cache: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultParamsTTL
	}
	return &CachedProvider{next: next, cache: cache, ttl: ttl}, nil
}

// GuardianConfig returns the cached snapshot or loads and caches a fresh one.
func (c *CachedProvider) GuardianConfig(ctx context.Context) model.GuardianConfig {
	if v, ok := c.cache.Get(cacheKey); ok {
		if cfg, ok := v.(model.GuardianConfig); ok {
			metrics.RecordParamsCache(metrics.CacheHit)
			return cfg
		}
	}
	metrics.RecordParamsCache(metrics.CacheMiss)

	cfg := c.next.GuardianConfig(ctx)
	if c.cache.SetWithTTL(cacheKey, cfg, 1, c.ttl) {
		c.cache.Wait()
	}
	return cfg
}

// Invalidate drops the cached snapshot so the next call reloads.
func (c *CachedProvider) Invalidate() {
	c.cache.Del(cacheKey)
}

// Close releases the cache.
func (c *CachedProvider) Close() {
	c.cache.Close()
}
