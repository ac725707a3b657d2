package internal

import (
	"context"
	"errors"
	"time"

	"github.com/komfyrvakt/komfyrvakt/pkg/kvstore"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// TieredCache is a short-lived in-process memory tier in front of the shared key-value store.
// The memory tier only saves round trips for hot keys; the store stays authoritative.
type TieredCache struct {
	store                kvstore.Store
	memCache             *cache.Cache
	memoryDataExpiration time.Duration
}

// NewTieredCache creates a cache whose memory tier holds values for at most memoryDataExpiration
func NewTieredCache(store kvstore.Store, memoryDataExpiration time.Duration) *TieredCache {
	if memoryDataExpiration <= 0 {
		memoryDataExpiration = TenSeconds
	}
	return &TieredCache{
		store:                store,
		memCache:             cache.New(memoryDataExpiration, 2*memoryDataExpiration),
		memoryDataExpiration: memoryDataExpiration,
	}
}

// GetTiered attempts to get key from the memory cache, if that fails it falls back to the store
func (c *TieredCache) GetTiered(ctx context.Context, key string) (value []byte, cached bool) {
	if v, found := c.memCache.Get(key); found {
		zap.S().Debugw("Found in memcache", "key", key)
		return v.([]byte), true
	}

	ctx, cancel := context.WithTimeout(ctx, c.memoryDataExpiration)
	defer cancel()

	value, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrKeyNotFound) {
			zap.S().Warnw("Cache lookup failed", "key", key, "error", err)
		}
		return nil, false
	}
	zap.S().Debugw("Found in store", "key", key)

	// Write back to memCache
	c.memCache.SetDefault(key, value)
	return value, true
}

// SetTiered sets memcache and the store. The memory tier never outlives the store entry.
func (c *TieredCache) SetTiered(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	memExpiration := c.memoryDataExpiration
	if expiration > 0 && expiration < memExpiration {
		memExpiration = expiration
	}
	c.memCache.Set(key, value, memExpiration)
	return c.store.SetWithTTL(ctx, key, value, expiration)
}

// InvalidatePattern removes every key matching pattern from both tiers
func (c *TieredCache) InvalidatePattern(ctx context.Context, pattern string) (int64, error) {
	matcher, err := kvstore.CompilePattern(pattern)
	if err != nil {
		return 0, err
	}
	for key := range c.memCache.Items() {
		if matcher.Match(key) {
			c.memCache.Delete(key)
		}
	}
	keys, err := c.store.Scan(ctx, pattern, 0)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return c.store.DeleteMany(ctx, keys)
}
