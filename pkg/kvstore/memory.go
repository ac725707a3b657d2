package kvstore

import (
	"context"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps everything in process memory. It is meant for local runs and tests;
// nothing survives a restart.
type MemoryStore struct {
	items *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: cache.New(cache.NoExpiration, time.Minute),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	value, found := m.items.Get(key)
	if !found {
		return nil, ErrKeyNotFound
	}
	stored := value.([]byte)
	out := make([]byte, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *MemoryStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.items.Set(key, stored, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) (int64, error) {
	if _, found := m.items.Get(key); !found {
		return 0, nil
	}
	m.items.Delete(key)
	return 1, nil
}

func (m *MemoryStore) DeleteMany(ctx context.Context, keys []string) (int64, error) {
	var deleted int64
	for _, key := range keys {
		n, _ := m.Delete(ctx, key)
		deleted += n
	}
	return deleted, nil
}

// Scan returns matching keys in descending order. With a limit the greatest keys are kept,
// which for time-prefixed ids are the newest ones.
func (m *MemoryStore) Scan(_ context.Context, pattern string, limit int) ([]string, error) {
	matcher, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	for key := range m.items.Items() {
		if matcher.Match(key) {
			keys = append(keys, key)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (m *MemoryStore) TTLRemaining(_ context.Context, key string) (time.Duration, error) {
	_, expiration, found := m.items.GetWithExpiration(key)
	if !found {
		return 0, ErrKeyNotFound
	}
	if expiration.IsZero() {
		return NoTTL, nil
	}
	return time.Until(expiration), nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	m.items.Flush()
	return nil
}
