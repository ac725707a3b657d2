package internal

import (
	"context"
	"testing"
	"time"

	"github.com/komfyrvakt/komfyrvakt/pkg/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTieredCache(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	c := NewTieredCache(store, time.Second)

	_, cached := c.GetTiered(ctx, "missing")
	assert.False(t, cached)

	require.NoError(t, c.SetTiered(ctx, "ai:analysis:all:2025111210", []byte("report"), time.Hour))

	value, cached := c.GetTiered(ctx, "ai:analysis:all:2025111210")
	assert.True(t, cached)
	assert.Equal(t, []byte("report"), value)

	// the store is authoritative: a second cache sharing it sees the value
	other := NewTieredCache(store, time.Second)
	value, cached = other.GetTiered(ctx, "ai:analysis:all:2025111210")
	assert.True(t, cached)
	assert.Equal(t, []byte("report"), value)

	ttl, err := store.TTLRemaining(ctx, "ai:analysis:all:2025111210")
	require.NoError(t, err)
	assert.True(t, ttl > 59*time.Minute)
}

func TestTieredCacheInvalidatePattern(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	c := NewTieredCache(store, time.Minute)

	require.NoError(t, c.SetTiered(ctx, "ai:analysis:a", []byte("1"), time.Hour))
	require.NoError(t, c.SetTiered(ctx, "ai:timeseries:a", []byte("2"), time.Hour))
	require.NoError(t, c.SetTiered(ctx, "logs:a", []byte("3"), time.Hour))

	n, err := c.InvalidatePattern(ctx, "ai:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, cached := c.GetTiered(ctx, "ai:analysis:a")
	assert.False(t, cached, "memory tier must be invalidated too")
	_, cached = c.GetTiered(ctx, "logs:a")
	assert.True(t, cached)
}

func TestAsXXHashString(t *testing.T) {
	assert.Equal(t, AsXXHashString("r1:*"), AsXXHashString("r1:*"))
	assert.NotEqual(t, AsXXHashString("ab", "c"), AsXXHashString("a", "bc"))
	assert.Len(t, AsXXHashString(""), 32)
}
