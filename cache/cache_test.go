package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKey_DeterministicAndProviderScoped(t *testing.T) {
	body := []byte(`{"model":"gpt-4o"}`)
	assert.Equal(t, Key("openai", body), Key("openai", body))
	assert.NotEqual(t, Key("openai", body), Key("anthropic", body))
}

func TestLRUCache_SetThenGetHits(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	key := Key("openai", []byte("payload"))
	entry := &Entry{Body: []byte(`{"ok":true}`), Metadata: Metadata{Provider: "openai", InputTokens: 5}}
	require.NoError(t, c.Set(ctx, key, entry, time.Hour))

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, entry.Body, got.Body)

	stats := c.Stats(ctx)
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 0, stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestLRUCache_MissOnUnknownKey(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	_, ok := c.Get(ctx, "nonexistent")
	assert.False(t, ok)
	assert.EqualValues(t, 1, c.Stats(ctx).Misses)
}

func TestLRUCache_ExpiredEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	key := "k"
	require.NoError(t, c.Set(ctx, key, &Entry{Body: []byte("x")}, -time.Second))

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats(ctx).Size)
}

func TestLRUCache_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(2)

	require.NoError(t, c.Set(ctx, "a", &Entry{Body: []byte("a")}, time.Hour))
	require.NoError(t, c.Set(ctx, "b", &Entry{Body: []byte("b")}, time.Hour))
	// touch "a" so "b" becomes least-recently-used
	_, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", &Entry{Body: []byte("c")}, time.Hour))

	_, ok := c.Get(ctx, "b")
	assert.False(t, ok, "b should have been evicted as least recently used")

	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestLRUCache_Clear(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)
	require.NoError(t, c.Set(ctx, "k", &Entry{Body: []byte("v")}, time.Hour))
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Stats(ctx).Size)
}

func setupTestRedisCache(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisCache(client, zap.NewNop())
}

func TestRedisCache_SetThenGetRoundTrips(t *testing.T) {
	mr, c := setupTestRedisCache(t)
	defer mr.Close()
	ctx := context.Background()

	key := Key("anthropic", []byte("body"))
	entry := &Entry{Body: []byte(`{"usage":{}}`), Metadata: Metadata{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"}}
	require.NoError(t, c.Set(ctx, key, entry, time.Hour))

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, entry.Body, got.Body)
	assert.Equal(t, entry.Metadata, got.Metadata)
}

func TestRedisCache_MissDegradesGracefully(t *testing.T) {
	mr, c := setupTestRedisCache(t)
	defer mr.Close()

	_, ok := c.Get(context.Background(), "missing")
	assert.False(t, ok)
}

func TestRedisCache_ErrorsDegradeToMiss(t *testing.T) {
	mr, c := setupTestRedisCache(t)
	ctx := context.Background()
	key := Key("openai", []byte("b"))
	require.NoError(t, c.Set(ctx, key, &Entry{Body: []byte("v")}, time.Hour))

	mr.Close() // backend now unreachable

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}

func TestRedisCache_Clear(t *testing.T) {
	mr, c := setupTestRedisCache(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", &Entry{Body: []byte("v")}, time.Hour))
	require.NoError(t, c.Set(ctx, "k2", &Entry{Body: []byte("v")}, time.Hour))
	require.NoError(t, c.Clear(ctx))

	assert.Equal(t, 0, c.Stats(ctx).Size)
}
