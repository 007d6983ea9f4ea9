package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "llmlab:cache:"

// redisEntry is the JSON wrapper stored in Redis; the body is
// hex-encoded since provider response bodies aren't guaranteed to be
// valid UTF-8 (binary SSE framing, compressed bodies, etc).
type redisEntry struct {
	BodyHex   string    `json:"body_hex"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisCache is the external-KV response cache backend. Stats are kept
// process-local (a restart resets hit/miss counters; the cached data
// itself survives in Redis).
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisCache builds a Redis-backed cache over an already-connected client.
func NewRedisCache(client *redis.Client, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger.With(zap.String("component", "redis_cache"))}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed, treating as miss", zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}

	var wire redisEntry
	if err := json.Unmarshal(raw, &wire); err != nil {
		c.logger.Warn("corrupt cache entry, treating as miss", zap.Error(err))
		c.misses.Add(1)
		return nil, false
	}
	body, err := hex.DecodeString(wire.BodyHex)
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return &Entry{Body: body, Metadata: wire.Metadata, CreatedAt: wire.CreatedAt, ExpiresAt: wire.ExpiresAt}, true
}

func (c *RedisCache) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	entry.CreatedAt = time.Now()
	entry.ExpiresAt = entry.CreatedAt.Add(ttl)

	wire := redisEntry{
		BodyHex:   hex.EncodeToString(entry.Body),
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.Error(err))
		return err
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("redis del failed during clear", zap.Error(err))
		}
	}
	return iter.Err()
}

func (c *RedisCache) Stats(ctx context.Context) Stats {
	size := 0
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		size++
	}

	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Hits: hits, Misses: misses, HitRate: rate, Size: size, MaxSize: 0}
}
