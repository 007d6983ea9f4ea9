// Package cache implements the metered proxy's response cache: an
// exact-match lookup keyed by SHA-256(provider ‖ ':' ‖ body), with two
// interchangeable backends (in-process LRU+TTL, external Redis). All
// backend errors degrade to a miss — a cache outage never fails a
// request, it only stops saving money on it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Metadata is what the Streaming Tap / unary forwarder captured about
// the upstream response, replayed verbatim on a cache hit.
type Metadata struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	ContentType  string `json:"content_type"`
	StatusCode   int    `json:"status_code"`
}

// Entry is one cached response body plus the metadata needed to
// synthesize an HTTP response from it without re-parsing anything.
type Entry struct {
	Body      []byte    `json:"body"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Stats summarizes cache effectiveness for the /api/v1/cache/stats endpoint.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
}

// Cache is the response-cache contract. Both backends implement it
// identically from the proxy pipeline's point of view.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) Stats
}

// Key derives the exact-match cache key for a provider and request body.
// Identical (provider, body) pairs always produce identical keys.
func Key(provider string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte(":"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
