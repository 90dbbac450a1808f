package sparse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of cached vectors.
const DefaultCacheSize = 4096

// CachedEncoder wraps an Encoder with an LRU cache keyed by text content
// and model name. Queries repeat heavily in interactive use; documents
// are re-encoded on re-index.
type CachedEncoder struct {
	inner Encoder
	cache *lru.Cache[string, Vector]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEncoder wraps enc with an LRU of the given size.
// A size of zero selects DefaultCacheSize.
func NewCachedEncoder(enc Encoder, size int) (*CachedEncoder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Vector](size)
	if err != nil {
		return nil, err
	}
	return &CachedEncoder{inner: enc, cache: cache}, nil
}

// cacheKey builds a stable key from model name and text content.
func (c *CachedEncoder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// Encode generates the sparse vector for a single text.
func (c *CachedEncoder) Encode(ctx context.Context, text string) (Vector, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	vec, err := c.inner.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EncodeBatch generates one vector per input text, only running inference
// for texts not already cached.
func (c *CachedEncoder) EncodeBatch(ctx context.Context, texts []string) ([]Vector, error) {
	vectors := make([]Vector, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			c.hits.Add(1)
			vectors[i] = vec
			continue
		}
		c.misses.Add(1)
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	encoded, err := c.inner.EncodeBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range encoded {
		i := missingIdx[j]
		vectors[i] = vec
		c.cache.Add(c.cacheKey(texts[i]), vec)
	}
	return vectors, nil
}

// ModelName returns the wrapped encoder's model identifier.
func (c *CachedEncoder) ModelName() string { return c.inner.ModelName() }

// Available checks if the wrapped encoder is ready.
func (c *CachedEncoder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close logs cache statistics and closes the wrapped encoder.
func (c *CachedEncoder) Close() error {
	hits, misses := c.hits.Load(), c.misses.Load()
	if total := hits + misses; total > 0 {
		slog.Debug("sparse cache stats",
			slog.Int64("hits", hits),
			slog.Int64("misses", misses),
			slog.Float64("hit_rate", float64(hits)/float64(total)))
	}
	return c.inner.Close()
}

// Ensure CachedEncoder implements Encoder.
var _ Encoder = (*CachedEncoder)(nil)
