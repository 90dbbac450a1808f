package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultRerankPoolSize bounds how many fused candidates are submitted
// to the reranker. Cross-encoder cost is linear in candidate count and
// materially higher per item than first-stage retrieval.
const DefaultRerankPoolSize = 100

// DefaultRerankCacheSize bounds the rerank result cache.
const DefaultRerankCacheSize = 512

// DefaultRerankCacheTTL is the time-bounded eviction for cached results.
const DefaultRerankCacheTTL = 5 * time.Minute

// Reranker scores query-document pairs with a pairwise relevance model.
// Cross-encoders jointly encode query-document pairs for more accurate
// relevance scoring than bi-encoders, but at higher computational cost.
type Reranker interface {
	// Rerank scores all candidates against the query in one batched
	// inference call and returns the topK by relevance descending.
	// The returned set is always a subset of the input candidates.
	Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]RerankedHit, error)

	// Available checks if the reranking model is loaded and usable.
	Available(ctx context.Context) bool

	// Close releases model resources.
	Close() error
}

// NoOpReranker preserves the incoming order. Used when reranking is
// disabled or the model is unavailable.
type NoOpReranker struct{}

// Rerank returns candidates in original order with decreasing scores.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, candidates []Candidate, topK int) ([]RerankedHit, error) {
	results := make([]RerankedHit, len(candidates))
	for i, c := range candidates {
		// Decreasing scores maintain the original order
		results[i] = RerankedHit{ID: c.ID, Relevance: 1.0 - float64(i)*0.01}
	}

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}

	return results, nil
}

// Available always returns true for NoOpReranker.
func (n *NoOpReranker) Available(_ context.Context) bool {
	return true
}

// Close is a no-op for NoOpReranker.
func (n *NoOpReranker) Close() error {
	return nil
}

// CachedReranker wraps a Reranker with a bounded, time-evicting cache.
// Repeated queries over an unchanged candidate pool skip inference.
type CachedReranker struct {
	inner Reranker
	cache *expirable.LRU[string, []RerankedHit]
}

// NewCachedReranker wraps inner with an expirable LRU cache. Size and
// ttl fall back to the defaults when non-positive.
func NewCachedReranker(inner Reranker, size int, ttl time.Duration) *CachedReranker {
	if size <= 0 {
		size = DefaultRerankCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultRerankCacheTTL
	}
	return &CachedReranker{
		inner: inner,
		cache: expirable.NewLRU[string, []RerankedHit](size, nil, ttl),
	}
}

// Rerank serves from cache when the normalized query and candidate set
// match a previous call with the same topK.
func (c *CachedReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]RerankedHit, error) {
	key := rerankCacheKey(query, candidates, topK)
	if cached, ok := c.cache.Get(key); ok {
		out := make([]RerankedHit, len(cached))
		copy(out, cached)
		return out, nil
	}

	results, err := c.inner.Rerank(ctx, query, candidates, topK)
	if err != nil {
		return nil, err
	}

	stored := make([]RerankedHit, len(results))
	copy(stored, results)
	c.cache.Add(key, stored)

	return results, nil
}

// Available delegates to the wrapped reranker.
func (c *CachedReranker) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close purges the cache and closes the wrapped reranker.
func (c *CachedReranker) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

// rerankCacheKey hashes the normalized query, the candidate ID set and
// topK. Candidate text is covered transitively: IDs map to stored text
// that only changes together with the document, which also invalidates
// the fused candidate set.
func rerankCacheKey(query string, candidates []Candidate, topK int) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(query))))
	h.Write([]byte{0})
	for _, c := range candidates {
		h.Write([]byte(c.ID))
		h.Write([]byte{0})
	}
	h.Write([]byte{byte(topK), byte(topK >> 8)})
	return hex.EncodeToString(h.Sum(nil))
}

// sortByRelevance orders hits by relevance descending with ID ascending
// tie-break, matching fusion's determinism guarantee.
func sortByRelevance(hits []RerankedHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Relevance != hits[j].Relevance {
			return hits[i].Relevance > hits[j].Relevance
		}
		return hits[i].ID < hits[j].ID
	})
}

var (
	_ Reranker = (*NoOpReranker)(nil)
	_ Reranker = (*CachedReranker)(nil)
)
