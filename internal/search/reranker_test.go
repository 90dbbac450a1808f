package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeCandidates(ids ...string) []Candidate {
	out := make([]Candidate, len(ids))
	for i, id := range ids {
		out[i] = Candidate{ID: id, Text: "document " + id}
	}
	return out
}

func TestNoOpReranker_PreservesOrder(t *testing.T) {
	r := &NoOpReranker{}

	hits, err := r.Rerank(context.Background(), "q", makeCandidates("a", "b", "c"), 0)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
	assert.Equal(t, "c", hits[2].ID)
	assert.Greater(t, hits[0].Relevance, hits[1].Relevance)
	assert.Greater(t, hits[1].Relevance, hits[2].Relevance)
}

func TestNoOpReranker_TopK(t *testing.T) {
	r := &NoOpReranker{}

	hits, err := r.Rerank(context.Background(), "q", makeCandidates("a", "b", "c", "d"), 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	// topK beyond the candidate count returns everything.
	hits, err = r.Rerank(context.Background(), "q", makeCandidates("a"), 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	assert.True(t, r.Available(context.Background()))
	assert.NoError(t, r.Close())
}

func TestNoOpReranker_NeverInvents(t *testing.T) {
	r := &NoOpReranker{}
	candidates := makeCandidates("x", "y")

	hits, err := r.Rerank(context.Background(), "q", candidates, 0)
	require.NoError(t, err)

	known := map[string]bool{"x": true, "y": true}
	for _, h := range hits {
		assert.True(t, known[h.ID])
	}
}

// countingReranker counts inner calls to observe cache behavior.
type countingReranker struct {
	NoOpReranker
	calls int
}

func (c *countingReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]RerankedHit, error) {
	c.calls++
	return c.NoOpReranker.Rerank(ctx, query, candidates, topK)
}

func TestCachedReranker_Hit(t *testing.T) {
	inner := &countingReranker{}
	r := NewCachedReranker(inner, 16, time.Minute)
	candidates := makeCandidates("a", "b")

	first, err := r.Rerank(context.Background(), "Query", candidates, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	// Same query modulo case and whitespace hits the cache.
	second, err := r.Rerank(context.Background(), "  query ", candidates, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first, second)
}

func TestCachedReranker_DifferentCandidatesMiss(t *testing.T) {
	inner := &countingReranker{}
	r := NewCachedReranker(inner, 16, time.Minute)

	_, err := r.Rerank(context.Background(), "q", makeCandidates("a", "b"), 2)
	require.NoError(t, err)
	_, err = r.Rerank(context.Background(), "q", makeCandidates("a", "c"), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	// Different topK is a different cache entry too.
	_, err = r.Rerank(context.Background(), "q", makeCandidates("a", "b"), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestCachedReranker_CachedResultIsCopied(t *testing.T) {
	inner := &countingReranker{}
	r := NewCachedReranker(inner, 16, time.Minute)
	candidates := makeCandidates("a", "b")

	first, err := r.Rerank(context.Background(), "q", candidates, 2)
	require.NoError(t, err)
	first[0].ID = "mutated"

	second, err := r.Rerank(context.Background(), "q", candidates, 2)
	require.NoError(t, err)
	assert.Equal(t, "a", second[0].ID)
}

func TestSortByRelevance(t *testing.T) {
	hits := []RerankedHit{
		{ID: "c", Relevance: 0.5},
		{ID: "a", Relevance: 0.9},
		{ID: "z", Relevance: 0.5},
		{ID: "b", Relevance: 0.5},
	}
	sortByRelevance(hits)

	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, []RerankedHit{
		{ID: "b", Relevance: 0.5},
		{ID: "c", Relevance: 0.5},
		{ID: "z", Relevance: 0.5},
	}, hits[1:])
}

func TestRerankCacheKey_Stable(t *testing.T) {
	candidates := makeCandidates("a", "b", "c")
	k1 := rerankCacheKey("query", candidates, 10)
	k2 := rerankCacheKey("query", candidates, 10)
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, rerankCacheKey("other", candidates, 10))
	assert.NotEqual(t, k1, rerankCacheKey("query", candidates[:2], 10))
}

func TestRerankCacheKey_ManyCandidates(t *testing.T) {
	many := make([]Candidate, 0, 300)
	for i := range 300 {
		many = append(many, Candidate{ID: fmt.Sprintf("doc-%03d", i)})
	}
	assert.NotEqual(t,
		rerankCacheKey("q", many, 300),
		rerankCacheKey("q", many[:299], 300))
}
