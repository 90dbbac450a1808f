package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordBackends returns a fresh in-memory index per backend so both
// implementations run the same behavioral suite.
func keywordBackends(t *testing.T) map[string]KeywordIndex {
	t.Helper()

	bleveIdx, err := NewBleveKeywordIndex("", DefaultKeywordConfig())
	require.NoError(t, err)

	ftsIdx, err := NewFTS5KeywordIndex("", DefaultKeywordConfig())
	require.NoError(t, err)

	return map[string]KeywordIndex{
		"bleve": bleveIdx,
		"fts5":  ftsIdx,
	}
}

func testDocs() []*Document {
	return []*Document{
		{ID: "doc1", Title: "Connection pooling", Body: "Reuse database connections to reduce latency under load."},
		{ID: "doc2", Title: "Retry logic", Body: "Exponential backoff avoids overwhelming a failing backend."},
		{ID: "doc3", Title: "Pool sizing", Body: "Database pool size should match backend capacity."},
	}
}

func TestKeywordIndexSearch(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer idx.Close()
			ctx := context.Background()

			require.NoError(t, idx.Index(ctx, testDocs()))

			results, err := idx.Search(ctx, "database pool", 10)
			require.NoError(t, err)
			require.NotEmpty(t, results)

			ids := make([]string, 0, len(results))
			for _, r := range results {
				assert.Greater(t, r.Score, 0.0)
				ids = append(ids, r.DocID)
			}
			assert.Contains(t, ids, "doc3")
		})
	}
}

func TestKeywordIndexEmptyQuery(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer idx.Close()
			ctx := context.Background()

			require.NoError(t, idx.Index(ctx, testDocs()))

			results, err := idx.Search(ctx, "   ", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestKeywordIndexDelete(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer idx.Close()
			ctx := context.Background()

			require.NoError(t, idx.Index(ctx, testDocs()))
			require.NoError(t, idx.Delete(ctx, []string{"doc1", "doc3"}))

			ids, err := idx.AllIDs()
			require.NoError(t, err)
			assert.Equal(t, []string{"doc2"}, ids)
		})
	}
}

func TestKeywordIndexReplace(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer idx.Close()
			ctx := context.Background()

			require.NoError(t, idx.Index(ctx, []*Document{
				{ID: "doc1", Body: "original topic kubernetes"},
			}))
			require.NoError(t, idx.Index(ctx, []*Document{
				{ID: "doc1", Body: "replaced topic postgres"},
			}))

			assert.Equal(t, 1, idx.Stats().DocumentCount)

			results, err := idx.Search(ctx, "kubernetes", 10)
			require.NoError(t, err)
			assert.Empty(t, results, "stale content should not match after replace")

			results, err = idx.Search(ctx, "postgres", 10)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "doc1", results[0].DocID)
		})
	}
}

func TestKeywordIndexIdentifierQuery(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer idx.Close()
			ctx := context.Background()

			require.NoError(t, idx.Index(ctx, []*Document{
				{ID: "doc1", Body: "func getUserById fetches a user record"},
			}))

			// Identifier-aware tokenization lets plain words match
			// camelCase content.
			results, err := idx.Search(ctx, "user id", 10)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, "doc1", results[0].DocID)
		})
	}
}

func TestKeywordIndexClosedErrors(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.Close())
			require.NoError(t, idx.Close(), "close should be idempotent")

			err := idx.Index(context.Background(), testDocs())
			assert.Error(t, err)

			_, err = idx.Search(context.Background(), "anything", 10)
			assert.Error(t, err)
		})
	}
}

func TestNewKeywordIndexWithBackend(t *testing.T) {
	idx, err := NewKeywordIndexWithBackend("", DefaultKeywordConfig(), "bleve")
	require.NoError(t, err)
	require.IsType(t, (*BleveKeywordIndex)(nil), idx)
	require.NoError(t, idx.Close())

	idx, err = NewKeywordIndexWithBackend("", DefaultKeywordConfig(), "fts5")
	require.NoError(t, err)
	require.IsType(t, (*FTS5KeywordIndex)(nil), idx)
	require.NoError(t, idx.Close())

	_, err = NewKeywordIndexWithBackend("", DefaultKeywordConfig(), "lucene")
	assert.Error(t, err)
}
