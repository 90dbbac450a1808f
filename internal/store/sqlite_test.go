package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankfuse/rankfuse/internal/sparse"
)

func newTestDocumentStore(t *testing.T) *SQLiteDocumentStore {
	t.Helper()
	s, err := NewSQLiteDocumentStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDocumentStoreSaveGet(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	docs := []*Document{
		{ID: "doc1", Title: "First", Body: "body one", Metadata: map[string]string{"lang": "en"}},
		{ID: "doc2", Title: "Second", Body: "body two"},
	}
	require.NoError(t, s.SaveDocuments(ctx, docs))

	got, err := s.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, "body one", got.Body)
	assert.Equal(t, map[string]string{"lang": "en"}, got.Metadata)
	assert.False(t, got.CreatedAt.IsZero())

	count, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDocumentStoreGetMissing(t *testing.T) {
	s := newTestDocumentStore(t)

	_, err := s.GetDocument(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorAs(t, err, &ErrNotFound{})
}

func TestDocumentStoreGetDocumentsOrder(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{
		{ID: "a", Body: "a"}, {ID: "b", Body: "b"}, {ID: "c", Body: "c"},
	}))

	// Result order follows request order; missing IDs are skipped.
	docs, err := s.GetDocuments(ctx, []string{"c", "ghost", "a"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0].ID)
	assert.Equal(t, "a", docs[1].ID)
}

func TestDocumentStoreUpsert(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{{ID: "doc1", Body: "original"}}))
	require.NoError(t, s.SaveDocuments(ctx, []*Document{{ID: "doc1", Body: "updated"}}))

	got, err := s.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Body)

	count, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDocumentStoreListPagination(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{
		{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"},
	}))

	page1, cursor, err := s.ListDocuments(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "b", cursor)

	page2, cursor, err := s.ListDocuments(ctx, cursor, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "d", cursor)

	page3, cursor, err := s.ListDocuments(ctx, cursor, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Empty(t, cursor)
}

func TestDocumentStoreSparseVectors(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{
		{ID: "a", Body: "alpha"}, {ID: "b", Body: "beta"}, {ID: "c", Body: "gamma"},
	}))

	require.NoError(t, s.SaveSparseVectors(ctx,
		[]string{"a", "b"},
		[]sparse.Vector{{1: 0.5, 2: 1.0}, {3: 0.7}},
		"hashing-v1"))

	vectors, err := s.LoadSparseVectors(ctx)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.InDelta(t, 0.5, float64(vectors["a"][1]), 1e-6)

	with, without, err := s.SparseVectorStats(ctx, "hashing-v1")
	require.NoError(t, err)
	assert.Equal(t, 2, with)
	assert.Equal(t, 1, without)

	missing, err := s.DocumentsWithoutSparse(ctx, "hashing-v1", 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "c", missing[0].ID)

	// Vectors for a different model don't count.
	missing, err = s.DocumentsWithoutSparse(ctx, "splade-onnx", 10)
	require.NoError(t, err)
	assert.Len(t, missing, 3)
}

func TestDocumentStoreDeleteCascades(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocuments(ctx, []*Document{{ID: "a", Body: "alpha"}}))
	require.NoError(t, s.SaveSparseVectors(ctx,
		[]string{"a"}, []sparse.Vector{{1: 1.0}}, "hashing-v1"))

	require.NoError(t, s.DeleteDocuments(ctx, []string{"a"}))

	vectors, err := s.LoadSparseVectors(ctx)
	require.NoError(t, err)
	assert.Empty(t, vectors, "sparse vectors should cascade on document delete")
}

func TestDocumentStoreSparseJobs(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	job := &SparseJob{
		ID:     "job-1",
		Status: SparseJobPending,
		Model:  "hashing-v1",
		Total:  100,
	}
	require.NoError(t, s.SaveSparseJob(ctx, job))

	job.Status = SparseJobRunning
	job.Processed = 40
	require.NoError(t, s.SaveSparseJob(ctx, job))

	got, err := s.GetSparseJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, SparseJobRunning, got.Status)
	assert.Equal(t, 40, got.Processed)
	assert.Equal(t, 100, got.Total)

	jobs, err := s.ListSparseJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	_, err = s.GetSparseJob(ctx, "nope")
	assert.ErrorAs(t, err, &ErrNotFound{})
}

func TestDocumentStoreState(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	val, err := s.GetState(ctx, StateKeyDenseModel)
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, s.SetState(ctx, StateKeyDenseModel, "static"))
	require.NoError(t, s.SetState(ctx, StateKeyDenseModel, "minilm-onnx"))

	val, err = s.GetState(ctx, StateKeyDenseModel)
	require.NoError(t, err)
	assert.Equal(t, "minilm-onnx", val)
}
