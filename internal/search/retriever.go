package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rankfuse/rankfuse/internal/embed"
	ferrors "github.com/rankfuse/rankfuse/internal/errors"
	"github.com/rankfuse/rankfuse/internal/sparse"
	"github.com/rankfuse/rankfuse/internal/store"
)

// DefaultRetrieveLimit is the per-method candidate count when the caller
// does not specify one.
const DefaultRetrieveLimit = 100

// Retriever produces one ranked candidate list for a query. Failure
// isolation happens here: a timeout or backend error comes back as an
// empty result set with Failed=true, never as a propagated error.
type Retriever interface {
	// Method identifies the retrieval strategy.
	Method() Method

	// Retrieve returns candidates sorted by native score descending,
	// with 0-based ranks assigned.
	Retrieve(ctx context.Context, query string, limit int) MethodResultSet
}

// failedSet converts a retrieval error into an empty MethodResultSet,
// classifying timeouts separately from backend failures.
func failedSet(method Method, start time.Time, err error) MethodResultSet {
	code := ferrors.ErrCodeRetrieverBackend
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = ferrors.ErrCodeRetrieverTimeout
	}
	if ferrors.GetCode(err) == ferrors.ErrCodeModelUnavailable {
		code = ferrors.ErrCodeModelUnavailable
	}
	return MethodResultSet{
		Method:  method,
		Hits:    []RankedHit{},
		Latency: time.Since(start),
		Failed:  true,
		Err:     ferrors.New(code, string(method)+" retrieval failed", err),
	}
}

// LexicalRetriever runs keyword search against the BM25-scored index.
type LexicalRetriever struct {
	index store.KeywordIndex
}

// NewLexicalRetriever creates a lexical retriever over the keyword index.
func NewLexicalRetriever(index store.KeywordIndex) *LexicalRetriever {
	return &LexicalRetriever{index: index}
}

func (r *LexicalRetriever) Method() Method { return MethodLexical }

func (r *LexicalRetriever) Retrieve(ctx context.Context, query string, limit int) MethodResultSet {
	start := time.Now()

	results, err := r.index.Search(ctx, query, limit)
	if err != nil {
		return failedSet(MethodLexical, start, err)
	}

	hits := make([]RankedHit, len(results))
	for i, res := range results {
		hits[i] = RankedHit{ID: res.DocID, Rank: uint32(i), Score: res.Score}
	}

	return MethodResultSet{Method: MethodLexical, Hits: hits, Latency: time.Since(start)}
}

// DenseRetriever embeds the query and runs nearest-neighbor search
// against the dense vector index.
type DenseRetriever struct {
	embedder embed.Embedder
	index    store.DenseIndex
}

// NewDenseRetriever creates a dense retriever from an embedder and index.
func NewDenseRetriever(embedder embed.Embedder, index store.DenseIndex) *DenseRetriever {
	return &DenseRetriever{embedder: embedder, index: index}
}

func (r *DenseRetriever) Method() Method { return MethodDense }

func (r *DenseRetriever) Retrieve(ctx context.Context, query string, limit int) MethodResultSet {
	start := time.Now()

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return failedSet(MethodDense, start, err)
	}

	results, err := r.index.Search(ctx, vec, limit)
	if err != nil {
		return failedSet(MethodDense, start, err)
	}

	hits := make([]RankedHit, len(results))
	for i, res := range results {
		hits[i] = RankedHit{ID: res.ID, Rank: uint32(i), Score: float64(res.Score)}
	}

	return MethodResultSet{Method: MethodDense, Hits: hits, Latency: time.Since(start)}
}

// SparseRetriever encodes the query into a sparse term vector and scores
// stored vectors by dot product. An unavailable encoder skips the sparse
// arm entirely so fusion degrades to two-way.
type SparseRetriever struct {
	encoder sparse.Encoder
	index   store.SparseIndex
}

// NewSparseRetriever creates a sparse retriever from an encoder and index.
func NewSparseRetriever(encoder sparse.Encoder, index store.SparseIndex) *SparseRetriever {
	return &SparseRetriever{encoder: encoder, index: index}
}

func (r *SparseRetriever) Method() Method { return MethodSparse }

func (r *SparseRetriever) Retrieve(ctx context.Context, query string, limit int) MethodResultSet {
	start := time.Now()

	if !r.encoder.Available(ctx) {
		slog.Debug("sparse encoder unavailable, skipping sparse retrieval")
		return failedSet(MethodSparse, start,
			ferrors.ModelUnavailableError(r.encoder.ModelName(), nil))
	}

	vec, err := r.encoder.Encode(ctx, query)
	if err != nil {
		return failedSet(MethodSparse, start, err)
	}
	if len(vec) == 0 {
		return MethodResultSet{Method: MethodSparse, Hits: []RankedHit{}, Latency: time.Since(start)}
	}

	results, err := r.index.Search(ctx, vec, limit)
	if err != nil {
		return failedSet(MethodSparse, start, err)
	}

	hits := make([]RankedHit, len(results))
	for i, res := range results {
		hits[i] = RankedHit{ID: res.ID, Rank: uint32(i), Score: res.Score}
	}

	return MethodResultSet{Method: MethodSparse, Hits: hits, Latency: time.Since(start)}
}

var (
	_ Retriever = (*LexicalRetriever)(nil)
	_ Retriever = (*DenseRetriever)(nil)
	_ Retriever = (*SparseRetriever)(nil)
)
