// Package store provides the persistence layer: keyword index (Bleve or
// SQLite FTS5), dense vector index (HNSW), sparse term index, and the
// SQLite document store.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rankfuse/rankfuse/internal/sparse"
)

// Document is the unit of indexing and retrieval.
type Document struct {
	ID        string            // Stable external identifier
	Title     string            // Short display title
	Body      string            // Full text content
	Metadata  map[string]string // Custom metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SearchText returns the text that feeds the keyword and dense indexes.
func (d *Document) SearchText() string {
	if d.Title == "" {
		return d.Body
	}
	return d.Title + "\n" + d.Body
}

// KeywordResult is a single lexical search result.
type KeywordResult struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about the keyword index.
type IndexStats struct {
	DocumentCount int
}

// KeywordIndex provides lexical search scored by BM25.
type KeywordIndex interface {
	// Index adds documents to the index, replacing existing IDs
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents matching query, best first
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	// Delete removes documents from the index
	Delete(ctx context.Context, docIDs []string) error

	// AllIDs returns all document IDs in the index
	AllIDs() ([]string, error)

	// Stats returns index statistics
	Stats() *IndexStats

	// Lifecycle
	Close() error
}

// KeywordConfig configures the keyword index.
type KeywordConfig struct {
	// K1 is the term frequency saturation parameter (default: 1.2)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64

	// StopWords is a list of words to filter out during tokenization
	StopWords []string

	// MinTokenLength is minimum token length to index (default: 2)
	MinTokenLength int
}

// DefaultKeywordConfig returns default keyword index configuration.
func DefaultKeywordConfig() KeywordConfig {
	return KeywordConfig{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords contains high-frequency words excluded from the
// keyword index.
var DefaultStopWords = []string{
	"the", "a", "an", "is", "are", "was", "were",
	"to", "of", "in", "on", "for", "and", "or", "with",
	"it", "this", "that", "be", "as", "by", "at",
}

// DenseResult is a single dense vector search result.
type DenseResult struct {
	ID       string  // Document ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// DenseConfig configures the dense vector index.
type DenseConfig struct {
	// Dimensions is the vector dimension (must match the embedder)
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean)
	Metric string

	// M is HNSW max connections per layer
	M int

	// EfSearch is HNSW query-time search width
	EfSearch int
}

// DefaultDenseConfig returns sensible defaults for the dense index.
func DefaultDenseConfig(dimensions int) DenseConfig {
	return DenseConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// DenseIndex provides semantic nearest-neighbor search.
type DenseIndex interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to the query vector
	Search(ctx context.Context, query []float32, k int) ([]*DenseResult, error)

	// Delete removes vectors by ID
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all vector IDs in the index
	AllIDs() []string

	// Contains checks if ID exists
	Contains(id string) bool

	// Count returns number of vectors
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// SparseResult is a single sparse dot-product search result.
type SparseResult struct {
	ID    string
	Score float64 // Raw dot product, non-negative
}

// SparseIndex provides search over learned sparse term vectors.
type SparseIndex interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors []sparse.Vector) error

	// Search scores documents by dot product with the query vector
	Search(ctx context.Context, query sparse.Vector, k int) ([]*SparseResult, error)

	// Delete removes vectors by ID
	Delete(ctx context.Context, ids []string) error

	// Contains checks if ID exists
	Contains(id string) bool

	// Count returns number of vectors
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// SparseJobStatus is the lifecycle state of a batch generation job.
type SparseJobStatus string

const (
	SparseJobPending   SparseJobStatus = "pending"
	SparseJobRunning   SparseJobStatus = "running"
	SparseJobComplete  SparseJobStatus = "complete"
	SparseJobFailed    SparseJobStatus = "failed"
	SparseJobCancelled SparseJobStatus = "cancelled"
)

// SparseJob tracks a batch sparse vector generation run. Progress is
// committed per batch so an interrupted job resumes where it stopped.
type SparseJob struct {
	ID        string
	Status    SparseJobStatus
	Model     string
	Total     int
	Processed int
	Failed    int
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentStore persists documents, their sparse vectors, and job state.
type DocumentStore interface {
	// Document operations
	SaveDocuments(ctx context.Context, docs []*Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocuments(ctx context.Context, ids []string) ([]*Document, error)
	ListDocuments(ctx context.Context, cursor string, limit int) ([]*Document, string, error)
	DeleteDocuments(ctx context.Context, ids []string) error
	CountDocuments(ctx context.Context) (int, error)

	// Sparse vector operations
	SaveSparseVectors(ctx context.Context, ids []string, vectors []sparse.Vector, model string) error
	LoadSparseVectors(ctx context.Context) (map[string]sparse.Vector, error)
	DocumentsWithoutSparse(ctx context.Context, model string, limit int) ([]*Document, error)
	SparseVectorStats(ctx context.Context, model string) (withVector, withoutVector int, err error)

	// Job operations
	SaveSparseJob(ctx context.Context, job *SparseJob) error
	GetSparseJob(ctx context.Context, id string) (*SparseJob, error)
	ListSparseJobs(ctx context.Context, limit int) ([]*SparseJob, error)

	// State operations (key-value store for runtime state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// State keys for the document store.
const (
	// StateKeyDenseDimension stores the embedding dimension used for the index
	StateKeyDenseDimension = "dense_embedding_dimension"
	// StateKeyDenseModel stores the embedding model name used for the index
	StateKeyDenseModel = "dense_embedding_model"
	// StateKeySparseModel stores the sparse model used for stored vectors
	StateKeySparseModel = "sparse_model"
)

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (reindex with the current model)", e.Expected, e.Got)
}

// ErrNotFound indicates a missing document or job.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}
