package store

import (
	"container/heap"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rankfuse/rankfuse/internal/sparse"
)

// InvertedSparseIndex implements SparseIndex with an in-memory inverted
// index: one posting list per vocabulary dimension. Query cost is
// proportional to the postings of the query's non-zero dimensions, not
// to the corpus size.
type InvertedSparseIndex struct {
	mu sync.RWMutex

	vectors  map[string]sparse.Vector // docID -> full vector
	postings map[uint32][]posting     // dimension -> documents carrying it

	closed bool
}

// posting is one document's weight on one dimension.
type posting struct {
	DocID  string
	Weight float32
}

// sparseIndexSnapshot is the gob persistence format. Postings are
// rebuilt from the vectors on load.
type sparseIndexSnapshot struct {
	Vectors map[string]sparse.Vector
}

// NewInvertedSparseIndex creates an empty sparse index.
func NewInvertedSparseIndex() *InvertedSparseIndex {
	return &InvertedSparseIndex{
		vectors:  make(map[string]sparse.Vector),
		postings: make(map[uint32][]posting),
	}
}

// Add inserts vectors with their IDs. Existing IDs are replaced.
func (s *InvertedSparseIndex) Add(ctx context.Context, ids []string, vectors []sparse.Vector) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	for i, id := range ids {
		if _, exists := s.vectors[id]; exists {
			s.removePostingsLocked(id)
		}

		vec := vectors[i]
		s.vectors[id] = vec
		for dim, w := range vec {
			s.postings[dim] = append(s.postings[dim], posting{DocID: id, Weight: w})
		}
	}

	return nil
}

// removePostingsLocked drops a document from every posting list it
// appears in. Caller holds the write lock.
func (s *InvertedSparseIndex) removePostingsLocked(id string) {
	vec := s.vectors[id]
	for dim := range vec {
		list := s.postings[dim]
		for i, p := range list {
			if p.DocID == id {
				list[i] = list[len(list)-1]
				s.postings[dim] = list[:len(list)-1]
				break
			}
		}
		if len(s.postings[dim]) == 0 {
			delete(s.postings, dim)
		}
	}
	delete(s.vectors, id)
}

// scoredDoc pairs a document with its accumulated dot product.
type scoredDoc struct {
	id    string
	score float64
}

// scoreHeap is a min-heap of scoredDoc used for top-k selection.
type scoreHeap []scoredDoc

func (h scoreHeap) Len() int            { return len(h) }
func (h scoreHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h scoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoreHeap) Push(x interface{}) { *h = append(*h, x.(scoredDoc)) }
func (h *scoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Search scores documents by dot product with the query vector over
// intersecting dimensions and returns the top k, best first. Score ties
// break by document ID so identical queries return identical rankings.
func (s *InvertedSparseIndex) Search(ctx context.Context, query sparse.Vector, k int) ([]*SparseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if len(query) == 0 || k <= 0 {
		return []*SparseResult{}, nil
	}

	scores := make(map[string]float64)
	for dim, qw := range query {
		for _, p := range s.postings[dim] {
			scores[p.DocID] += float64(qw) * float64(p.Weight)
		}
	}
	if len(scores) == 0 {
		return []*SparseResult{}, nil
	}

	h := make(scoreHeap, 0, k)
	heap.Init(&h)
	for id, score := range scores {
		if score <= 0 {
			continue
		}
		if len(h) < k {
			heap.Push(&h, scoredDoc{id: id, score: score})
		} else if score > h[0].score {
			h[0] = scoredDoc{id: id, score: score}
			heap.Fix(&h, 0)
		}
	}

	results := make([]*SparseResult, 0, len(h))
	for _, d := range h {
		results = append(results, &SparseResult{ID: d.id, Score: d.score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	return results, nil
}

// Delete removes vectors by ID.
func (s *InvertedSparseIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range ids {
		if _, exists := s.vectors[id]; exists {
			s.removePostingsLocked(id)
		}
	}

	return nil
}

// Contains checks if ID exists.
func (s *InvertedSparseIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	_, exists := s.vectors[id]
	return exists
}

// Count returns number of vectors.
func (s *InvertedSparseIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}

	return len(s.vectors)
}

// Save persists the vectors to disk atomically (temp file + rename).
func (s *InvertedSparseIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	snapshot := sparseIndexSnapshot{Vectors: s.vectors}
	if err := gob.NewEncoder(file).Encode(snapshot); err != nil {
		_ = file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode sparse index: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load reads vectors from disk and rebuilds the posting lists.
func (s *InvertedSparseIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	var snapshot sparseIndexSnapshot
	if err := gob.NewDecoder(file).Decode(&snapshot); err != nil {
		return fmt.Errorf("decode sparse index: %w", err)
	}

	s.vectors = snapshot.Vectors
	if s.vectors == nil {
		s.vectors = make(map[string]sparse.Vector)
	}
	s.postings = make(map[uint32][]posting)
	for id, vec := range s.vectors {
		for dim, w := range vec {
			s.postings[dim] = append(s.postings[dim], posting{DocID: id, Weight: w})
		}
	}

	return nil
}

// Close releases resources.
func (s *InvertedSparseIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.vectors = nil
	s.postings = nil

	return nil
}

// Verify interface implementation
var _ SparseIndex = (*InvertedSparseIndex)(nil)
