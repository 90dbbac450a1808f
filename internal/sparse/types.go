// Package sparse generates learned sparse term vectors for documents and
// queries. A sparse vector maps vocabulary token ids to weights in [0,1]
// and is never materialized as a dense array.
package sparse

import (
	"context"
	"sort"
)

// Default generator limits.
const (
	// DefaultMaxTokens is the input truncation budget before encoding.
	DefaultMaxTokens = 512

	// DefaultMaxDimensions caps the non-zero entries per vector. Bounds
	// both storage and downstream dot-product cost.
	DefaultMaxDimensions = 200

	// DefaultBatchSize caps texts per inference call.
	DefaultBatchSize = 32

	// VocabSize is the term vocabulary size for the hashing encoder.
	VocabSize = 30522
)

// Vector is a sparse term-weight map (token id -> weight).
// All weights lie in [0, 1]. A nil Vector means "not yet generated".
type Vector map[uint32]float32

// Dot computes the dot product restricted to the intersection of
// non-zero dimensions. Iterates the smaller map.
func (v Vector) Dot(other Vector) float64 {
	if len(other) < len(v) {
		v, other = other, v
	}
	var sum float64
	for id, w := range v {
		if ow, ok := other[id]; ok {
			sum += float64(w) * float64(ow)
		}
	}
	return sum
}

// Prune keeps only the maxDims highest-weight entries, breaking weight
// ties by token id so output is stable for identical input.
func (v Vector) Prune(maxDims int) Vector {
	if maxDims <= 0 || len(v) <= maxDims {
		return v
	}

	type entry struct {
		id uint32
		w  float32
	}
	entries := make([]entry, 0, len(v))
	for id, w := range v {
		entries = append(entries, entry{id, w})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].w != entries[j].w {
			return entries[i].w > entries[j].w
		}
		return entries[i].id < entries[j].id
	})

	pruned := make(Vector, maxDims)
	for _, e := range entries[:maxDims] {
		pruned[e.id] = e.w
	}
	return pruned
}

// normalize scales weights into [0,1] using the maximum weight and drops
// non-positive entries.
func (v Vector) normalize() Vector {
	var max float32
	for _, w := range v {
		if w > max {
			max = w
		}
	}
	if max <= 0 {
		return Vector{}
	}

	out := make(Vector, len(v))
	for id, w := range v {
		if w > 0 {
			out[id] = w / max
		}
	}
	return out
}

// Encoder converts text into sparse term vectors.
// Implementations must be safe for concurrent use and deterministic for
// identical text and model version.
type Encoder interface {
	// Encode generates the sparse vector for a single text.
	Encode(ctx context.Context, text string) (Vector, error)

	// EncodeBatch generates one vector per input text.
	EncodeBatch(ctx context.Context, texts []string) ([]Vector, error)

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the encoder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}
