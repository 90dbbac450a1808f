package sparse

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// HashingEncoder generates sparse vectors by hashing tokens into a fixed
// vocabulary and weighting by saturated term frequency. It needs no
// model file or network, is fully deterministic, and serves as the
// fallback when no ONNX model is configured.
type HashingEncoder struct {
	maxTokens int
	maxDims   int

	mu     sync.RWMutex
	closed bool
}

// NewHashingEncoder creates a hashing encoder with the given limits.
// Zero limits select the package defaults.
func NewHashingEncoder(maxTokens, maxDims int) *HashingEncoder {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if maxDims <= 0 {
		maxDims = DefaultMaxDimensions
	}
	return &HashingEncoder{maxTokens: maxTokens, maxDims: maxDims}
}

// Encode generates the sparse vector for a single text.
func (e *HashingEncoder) Encode(_ context.Context, text string) (Vector, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("hashing encoder is closed")
	}

	tokens := Truncate(Tokenize(text), e.maxTokens)
	if len(tokens) == 0 {
		return Vector{}, nil
	}

	counts := make(map[uint32]float64, len(tokens))
	for _, tok := range tokens {
		counts[HashToken(tok)]++
	}

	// BM25-style term-frequency saturation keeps weights in (0,1) and
	// dampens repeated terms.
	vec := make(Vector, len(counts))
	for id, tf := range counts {
		vec[id] = float32(tf / (tf + 1.2))
	}

	return vec.normalize().Prune(e.maxDims), nil
}

// EncodeBatch generates one vector per input text.
func (e *HashingEncoder) EncodeBatch(ctx context.Context, texts []string) ([]Vector, error) {
	vectors := make([]Vector, len(texts))
	for i, text := range texts {
		vec, err := e.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// ModelName returns the model identifier.
func (e *HashingEncoder) ModelName() string {
	return "hashing-v1"
}

// Available always returns true while the encoder is open.
func (e *HashingEncoder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *HashingEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// HashToken maps a token deterministically into the vocabulary space.
func HashToken(tok string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tok))
	return h.Sum32() % VocabSize
}

// Ensure HashingEncoder implements Encoder.
var _ Encoder = (*HashingEncoder)(nil)
