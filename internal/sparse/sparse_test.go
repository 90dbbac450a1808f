package sparse

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple words",
			input: "Hello World",
			want:  []string{"hello", "world"},
		},
		{
			name:  "punctuation splits",
			input: "fast, reliable; search!",
			want:  []string{"fast", "reliable", "search"},
		},
		{
			name:  "identifiers survive",
			input: "call sync.Mutex or my_func",
			want:  []string{"call", "sync.mutex", "or", "my_func"},
		},
		{
			name:  "trailing sentence dot trimmed",
			input: "use errgroup.",
			want:  []string{"use", "errgroup"},
		},
		{
			name:  "empty",
			input: "   ",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	tokens := []string{"a", "b", "c", "d"}

	assert.Len(t, Truncate(tokens, 2), 2)
	assert.Len(t, Truncate(tokens, 10), 4)
	assert.Len(t, Truncate(tokens, 0), 4)
}

func TestVectorDot(t *testing.T) {
	a := Vector{1: 0.5, 2: 1.0, 7: 0.25}
	b := Vector{2: 0.5, 7: 1.0, 9: 0.8}

	// Only dimensions 2 and 7 intersect.
	want := 1.0*0.5 + 0.25*1.0
	assert.InDelta(t, want, a.Dot(b), 1e-9)
	assert.InDelta(t, want, b.Dot(a), 1e-9)

	assert.Zero(t, a.Dot(Vector{}))
	assert.Zero(t, Vector{}.Dot(b))
	assert.Zero(t, a.Dot(Vector{99: 1.0}))
}

func TestVectorPrune(t *testing.T) {
	v := Vector{1: 0.9, 2: 0.5, 3: 0.9, 4: 0.1, 5: 0.7}

	pruned := v.Prune(3)
	require.Len(t, pruned, 3)

	// Highest weights win; the 0.9 tie keeps both ids.
	assert.Contains(t, pruned, uint32(1))
	assert.Contains(t, pruned, uint32(3))
	assert.Contains(t, pruned, uint32(5))

	// No-op when already under the cap.
	assert.Len(t, v.Prune(10), 5)
}

func TestVectorPruneTieBreakDeterministic(t *testing.T) {
	v := Vector{10: 0.5, 20: 0.5, 30: 0.5, 40: 0.5}

	first := v.Prune(2)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, v.Prune(2))
	}
	// Lower ids win ties.
	assert.Contains(t, first, uint32(10))
	assert.Contains(t, first, uint32(20))
}

func TestHashingEncoderDeterministic(t *testing.T) {
	enc := NewHashingEncoder(0, 0)
	ctx := context.Background()

	text := "how does the fusion engine rank documents"

	first, err := enc.Encode(ctx, text)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	for i := 0; i < 5; i++ {
		again, err := enc.Encode(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestHashingEncoderWeightsInRange(t *testing.T) {
	enc := NewHashingEncoder(0, 0)

	vec, err := enc.Encode(context.Background(),
		"error error error handling in distributed systems with retries retries")
	require.NoError(t, err)
	require.NotEmpty(t, vec)

	for id, w := range vec {
		assert.GreaterOrEqual(t, w, float32(0), "dimension %d", id)
		assert.LessOrEqual(t, w, float32(1), "dimension %d", id)
	}

	// The most frequent term normalizes to exactly 1.
	var max float32
	for _, w := range vec {
		if w > max {
			max = w
		}
	}
	assert.Equal(t, float32(1), max)
}

func TestHashingEncoderDimensionCap(t *testing.T) {
	enc := NewHashingEncoder(0, 0)

	// Far more unique tokens than the cap.
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&b, "token%d ", i)
	}

	vec, err := enc.Encode(context.Background(), b.String())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(vec), DefaultMaxDimensions)
}

func TestHashingEncoderEmptyText(t *testing.T) {
	enc := NewHashingEncoder(0, 0)

	vec, err := enc.Encode(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, vec)

	vec, err = enc.Encode(context.Background(), "  \t\n ")
	require.NoError(t, err)
	assert.Empty(t, vec)
}

func TestHashingEncoderTruncation(t *testing.T) {
	enc := NewHashingEncoder(4, 0)
	ctx := context.Background()

	short, err := enc.Encode(ctx, "alpha beta gamma delta")
	require.NoError(t, err)

	// Tokens past the truncation budget never influence the vector.
	long, err := enc.Encode(ctx, "alpha beta gamma delta epsilon zeta")
	require.NoError(t, err)
	assert.Equal(t, short, long)
}

func TestHashingEncoderBatchParity(t *testing.T) {
	enc := NewHashingEncoder(0, 0)
	ctx := context.Background()

	texts := []string{"first query", "second query text", ""}

	batch, err := enc.EncodeBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		single, err := enc.Encode(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "text %d", i)
	}
}

func TestHashingEncoderClosed(t *testing.T) {
	enc := NewHashingEncoder(0, 0)
	require.NoError(t, enc.Close())

	assert.False(t, enc.Available(context.Background()))
	_, err := enc.Encode(context.Background(), "anything")
	assert.Error(t, err)
}

// countingEncoder tracks how often inference actually runs.
type countingEncoder struct {
	*HashingEncoder
	calls int
}

func (c *countingEncoder) Encode(ctx context.Context, text string) (Vector, error) {
	c.calls++
	return c.HashingEncoder.Encode(ctx, text)
}

func (c *countingEncoder) EncodeBatch(ctx context.Context, texts []string) ([]Vector, error) {
	c.calls += len(texts)
	return c.HashingEncoder.EncodeBatch(ctx, texts)
}

func TestCachedEncoder(t *testing.T) {
	inner := &countingEncoder{HashingEncoder: NewHashingEncoder(0, 0)}
	cached, err := NewCachedEncoder(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := cached.Encode(ctx, "repeated query")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	second, err := cached.Encode(ctx, "repeated query")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "second encode should hit the cache")
	assert.Equal(t, first, second)
}

func TestCachedEncoderBatchPartialHit(t *testing.T) {
	inner := &countingEncoder{HashingEncoder: NewHashingEncoder(0, 0)}
	cached, err := NewCachedEncoder(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cached.Encode(ctx, "warm")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	batch, err := cached.EncodeBatch(ctx, []string{"warm", "cold one", "cold two"})
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, 3, inner.calls, "only the two cold texts run inference")

	direct, err := inner.HashingEncoder.Encode(ctx, "warm")
	require.NoError(t, err)
	assert.Equal(t, direct, batch[0])
}
