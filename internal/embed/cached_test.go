package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder tracks how often embedding actually runs.
type countingEmbedder struct {
	*StaticEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls += len(texts)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedderHit(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(0)}
	cached := NewCachedEmbedder(inner, 16)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "repeated query")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	second, err := cached.Embed(ctx, "repeated query")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "second embed should hit the cache")
	assert.Equal(t, first, second)
}

func TestCachedEmbedderBatchPartialHit(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(0)}
	cached := NewCachedEmbedder(inner, 16)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "warm")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	batch, err := cached.EmbedBatch(ctx, []string{"warm", "cold one", "cold two"})
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, 3, inner.calls, "only the two cold texts are embedded")
}

func TestCachedEmbedderPassthrough(t *testing.T) {
	inner := NewStaticEmbedder(128)
	cached := NewCachedEmbedder(inner, 0)

	assert.Equal(t, 128, cached.Dimensions())
	assert.Equal(t, "static", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, inner, cached.Inner())
}
