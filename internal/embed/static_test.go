package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder(0)
	ctx := context.Background()

	first, err := e.Embed(ctx, "hybrid retrieval fusion")
	require.NoError(t, err)
	require.Len(t, first, DefaultDimensions)

	for i := 0; i < 5; i++ {
		again, err := e.Embed(ctx, "hybrid retrieval fusion")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestStaticEmbedderUnitNorm(t *testing.T) {
	e := NewStaticEmbedder(0)

	vec, err := e.Embed(context.Background(), "normalize this sentence please")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-5)
}

func TestStaticEmbedderEmptyText(t *testing.T) {
	e := NewStaticEmbedder(0)

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	require.Len(t, vec, DefaultDimensions)

	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedderCustomDimensions(t *testing.T) {
	e := NewStaticEmbedder(128)
	assert.Equal(t, 128, e.Dimensions())

	vec, err := e.Embed(context.Background(), "short")
	require.NoError(t, err)
	assert.Len(t, vec, 128)
}

func TestStaticEmbedderDifferentTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "database connection pooling")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "kubernetes pod scheduling")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestStaticEmbedderBatch(t *testing.T) {
	e := NewStaticEmbedder(0)
	ctx := context.Background()

	texts := []string{"one", "two", "three"}
	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestStaticEmbedderClosed(t *testing.T) {
	e := NewStaticEmbedder(0)
	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))
	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
}

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"simpleword", []string{"simpleword"}},
		{"camelCase", []string{"camel", "Case"}},
		{"HTTPServer", []string{"HTTP", "Server"}},
		{"parseJSONBody", []string{"parse", "JSON", "Body"}},
		{"", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, splitCamelCase(tt.input))
		})
	}
}
