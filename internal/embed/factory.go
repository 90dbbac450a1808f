package embed

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderONNX uses a local ONNX sentence-transformer model
	ProviderONNX ProviderType = "onnx"

	// ProviderStatic uses hash-based embeddings (fallback when ONNX unavailable)
	ProviderStatic ProviderType = "static"
)

// Options configures embedder construction.
type Options struct {
	ModelPath  string
	Dimensions int
	CacheSize  int
}

// NewEmbedder creates an embedder with automatic fallback to the static
// embedder when the ONNX model is unavailable. The RANKFUSE_EMBEDDER
// environment variable overrides the provider ("onnx" or "static"); an
// explicit override disables the fallback so misconfiguration fails loud.
func NewEmbedder(opts Options) (Embedder, error) {
	if opts.Dimensions <= 0 {
		opts.Dimensions = DefaultDimensions
	}

	provider := ProviderStatic
	if opts.ModelPath != "" {
		provider = ProviderONNX
	}

	explicit := false
	if env := os.Getenv("RANKFUSE_EMBEDDER"); env != "" {
		switch strings.ToLower(env) {
		case "onnx":
			provider, explicit = ProviderONNX, true
		case "static":
			provider, explicit = ProviderStatic, true
		default:
			return nil, fmt.Errorf("unknown RANKFUSE_EMBEDDER value %q", env)
		}
	}

	var embedder Embedder
	switch provider {
	case ProviderONNX:
		onnx, err := NewONNXEmbedder(opts.ModelPath, "", opts.Dimensions)
		if err != nil {
			if explicit {
				return nil, err
			}
			slog.Warn("dense ONNX model unavailable, falling back to static embedder",
				slog.String("model_path", opts.ModelPath),
				slog.String("error", err.Error()))
			embedder = NewStaticEmbedder(opts.Dimensions)
		} else {
			embedder = onnx
		}
	case ProviderStatic:
		embedder = NewStaticEmbedder(opts.Dimensions)
	}

	return NewCachedEmbedder(embedder, opts.CacheSize), nil
}
