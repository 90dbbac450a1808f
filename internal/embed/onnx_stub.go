//go:build !cgo
// +build !cgo

package embed

import (
	"context"
	"fmt"

	fuseerr "github.com/rankfuse/rankfuse/internal/errors"
)

// ONNXEmbedder is a stub used when CGO is disabled. Constructing it
// always fails; callers fall back to the static embedder.
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error: ONNX inference requires CGO.
func NewONNXEmbedder(_, modelName string, _ int) (*ONNXEmbedder, error) {
	return nil, fuseerr.ModelUnavailableError(modelName,
		fmt.Errorf("ONNX embedder requires CGO (build with CGO_ENABLED=1)"))
}

// Embed always fails on the stub.
func (e *ONNXEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, fuseerr.ModelUnavailableError("minilm-onnx",
		fmt.Errorf("ONNX embedder requires CGO"))
}

// EmbedBatch always fails on the stub.
func (e *ONNXEmbedder) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, fuseerr.ModelUnavailableError("minilm-onnx",
		fmt.Errorf("ONNX embedder requires CGO"))
}

// Dimensions returns the default embedding dimension.
func (e *ONNXEmbedder) Dimensions() int { return DefaultDimensions }

// ModelName returns the model identifier.
func (e *ONNXEmbedder) ModelName() string { return "minilm-onnx" }

// Available always returns false on the stub.
func (e *ONNXEmbedder) Available(_ context.Context) bool { return false }

// Close is a no-op on the stub.
func (e *ONNXEmbedder) Close() error { return nil }

// Ensure the stub implements Embedder.
var _ Embedder = (*ONNXEmbedder)(nil)
