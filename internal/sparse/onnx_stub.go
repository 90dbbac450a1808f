//go:build !cgo
// +build !cgo

package sparse

import (
	"context"
	"fmt"

	fuseerr "github.com/rankfuse/rankfuse/internal/errors"
)

// ONNXEncoder is a stub used when CGO is disabled. Constructing it always
// fails; callers fall back to the hashing encoder.
type ONNXEncoder struct{}

// ONNXEncoderConfig configures the ONNX sparse encoder.
type ONNXEncoderConfig struct {
	ModelPath string
	ModelName string
	MaxTokens int
	MaxDims   int
	BatchSize int
	UseGPU    bool
}

// NewONNXEncoder returns an error: ONNX inference requires CGO.
func NewONNXEncoder(cfg ONNXEncoderConfig) (*ONNXEncoder, error) {
	return nil, fuseerr.ModelUnavailableError(cfg.ModelName,
		fmt.Errorf("ONNX sparse encoder requires CGO (build with CGO_ENABLED=1)"))
}

// Encode always fails on the stub.
func (e *ONNXEncoder) Encode(_ context.Context, _ string) (Vector, error) {
	return nil, fuseerr.ModelUnavailableError("splade-onnx",
		fmt.Errorf("ONNX sparse encoder requires CGO"))
}

// EncodeBatch always fails on the stub.
func (e *ONNXEncoder) EncodeBatch(_ context.Context, _ []string) ([]Vector, error) {
	return nil, fuseerr.ModelUnavailableError("splade-onnx",
		fmt.Errorf("ONNX sparse encoder requires CGO"))
}

// ModelName returns the model identifier.
func (e *ONNXEncoder) ModelName() string { return "splade-onnx" }

// Available always returns false on the stub.
func (e *ONNXEncoder) Available(_ context.Context) bool { return false }

// Close is a no-op on the stub.
func (e *ONNXEncoder) Close() error { return nil }

// Ensure the stub implements Encoder.
var _ Encoder = (*ONNXEncoder)(nil)
