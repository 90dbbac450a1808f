//go:build !cgo
// +build !cgo

package search

import (
	"context"
	"fmt"

	fuseerr "github.com/rankfuse/rankfuse/internal/errors"
)

// ONNXReranker is unavailable without CGO; the orchestrator falls back
// to the fused order.
type ONNXReranker struct {
	modelName string
}

// ONNXRerankerConfig configures the cross-encoder reranker.
type ONNXRerankerConfig struct {
	ModelPath string
	ModelName string
	BatchSize int
	UseGPU    bool
}

// NewONNXReranker always fails when built without CGO.
func NewONNXReranker(cfg ONNXRerankerConfig) (*ONNXReranker, error) {
	if cfg.ModelName == "" {
		cfg.ModelName = "cross-encoder-onnx"
	}
	return nil, fuseerr.ModelUnavailableError(cfg.ModelName,
		fmt.Errorf("ONNX reranker requires CGO"))
}

// Rerank always fails on the stub.
func (r *ONNXReranker) Rerank(_ context.Context, _ string, _ []Candidate, _ int) ([]RerankedHit, error) {
	return nil, fuseerr.ModelUnavailableError(r.modelName, fmt.Errorf("ONNX reranker requires CGO"))
}

// Available always returns false on the stub.
func (r *ONNXReranker) Available(_ context.Context) bool {
	return false
}

// Close is a no-op on the stub.
func (r *ONNXReranker) Close() error {
	return nil
}

var _ Reranker = (*ONNXReranker)(nil)
