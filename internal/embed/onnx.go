//go:build cgo
// +build cgo

package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	ort "github.com/yalue/onnxruntime_go"

	fuseerr "github.com/rankfuse/rankfuse/internal/errors"
)

// onnxMaxTokens is the sequence length for the dense model.
const onnxMaxTokens = 256

// ONNXEmbedder generates dense embeddings with a sentence-transformer
// ONNX model. Requires CGO and the onnxruntime shared library.
//
// Token embeddings are mean-pooled over the attention mask and
// L2-normalized, matching the sentence-transformers convention.
type ONNXEmbedder struct {
	modelName string
	dims      int

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	closed  bool
}

// NewONNXEmbedder creates a dense ONNX embedder for the model at
// modelPath producing dims-dimensional vectors.
func NewONNXEmbedder(modelPath, modelName string, dims int) (*ONNXEmbedder, error) {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	if modelName == "" {
		modelName = "minilm-onnx"
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fuseerr.ModelUnavailableError(modelName,
				fmt.Errorf("initialize ONNX runtime: %w", err))
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fuseerr.ModelUnavailableError(modelName,
			fmt.Errorf("create ONNX session: %w", err))
	}

	return &ONNXEmbedder{
		modelName: modelName,
		dims:      dims,
		session:   session,
	}, nil
}

// Embed generates embedding for a single text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one inference
// call per DefaultBatchSize chunk.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += DefaultBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + DefaultBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.runBatch(texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}
	return results, nil
}

// runBatch executes one inference call under the session lock.
func (e *ONNXEmbedder) runBatch(texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fuseerr.ModelUnavailableError(e.modelName, fmt.Errorf("embedder is closed"))
	}

	n := len(texts)
	inputIDs := make([]int64, n*onnxMaxTokens)
	attentionMask := make([]int64, n*onnxMaxTokens)
	for i, text := range texts {
		fillWordpieceInput(text,
			inputIDs[i*onnxMaxTokens:(i+1)*onnxMaxTokens],
			attentionMask[i*onnxMaxTokens:(i+1)*onnxMaxTokens])
	}

	shape := ort.NewShape(int64(n), int64(onnxMaxTokens))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputs := []ort.ArbitraryTensor{nil}
	if err := e.session.Run([]ort.ArbitraryTensor{idsTensor, maskTensor}, outputs); err != nil {
		return nil, fuseerr.ModelUnavailableError(e.modelName,
			fmt.Errorf("inference failed: %w", err))
	}
	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	defer hiddenTensor.Destroy()

	hidden := hiddenTensor.GetData()
	if len(hidden) != n*onnxMaxTokens*e.dims {
		return nil, fmt.Errorf("unexpected hidden state size %d, want %d",
			len(hidden), n*onnxMaxTokens*e.dims)
	}

	results := make([][]float32, n)
	for i := 0; i < n; i++ {
		results[i] = meanPool(
			hidden[i*onnxMaxTokens*e.dims:(i+1)*onnxMaxTokens*e.dims],
			attentionMask[i*onnxMaxTokens:(i+1)*onnxMaxTokens],
			e.dims)
	}
	return results, nil
}

// meanPool averages token embeddings where the attention mask is set,
// then normalizes to unit length.
func meanPool(hidden []float32, mask []int64, dims int) []float32 {
	pooled := make([]float32, dims)
	var count float32
	for pos, m := range mask {
		if m == 0 {
			continue
		}
		count++
		row := hidden[pos*dims : (pos+1)*dims]
		for d, v := range row {
			pooled[d] += v
		}
	}
	if count > 0 {
		for d := range pooled {
			pooled[d] /= count
		}
	}
	return normalizeVector(pooled)
}

// fillWordpieceInput fills padded BERT-style input slices for one text.
// Tokens are hashed into the vocabulary space rather than looked up in a
// vocab file; the model's embedding table still gives stable positions.
func fillWordpieceInput(text string, inputIDs, attentionMask []int64) {
	const (
		clsToken  = 101
		sepToken  = 102
		vocabSize = 30522
	)

	inputIDs[0] = clsToken
	attentionMask[0] = 1

	pos := 1
	for _, word := range splitWords(text) {
		if pos >= len(inputIDs)-1 {
			break
		}
		inputIDs[pos] = int64(hashToIndex(word, vocabSize-1000) + 999)
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = sepToken
	attentionMask[pos] = 1
}

// splitWords lowercases and splits on non-alphanumeric runes.
func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *ONNXEmbedder) ModelName() string {
	return e.modelName
}

// Available checks if the embedder is ready.
func (e *ONNXEmbedder) Available(_ context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && e.session != nil
}

// Close destroys the session.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.session != nil {
		err := e.session.Destroy()
		e.session = nil
		return err
	}
	return nil
}

// Ensure ONNXEmbedder implements Embedder.
var _ Embedder = (*ONNXEmbedder)(nil)
