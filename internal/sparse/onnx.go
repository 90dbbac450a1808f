//go:build cgo
// +build cgo

package sparse

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	fuseerr "github.com/rankfuse/rankfuse/internal/errors"
)

// ONNXEncoder generates SPLADE-style sparse vectors with an ONNX model.
// Requires CGO and the onnxruntime shared library.
//
// The model takes BERT-style input_ids/attention_mask and emits per-token
// vocabulary logits; term weights are max-pooled log(1+relu(logit)) over
// the sequence, which is the standard SPLADE activation.
type ONNXEncoder struct {
	modelPath string
	modelName string
	maxTokens int
	maxDims   int
	batchSize int

	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	cpuSession *ort.DynamicAdvancedSession // lazy, created on GPU OOM
	useGPU     bool
	closed     bool
}

// ONNXEncoderConfig configures the ONNX sparse encoder.
type ONNXEncoderConfig struct {
	ModelPath string
	ModelName string
	MaxTokens int
	MaxDims   int
	BatchSize int
	UseGPU    bool
}

// NewONNXEncoder creates an ONNX sparse encoder.
// InitializeEnvironment is called if not already done.
func NewONNXEncoder(cfg ONNXEncoderConfig) (*ONNXEncoder, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxDims <= 0 {
		cfg.MaxDims = DefaultMaxDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "splade-onnx"
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fuseerr.ModelUnavailableError(cfg.ModelName,
				fmt.Errorf("initialize ONNX runtime: %w", err))
		}
	}

	session, err := newSparseSession(cfg.ModelPath, cfg.UseGPU)
	if err != nil {
		return nil, fuseerr.ModelUnavailableError(cfg.ModelName, err)
	}

	return &ONNXEncoder{
		modelPath: cfg.ModelPath,
		modelName: cfg.ModelName,
		maxTokens: cfg.MaxTokens,
		maxDims:   cfg.MaxDims,
		batchSize: cfg.BatchSize,
		session:   session,
		useGPU:    cfg.UseGPU,
	}, nil
}

// newSparseSession creates a dynamic session, optionally on the CUDA
// execution provider.
func newSparseSession(modelPath string, useGPU bool) (*ort.DynamicAdvancedSession, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()

	if useGPU {
		cudaOpts, cudaErr := ort.NewCUDAProviderOptions()
		if cudaErr == nil {
			defer cudaOpts.Destroy()
			if appendErr := opts.AppendExecutionProviderCUDA(cudaOpts); appendErr != nil {
				slog.Warn("cuda provider unavailable, using cpu",
					slog.String("error", appendErr.Error()))
			}
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}
	return session, nil
}

// Encode generates the sparse vector for a single text.
func (e *ONNXEncoder) Encode(ctx context.Context, text string) (Vector, error) {
	vectors, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EncodeBatch generates one vector per input text in fixed-size inference
// batches. On GPU out-of-memory the same batch is retried in full on a
// CPU session rather than failing the request.
func (e *ONNXEncoder) EncodeBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return []Vector{}, nil
	}

	vectors := make([]Vector, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.runBatch(texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// runBatch executes a single inference call for up to batchSize texts.
func (e *ONNXEncoder) runBatch(texts []string) ([]Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fuseerr.ModelUnavailableError(e.modelName, fmt.Errorf("encoder is closed"))
	}

	vectors, err := runSparseInference(e.session, texts, e.maxTokens, e.maxDims)
	if err == nil {
		return vectors, nil
	}

	if e.useGPU && isOOMError(err) {
		slog.Warn("sparse model OOM on GPU, retrying batch on cpu",
			slog.Int("batch", len(texts)),
			slog.String("error", err.Error()))
		if e.cpuSession == nil {
			cpu, cpuErr := newSparseSession(e.modelPath, false)
			if cpuErr != nil {
				return nil, fuseerr.ModelUnavailableError(e.modelName, cpuErr)
			}
			e.cpuSession = cpu
		}
		vectors, err = runSparseInference(e.cpuSession, texts, e.maxTokens, e.maxDims)
		if err == nil {
			return vectors, nil
		}
	}

	return nil, fuseerr.ModelUnavailableError(e.modelName, err)
}

// runSparseInference tokenizes texts, runs the model, and applies the
// SPLADE activation to the logits.
func runSparseInference(session *ort.DynamicAdvancedSession, texts []string, maxTokens, maxDims int) ([]Vector, error) {
	n := len(texts)

	inputIDs := make([]int64, n*maxTokens)
	attentionMask := make([]int64, n*maxTokens)
	for i, text := range texts {
		encodeBERTInput(text, maxTokens,
			inputIDs[i*maxTokens:(i+1)*maxTokens],
			attentionMask[i*maxTokens:(i+1)*maxTokens])
	}

	shape := ort.NewShape(int64(n), int64(maxTokens))
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
	if err := session.Run([]ort.ArbitraryTensor{idsTensor, maskTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	logitsTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	defer logitsTensor.Destroy()

	logits := logitsTensor.GetData()
	vocab := len(logits) / (n * maxTokens)
	if vocab == 0 {
		return nil, fmt.Errorf("unexpected logits shape: %d values for %d x %d", len(logits), n, maxTokens)
	}

	vectors := make([]Vector, n)
	for i := 0; i < n; i++ {
		vec := make(Vector)
		for pos := 0; pos < maxTokens; pos++ {
			if attentionMask[i*maxTokens+pos] == 0 {
				continue
			}
			row := logits[(i*maxTokens+pos)*vocab : (i*maxTokens+pos+1)*vocab]
			for term, logit := range row {
				if logit <= 0 {
					continue
				}
				// SPLADE activation: log(1 + relu(logit)), max-pooled
				// over the sequence.
				w := float32(math.Log1p(float64(logit)))
				if w > vec[uint32(term)] {
					vec[uint32(term)] = w
				}
			}
		}
		vectors[i] = vec.normalize().Prune(maxDims)
	}
	return vectors, nil
}

// encodeBERTInput fills padded BERT-style input slices for one text.
func encodeBERTInput(text string, maxTokens int, inputIDs, attentionMask []int64) {
	const (
		clsToken = 101
		sepToken = 102
	)

	inputIDs[0] = clsToken
	attentionMask[0] = 1

	pos := 1
	for _, tok := range Truncate(Tokenize(text), maxTokens-2) {
		inputIDs[pos] = int64(HashToken(tok))
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = sepToken
	attentionMask[pos] = 1
}

// isOOMError reports whether an inference error looks like memory
// exhaustion on the execution provider.
func isOOMError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "out of memory") ||
		strings.Contains(msg, "oom") ||
		strings.Contains(msg, "bad_alloc") ||
		strings.Contains(msg, "memory allocation")
}

// ModelName returns the model identifier.
func (e *ONNXEncoder) ModelName() string {
	return e.modelName
}

// Available checks if the encoder is ready.
func (e *ONNXEncoder) Available(_ context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && e.session != nil
}

// Close destroys the sessions.
func (e *ONNXEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.cpuSession != nil {
		_ = e.cpuSession.Destroy()
		e.cpuSession = nil
	}
	return err
}

// Ensure ONNXEncoder implements Encoder.
var _ Encoder = (*ONNXEncoder)(nil)
