//go:build cgo
// +build cgo

package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	fuseerr "github.com/rankfuse/rankfuse/internal/errors"
	"github.com/rankfuse/rankfuse/internal/sparse"
)

// rerankMaxTokens bounds the joint query+document sequence length.
const rerankMaxTokens = 512

// ONNXReranker scores query-document pairs with an ONNX cross-encoder.
// Requires CGO and the onnxruntime shared library.
//
// The model takes BERT-style pair input (query tokens, separator,
// document tokens) and emits one relevance logit per pair; scores are
// squashed through a sigmoid into [0,1].
type ONNXReranker struct {
	modelPath string
	modelName string
	batchSize int

	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	cpuSession *ort.DynamicAdvancedSession // lazy, created on GPU OOM
	useGPU     bool
	closed     bool
}

// ONNXRerankerConfig configures the cross-encoder reranker.
type ONNXRerankerConfig struct {
	ModelPath string
	ModelName string
	BatchSize int
	UseGPU    bool
}

// NewONNXReranker creates an ONNX cross-encoder reranker.
// InitializeEnvironment is called if not already done.
func NewONNXReranker(cfg ONNXRerankerConfig) (*ONNXReranker, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "cross-encoder-onnx"
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fuseerr.ModelUnavailableError(cfg.ModelName,
				fmt.Errorf("initialize ONNX runtime: %w", err))
		}
	}

	session, err := newRerankSession(cfg.ModelPath, cfg.UseGPU)
	if err != nil {
		return nil, fuseerr.ModelUnavailableError(cfg.ModelName, err)
	}

	return &ONNXReranker{
		modelPath: cfg.ModelPath,
		modelName: cfg.ModelName,
		batchSize: cfg.BatchSize,
		session:   session,
		useGPU:    cfg.UseGPU,
	}, nil
}

// newRerankSession creates a dynamic session, optionally on the CUDA
// execution provider.
func newRerankSession(modelPath string, useGPU bool) (*ort.DynamicAdvancedSession, error) {
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

// Rerank scores all candidates against the query and returns the topK
// by relevance descending, ties broken by ID ascending.
func (r *ONNXReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]RerankedHit, error) {
	if len(candidates) == 0 {
		return []RerankedHit{}, nil
	}

	hits := make([]RerankedHit, 0, len(candidates))
	for start := 0; start < len(candidates); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + r.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		scores, err := r.scoreBatch(query, candidates[start:end])
		if err != nil {
			return nil, err
		}
		for i, score := range scores {
			hits = append(hits, RerankedHit{ID: candidates[start+i].ID, Relevance: score})
		}
	}

	sortByRelevance(hits)
	if topK > 0 && topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// scoreBatch executes a single inference call for up to batchSize pairs.
// On GPU out-of-memory the same batch is retried in full on a CPU
// session rather than failing the request.
func (r *ONNXReranker) scoreBatch(query string, candidates []Candidate) ([]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fuseerr.ModelUnavailableError(r.modelName, fmt.Errorf("reranker is closed"))
	}

	scores, err := runPairInference(r.session, query, candidates)
	if err == nil {
		return scores, nil
	}

	if r.useGPU && isRerankOOM(err) {
		slog.Warn("rerank model OOM on GPU, retrying batch on cpu",
			slog.Int("batch", len(candidates)),
			slog.String("error", err.Error()))
		if r.cpuSession == nil {
			cpu, cpuErr := newRerankSession(r.modelPath, false)
			if cpuErr != nil {
				return nil, fuseerr.ModelUnavailableError(r.modelName, cpuErr)
			}
			r.cpuSession = cpu
		}
		scores, err = runPairInference(r.cpuSession, query, candidates)
		if err == nil {
			return scores, nil
		}
	}

	return nil, fuseerr.ModelUnavailableError(r.modelName, err)
}

// runPairInference tokenizes (query, document) pairs, runs the model,
// and sigmoids the per-pair logits.
func runPairInference(session *ort.DynamicAdvancedSession, query string, candidates []Candidate) ([]float64, error) {
	n := len(candidates)

	inputIDs := make([]int64, n*rerankMaxTokens)
	attentionMask := make([]int64, n*rerankMaxTokens)
	for i, c := range candidates {
		encodePairInput(query, c.Text,
			inputIDs[i*rerankMaxTokens:(i+1)*rerankMaxTokens],
			attentionMask[i*rerankMaxTokens:(i+1)*rerankMaxTokens])
	}

	shape := ort.NewShape(int64(n), int64(rerankMaxTokens))
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
	if len(logits) < n {
		return nil, fmt.Errorf("unexpected logits shape: %d values for %d pairs", len(logits), n)
	}

	// Some cross-encoder exports emit (n,1), others (n,2) with the
	// relevant-class logit second.
	stride := len(logits) / n
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		logit := logits[i*stride+stride-1]
		scores[i] = 1.0 / (1.0 + math.Exp(-float64(logit)))
	}
	return scores, nil
}

// encodePairInput fills padded BERT-style pair input for one
// (query, document) pair: [CLS] query [SEP] document [SEP].
func encodePairInput(query, document string, inputIDs, attentionMask []int64) {
	const (
		clsToken = 101
		sepToken = 102
	)

	maxTokens := len(inputIDs)
	queryTokens := sparse.Truncate(sparse.Tokenize(query), 64)

	// Reserve CLS plus two SEPs.
	docBudget := maxTokens - len(queryTokens) - 3
	docTokens := sparse.Truncate(sparse.Tokenize(document), docBudget)

	inputIDs[0] = clsToken
	attentionMask[0] = 1

	pos := 1
	for _, tok := range queryTokens {
		inputIDs[pos] = int64(sparse.HashToken(tok))
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = sepToken
	attentionMask[pos] = 1
	pos++

	for _, tok := range docTokens {
		inputIDs[pos] = int64(sparse.HashToken(tok))
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = sepToken
	attentionMask[pos] = 1
}

// isRerankOOM reports whether an inference error looks like memory
// exhaustion on the execution provider.
func isRerankOOM(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "out of memory") ||
		strings.Contains(msg, "oom") ||
		strings.Contains(msg, "bad_alloc") ||
		strings.Contains(msg, "memory allocation")
}

// Available checks if the reranker is ready.
func (r *ONNXReranker) Available(_ context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed && r.session != nil
}

// Close destroys the sessions.
func (r *ONNXReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.session != nil {
		err = r.session.Destroy()
		r.session = nil
	}
	if r.cpuSession != nil {
		_ = r.cpuSession.Destroy()
		r.cpuSession = nil
	}
	return err
}

// Ensure ONNXReranker implements Reranker.
var _ Reranker = (*ONNXReranker)(nil)
