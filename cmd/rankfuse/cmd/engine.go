package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rankfuse/rankfuse/internal/config"
	"github.com/rankfuse/rankfuse/internal/embed"
	"github.com/rankfuse/rankfuse/internal/logging"
	"github.com/rankfuse/rankfuse/internal/search"
	"github.com/rankfuse/rankfuse/internal/sparse"
	"github.com/rankfuse/rankfuse/internal/store"
)

const denseIndexFile = "dense.hnsw"

// engine bundles the stores, encoders, and orchestrator a command
// needs, with a single Close for the lot.
type engine struct {
	cfg      *config.Config
	docs     store.DocumentStore
	keyword  store.KeywordIndex
	dense    store.DenseIndex
	sparseIx store.SparseIndex
	embedder embed.Embedder
	encoder  sparse.Encoder
	orch     *search.Orchestrator
}

// loadConfig resolves configuration from the --config flag and the
// persistent overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, err
	}
	if root.dataDir != "" {
		cfg.Store.DataDir = root.dataDir
	}
	if root.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging configures the process-wide slog default and returns a
// cleanup that flushes the log file.
func setupLogging(cfg *config.Config) (func(), error) {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		lc.FilePath = cfg.Logging.File
	}
	logger, cleanup, err := logging.Setup(lc)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// openEngine opens every store under cfg.Store.DataDir and assembles
// the query pipeline. The sparse index is rebuilt from the vectors
// committed in the document store, which is the source of truth.
func openEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	dataDir := cfg.Store.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	e := &engine{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	docs, err := store.NewSQLiteDocumentStore(filepath.Join(dataDir, "documents.db"))
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	e.docs = docs

	keyword, err := store.NewKeywordIndexWithBackend(
		filepath.Join(dataDir, "keyword"),
		store.DefaultKeywordConfig(),
		cfg.Store.KeywordBackend,
	)
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	e.keyword = keyword

	dense, err := store.NewHNSWDenseIndex(store.DefaultDenseConfig(cfg.Dense.Dimensions))
	if err != nil {
		return nil, fmt.Errorf("create dense index: %w", err)
	}
	densePath := filepath.Join(dataDir, denseIndexFile)
	if _, statErr := os.Stat(densePath); statErr == nil {
		if err := dense.Load(densePath); err != nil {
			return nil, fmt.Errorf("load dense index: %w", err)
		}
	}
	e.dense = dense

	sparseIx := store.NewInvertedSparseIndex()
	vectors, err := docs.LoadSparseVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sparse vectors: %w", err)
	}
	if len(vectors) > 0 {
		ids := make([]string, 0, len(vectors))
		vecs := make([]sparse.Vector, 0, len(vectors))
		for id, v := range vectors {
			ids = append(ids, id)
			vecs = append(vecs, v)
		}
		if err := sparseIx.Add(ctx, ids, vecs); err != nil {
			return nil, fmt.Errorf("build sparse index: %w", err)
		}
	}
	e.sparseIx = sparseIx

	embedder, err := embed.NewEmbedder(embed.Options{
		ModelPath:  cfg.Dense.ModelPath,
		Dimensions: cfg.Dense.Dimensions,
		CacheSize:  cfg.Dense.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	e.embedder = embedder

	encoder, err := newSparseEncoder(cfg)
	if err != nil {
		return nil, fmt.Errorf("create sparse encoder: %w", err)
	}
	e.encoder = encoder

	retrievers := []search.Retriever{
		search.NewLexicalRetriever(keyword),
		search.NewDenseRetriever(embedder, dense),
		search.NewSparseRetriever(encoder, sparseIx),
	}

	lex, den, spr := cfg.NormalizedWeights()
	orchCfg := search.OrchestratorConfig{
		BaseWeights:      search.Weights{Lexical: lex, Dense: den, Sparse: spr},
		RRFConstant:      cfg.Search.RRFConstant,
		RetrieveLimit:    cfg.Search.RetrieveLimit,
		MaxResults:       cfg.Search.MaxResults,
		RetrievalTimeout: cfg.Search.RetrievalTimeout,
		RerankTimeout:    cfg.Rerank.Timeout,
		QueryBudget:      cfg.Search.QueryBudget,
		RerankPoolSize:   cfg.Rerank.PoolSize,
		BodyPrefixBytes:  cfg.Rerank.BodyPrefixBytes,
	}

	var opts []search.OrchestratorOption
	if reranker := newReranker(cfg); reranker != nil {
		opts = append(opts, search.WithReranker(reranker))
	}

	e.orch = search.NewOrchestrator(retrievers, docs, orchCfg, opts...)
	ok = true
	return e, nil
}

// newSparseEncoder builds the sparse encoder. A configured ONNX model
// that fails to load falls back to the hashing encoder with a warning,
// matching the dense embedder factory.
func newSparseEncoder(cfg *config.Config) (sparse.Encoder, error) {
	var inner sparse.Encoder
	if cfg.Sparse.ModelPath != "" {
		onnx, err := sparse.NewONNXEncoder(sparse.ONNXEncoderConfig{
			ModelPath: cfg.Sparse.ModelPath,
			MaxTokens: cfg.Sparse.MaxTokens,
			MaxDims:   cfg.Sparse.MaxDimensions,
			BatchSize: cfg.Sparse.BatchSize,
		})
		if err != nil {
			slog.Warn("sparse ONNX model unavailable, falling back to hashing encoder",
				slog.String("model_path", cfg.Sparse.ModelPath),
				slog.String("error", err.Error()))
		} else {
			inner = onnx
		}
	}
	if inner == nil {
		inner = sparse.NewHashingEncoder(cfg.Sparse.MaxTokens, cfg.Sparse.MaxDimensions)
	}
	return sparse.NewCachedEncoder(inner, cfg.Sparse.CacheSize)
}

// newReranker builds the optional cross-encoder stage. Returns nil when
// no model is configured or the model cannot be loaded.
func newReranker(cfg *config.Config) search.Reranker {
	if cfg.Rerank.ModelPath == "" {
		return nil
	}
	onnx, err := search.NewONNXReranker(search.ONNXRerankerConfig{
		ModelPath: cfg.Rerank.ModelPath,
	})
	if err != nil {
		slog.Warn("rerank model unavailable, reranking disabled",
			slog.String("model_path", cfg.Rerank.ModelPath),
			slog.String("error", err.Error()))
		return nil
	}
	return search.NewCachedReranker(onnx, cfg.Rerank.CacheSize, cfg.Rerank.CacheTTL)
}

// Close releases every open store. Safe on a partially opened engine.
func (e *engine) Close() {
	if e.orch != nil {
		_ = e.orch.Close()
	}
	if e.encoder != nil {
		_ = e.encoder.Close()
	}
	if e.embedder != nil {
		_ = e.embedder.Close()
	}
	if e.sparseIx != nil {
		_ = e.sparseIx.Close()
	}
	if e.dense != nil {
		_ = e.dense.Close()
	}
	if e.keyword != nil {
		_ = e.keyword.Close()
	}
	if e.docs != nil {
		_ = e.docs.Close()
	}
}
