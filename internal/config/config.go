// Package config loads and validates rankfuse configuration.
//
// Resolution order (later wins):
//  1. Built-in defaults
//  2. Config file (rankfuse.yaml)
//  3. Environment variables (RANKFUSE_*)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete rankfuse configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Sparse  SparseConfig  `yaml:"sparse" json:"sparse"`
	Dense   DenseConfig   `yaml:"dense" json:"dense"`
	Rerank  RerankConfig  `yaml:"rerank" json:"rerank"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SearchConfig configures fusion and retrieval budgets.
type SearchConfig struct {
	// LexicalWeight, DenseWeight, SparseWeight are the default fusion
	// weights. They are normalized to sum to 1.0 at load time.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	DenseWeight   float64 `yaml:"dense_weight" json:"dense_weight"`
	SparseWeight  float64 `yaml:"sparse_weight" json:"sparse_weight"`

	// RRFConstant is the RRF smoothing parameter k.
	// Default: 60 (industry standard used by Azure AI Search, OpenSearch).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// RetrieveLimit is the per-method candidate count (default: 100).
	RetrieveLimit int `yaml:"retrieve_limit" json:"retrieve_limit"`

	// MaxResults is the maximum results a caller may request (default: 100).
	MaxResults int `yaml:"max_results" json:"max_results"`

	// RetrievalTimeout is the combined budget for the parallel retrieval
	// fan-out (default: 150ms).
	RetrievalTimeout time.Duration `yaml:"retrieval_timeout" json:"retrieval_timeout"`

	// QueryBudget is the end-to-end latency target excluding reranking.
	// Exceeding it logs a warning, it never aborts a query (default: 200ms).
	QueryBudget time.Duration `yaml:"query_budget" json:"query_budget"`

	// AdaptiveWeighting enables per-query weight adaptation by default.
	AdaptiveWeighting bool `yaml:"adaptive_weighting" json:"adaptive_weighting"`
}

// SparseConfig configures the sparse term-vector generator.
type SparseConfig struct {
	// ModelPath is the ONNX model file. Empty selects the hashing encoder.
	ModelPath string `yaml:"model_path" json:"model_path"`

	// MaxTokens is the input truncation budget (default: 512).
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// MaxDimensions caps the non-zero entries per vector (default: 200).
	MaxDimensions int `yaml:"max_dimensions" json:"max_dimensions"`

	// BatchSize caps documents per inference call (default: 32).
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// CacheSize is the LRU size for query vectors (default: 1000).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// DenseConfig configures the dense query embedder.
type DenseConfig struct {
	// ModelPath is the ONNX model file. Empty selects the static encoder.
	ModelPath string `yaml:"model_path" json:"model_path"`

	// Dimensions is the embedding dimension (default: 384).
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// CacheSize is the LRU size for query embeddings (default: 1000).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// RerankConfig configures the optional cross-encoder stage.
type RerankConfig struct {
	// Enabled turns reranking on by default for search requests.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// ModelPath is the cross-encoder ONNX model file.
	ModelPath string `yaml:"model_path" json:"model_path"`

	// PoolSize is how many fused candidates are submitted (default: 100).
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// Timeout is the budget for the batched inference call (default: 1s).
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// CacheSize bounds the rerank result cache (default: 512 entries).
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// CacheTTL is the time-bounded eviction for cached rerank results.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// BodyPrefixBytes bounds the document text sent per pair (default: 2048).
	BodyPrefixBytes int `yaml:"body_prefix_bytes" json:"body_prefix_bytes"`
}

// StoreConfig configures index and document-store locations.
type StoreConfig struct {
	// DataDir is the root directory for all persisted state.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// KeywordBackend selects the lexical backend: "bleve" (default) or
	// "fts5" (SQLite FTS5, concurrent multi-process access).
	KeywordBackend string `yaml:"keyword_backend" json:"keyword_backend"`

	// SparseBatchSize is the commit batch for bulk sparse generation.
	SparseBatchSize int `yaml:"sparse_batch_size" json:"sparse_batch_size"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			LexicalWeight:     1.0 / 3.0,
			DenseWeight:       1.0 / 3.0,
			SparseWeight:      1.0 / 3.0,
			RRFConstant:       60,
			RetrieveLimit:     100,
			MaxResults:        100,
			RetrievalTimeout:  150 * time.Millisecond,
			QueryBudget:       200 * time.Millisecond,
			AdaptiveWeighting: true,
		},
		Sparse: SparseConfig{
			MaxTokens:     512,
			MaxDimensions: 200,
			BatchSize:     32,
			CacheSize:     1000,
		},
		Dense: DenseConfig{
			Dimensions: 384,
			CacheSize:  1000,
		},
		Rerank: RerankConfig{
			Enabled:         false,
			PoolSize:        100,
			Timeout:         time.Second,
			CacheSize:       512,
			CacheTTL:        5 * time.Minute,
			BodyPrefixBytes: 2048,
		},
		Store: StoreConfig{
			DataDir:         defaultDataDir(),
			KeywordBackend:  "bleve",
			SparseBatchSize: 64,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7700,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rankfuse"
	}
	return home + "/.rankfuse"
}

// Load reads configuration from path (if it exists), applies environment
// overrides, and validates the result. An empty path uses defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			// Missing file is fine, defaults apply.
		} else {
			var parsed Config
			if err := yaml.Unmarshal(data, &parsed); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg.mergeWith(&parsed)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.DenseWeight != 0 {
		c.Search.DenseWeight = other.Search.DenseWeight
	}
	if other.Search.SparseWeight != 0 {
		c.Search.SparseWeight = other.Search.SparseWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.RetrieveLimit != 0 {
		c.Search.RetrieveLimit = other.Search.RetrieveLimit
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.RetrievalTimeout != 0 {
		c.Search.RetrievalTimeout = other.Search.RetrievalTimeout
	}
	if other.Search.QueryBudget != 0 {
		c.Search.QueryBudget = other.Search.QueryBudget
	}
	if other.Search.AdaptiveWeighting {
		c.Search.AdaptiveWeighting = true
	}

	if other.Sparse.ModelPath != "" {
		c.Sparse.ModelPath = other.Sparse.ModelPath
	}
	if other.Sparse.MaxTokens != 0 {
		c.Sparse.MaxTokens = other.Sparse.MaxTokens
	}
	if other.Sparse.MaxDimensions != 0 {
		c.Sparse.MaxDimensions = other.Sparse.MaxDimensions
	}
	if other.Sparse.BatchSize != 0 {
		c.Sparse.BatchSize = other.Sparse.BatchSize
	}
	if other.Sparse.CacheSize != 0 {
		c.Sparse.CacheSize = other.Sparse.CacheSize
	}

	if other.Dense.ModelPath != "" {
		c.Dense.ModelPath = other.Dense.ModelPath
	}
	if other.Dense.Dimensions != 0 {
		c.Dense.Dimensions = other.Dense.Dimensions
	}
	if other.Dense.CacheSize != 0 {
		c.Dense.CacheSize = other.Dense.CacheSize
	}

	if other.Rerank.Enabled {
		c.Rerank.Enabled = true
	}
	if other.Rerank.ModelPath != "" {
		c.Rerank.ModelPath = other.Rerank.ModelPath
	}
	if other.Rerank.PoolSize != 0 {
		c.Rerank.PoolSize = other.Rerank.PoolSize
	}
	if other.Rerank.Timeout != 0 {
		c.Rerank.Timeout = other.Rerank.Timeout
	}
	if other.Rerank.CacheSize != 0 {
		c.Rerank.CacheSize = other.Rerank.CacheSize
	}
	if other.Rerank.CacheTTL != 0 {
		c.Rerank.CacheTTL = other.Rerank.CacheTTL
	}
	if other.Rerank.BodyPrefixBytes != 0 {
		c.Rerank.BodyPrefixBytes = other.Rerank.BodyPrefixBytes
	}

	if other.Store.DataDir != "" {
		c.Store.DataDir = other.Store.DataDir
	}
	if other.Store.KeywordBackend != "" {
		c.Store.KeywordBackend = other.Store.KeywordBackend
	}
	if other.Store.SparseBatchSize != 0 {
		c.Store.SparseBatchSize = other.Store.SparseBatchSize
	}

	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies RANKFUSE_* environment variables.
// Env vars take highest priority.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RANKFUSE_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := os.Getenv("RANKFUSE_KEYWORD_BACKEND"); v != "" {
		c.Store.KeywordBackend = v
	}
	if v := os.Getenv("RANKFUSE_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("RANKFUSE_LEXICAL_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("RANKFUSE_DENSE_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 {
			c.Search.DenseWeight = w
		}
	}
	if v := os.Getenv("RANKFUSE_SPARSE_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 {
			c.Search.SparseWeight = w
		}
	}
	if v := os.Getenv("RANKFUSE_SPARSE_MODEL"); v != "" {
		c.Sparse.ModelPath = v
	}
	if v := os.Getenv("RANKFUSE_DENSE_MODEL"); v != "" {
		c.Dense.ModelPath = v
	}
	if v := os.Getenv("RANKFUSE_RERANK_MODEL"); v != "" {
		c.Rerank.ModelPath = v
	}
	if v := os.Getenv("RANKFUSE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 65536 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("RANKFUSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	sum := c.Search.LexicalWeight + c.Search.DenseWeight + c.Search.SparseWeight
	if sum <= 0 {
		return fmt.Errorf("search weights must sum to a positive value, got %.4f", sum)
	}
	if c.Search.LexicalWeight < 0 || c.Search.DenseWeight < 0 || c.Search.SparseWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.RetrieveLimit <= 0 {
		return fmt.Errorf("retrieve_limit must be positive, got %d", c.Search.RetrieveLimit)
	}
	switch c.Store.KeywordBackend {
	case "bleve", "fts5":
	default:
		return fmt.Errorf("keyword_backend must be bleve or fts5, got %q", c.Store.KeywordBackend)
	}
	if c.Sparse.MaxDimensions <= 0 {
		return fmt.Errorf("sparse max_dimensions must be positive, got %d", c.Sparse.MaxDimensions)
	}
	if c.Dense.Dimensions <= 0 {
		return fmt.Errorf("dense dimensions must be positive, got %d", c.Dense.Dimensions)
	}
	if c.Rerank.PoolSize <= 0 {
		return fmt.Errorf("rerank pool_size must be positive, got %d", c.Rerank.PoolSize)
	}
	return nil
}

// NormalizedWeights returns the configured default weights scaled to sum 1.0.
func (c *Config) NormalizedWeights() (lexical, dense, sparse float64) {
	sum := c.Search.LexicalWeight + c.Search.DenseWeight + c.Search.SparseWeight
	if sum <= 0 {
		return 1.0 / 3.0, 1.0 / 3.0, 1.0 / 3.0
	}
	return c.Search.LexicalWeight / sum, c.Search.DenseWeight / sum, c.Search.SparseWeight / sum
}
