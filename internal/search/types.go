// Package search implements three-way hybrid retrieval: lexical, dense and
// sparse candidate lists are produced in parallel, merged with Reciprocal
// Rank Fusion, and optionally refined by a cross-encoder reranker.
package search

import (
	"math"
	"time"

	ferrors "github.com/rankfuse/rankfuse/internal/errors"
)

// Method identifies one of the three retrieval strategies. The set is
// closed: the orchestrator holds exactly one retriever per method.
type Method string

const (
	MethodLexical Method = "lexical"
	MethodDense   Method = "dense"
	MethodSparse  Method = "sparse"
)

// Methods lists all retrieval methods in fusion order.
var Methods = []Method{MethodLexical, MethodDense, MethodSparse}

// RankedHit is one candidate from a single retrieval method.
type RankedHit struct {
	ID    string  // Document identifier
	Rank  uint32  // 0-based position in the method's ranked list
	Score float64 // Native score, not comparable across methods
}

// MethodResultSet is the outcome of one retrieval method for one query.
// A failed method carries an empty Hits slice and the cause in Err; the
// failure never propagates past the retriever.
type MethodResultSet struct {
	Method  Method
	Hits    []RankedHit
	Latency time.Duration
	Failed  bool
	Err     error
}

// QueryFeatures captures the query characteristics consumed by adaptive
// weighting. Computed once per query, query-scoped, never shared.
type QueryFeatures struct {
	TokenCount     int
	IsQuestion     bool
	TechnicalScore float64 // Density of code-like tokens in [0,1]
}

// Weights holds per-method fusion weights.
type Weights struct {
	Lexical float64 `json:"lexical"`
	Dense   float64 `json:"dense"`
	Sparse  float64 `json:"sparse"`
}

// EqualWeights returns the neutral 1/3 baseline.
func EqualWeights() Weights {
	return Weights{Lexical: 1.0 / 3.0, Dense: 1.0 / 3.0, Sparse: 1.0 / 3.0}
}

// For returns the weight assigned to the given method.
func (w Weights) For(m Method) float64 {
	switch m {
	case MethodLexical:
		return w.Lexical
	case MethodDense:
		return w.Dense
	case MethodSparse:
		return w.Sparse
	}
	return 0
}

// Validate rejects weights that are negative, non-finite, or do not sum
// to a positive value.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Lexical, w.Dense, w.Sparse} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ferrors.InvalidWeightsError("weights must be finite")
		}
		if v < 0 {
			return ferrors.InvalidWeightsError("weights must be non-negative")
		}
	}
	if w.Lexical+w.Dense+w.Sparse <= 0 {
		return ferrors.InvalidWeightsError("weights must sum to a positive value")
	}
	return nil
}

// Normalize scales the weights to sum to 1.0. Validate first; Normalize
// on an all-zero set returns the input unchanged.
func (w Weights) Normalize() Weights {
	sum := w.Lexical + w.Dense + w.Sparse
	if sum <= 0 {
		return w
	}
	return Weights{
		Lexical: w.Lexical / sum,
		Dense:   w.Dense / sum,
		Sparse:  w.Sparse / sum,
	}
}

// FusedHit is one document after RRF fusion across the method result sets.
type FusedHit struct {
	ID      string   `json:"id"`
	Score   float64  `json:"score"`   // Raw fusion score, sum of weighted reciprocal ranks
	Methods []Method `json:"methods"` // Methods that contributed, in fusion order
}

// RerankedHit is one document after cross-encoder reranking.
type RerankedHit struct {
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance"`
}

// Candidate pairs a document identifier with the text representation
// submitted to the reranker.
type Candidate struct {
	ID   string
	Text string
}

// MethodContributions counts how many fused results each method produced.
// A failed or skipped method reports zero, letting callers distinguish
// degradation from genuinely sparse matches.
type MethodContributions struct {
	Lexical int `json:"lexical"`
	Dense   int `json:"dense"`
	Sparse  int `json:"sparse"`
}

// SearchOptions controls a single query.
type SearchOptions struct {
	Limit             int
	Offset            int
	EnableReranking   bool
	AdaptiveWeighting bool
	// Weights overrides the configured defaults when non-nil. Ignored
	// when AdaptiveWeighting is set.
	Weights *Weights
}

// SearchResponse is the outcome of Orchestrator.Search.
type SearchResponse struct {
	Results       []FusedHit          `json:"results"`
	Total         int                 `json:"total"`
	LatencyMS     float64             `json:"latency_ms"`
	Contributions MethodContributions `json:"method_contributions"`
	WeightsUsed   Weights             `json:"weights_used"`
	Reranked      bool                `json:"reranked"`
}

// MethodComparison is one variant's result list in a CompareMethods run.
type MethodComparison struct {
	Variant   string   `json:"variant"`
	Results   []string `json:"results"`
	LatencyMS float64  `json:"latency_ms"`
}

// CompareResponse is the outcome of Orchestrator.CompareMethods.
type CompareResponse struct {
	Query    string             `json:"query"`
	Variants []MethodComparison `json:"variants"`
}
