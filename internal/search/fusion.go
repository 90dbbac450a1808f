package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains (used by Azure AI Search, OpenSearch, etc.).
const DefaultRRFConstant = 60

// TechnicalScoreThreshold is the density above which a query is treated
// as technical for weight adaptation.
const TechnicalScoreThreshold = 0.5

// Fuser merges per-method ranked lists with Reciprocal Rank Fusion.
//
// Algorithm: score(d) = Σ weight_i / (k + rank_i(d) + 1)
//
// Where:
//   - k = smoothing constant (default: 60)
//   - rank_i = 0-based position in ranked list i
//   - weight_i = fusion weight for method i
//
// A method in which d does not appear contributes nothing. Ranks, not
// native scores, drive fusion: BM25 scores and cosine similarities are
// not on commensurable scales, but ranks always are.
type Fuser struct {
	K int // RRF smoothing constant (default: 60)
}

// NewFuser creates a fuser with the default k=60.
func NewFuser() *Fuser {
	return &Fuser{K: DefaultRRFConstant}
}

// NewFuserWithK creates a fuser with a custom k value.
// If k <= 0, defaults to 60.
func NewFuserWithK(k int) *Fuser {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &Fuser{K: k}
}

// Fuse merges the method result sets into one ranked list. Empty or
// failed sets simply contribute nothing; only documents present in at
// least one set appear in the output.
//
// Results are sorted by score descending, ties broken by ID ascending
// so the ordering is reproducible.
func (f *Fuser) Fuse(sets []MethodResultSet, weights Weights) []FusedHit {
	scores := make(map[string]*FusedHit)

	for _, set := range sets {
		w := weights.For(set.Method)
		if w == 0 || len(set.Hits) == 0 {
			continue
		}
		for _, hit := range set.Hits {
			fh, ok := scores[hit.ID]
			if !ok {
				fh = &FusedHit{ID: hit.ID}
				scores[hit.ID] = fh
			}
			fh.Score += w / float64(f.K+int(hit.Rank)+1)
			fh.Methods = append(fh.Methods, set.Method)
		}
	}

	results := make([]FusedHit, 0, len(scores))
	for _, fh := range scores {
		results = append(results, *fh)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	return results
}

// AdaptiveWeights derives per-query fusion weights from the query
// features. Starting from the base weights, adjustments compose
// multiplicatively before a final renormalization to sum 1.0:
//
//   - short queries (≤3 tokens) lean on exact keyword matching
//   - long queries (>10 tokens) lean on semantic similarity
//   - technical queries lean on learned sparse terms over dense vectors
//   - questions lean on semantic similarity
func AdaptiveWeights(f QueryFeatures, base Weights) Weights {
	w := base

	if f.TokenCount <= 3 {
		w.Lexical *= 1.5
	}
	if f.TokenCount > 10 {
		w.Dense *= 1.5
	}
	if f.TechnicalScore >= TechnicalScoreThreshold {
		w.Sparse *= 1.5
		w.Dense *= 0.9
	}
	if f.IsQuestion {
		w.Dense *= 1.3
	}

	return w.Normalize()
}
