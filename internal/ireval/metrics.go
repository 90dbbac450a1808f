// Package ireval computes standard information-retrieval quality
// metrics over ranked result lists with graded relevance judgments.
package ireval

import (
	"math"
	"sort"
)

// Judgments maps document IDs to graded relevance. Grade 0 means not
// relevant; higher is better. Documents absent from the map are treated
// as grade 0.
type Judgments map[string]float64

// Relevant returns the number of documents with a positive grade.
func (j Judgments) Relevant() int {
	count := 0
	for _, grade := range j {
		if grade > 0 {
			count++
		}
	}
	return count
}

// NDCG computes normalized discounted cumulative gain at cutoff k.
// Gain uses the exponential form (2^grade - 1). Returns 0 when the
// ranking is empty, k is non-positive, or no positive judgments exist
// (IDCG of zero).
func NDCG(ranking []string, judgments Judgments, k int) float64 {
	if len(ranking) == 0 || k <= 0 || len(judgments) == 0 {
		return 0
	}

	dcg := dcgAt(ranking, judgments, k)
	idcg := idealDCG(judgments, k)
	if idcg == 0 {
		return 0
	}

	return dcg / idcg
}

// dcgAt computes DCG over the first k ranked documents. A document's
// gain counts once; repeated occurrences of an ID occupy their rank
// slot but contribute nothing, keeping DCG bounded by the ideal DCG.
func dcgAt(ranking []string, judgments Judgments, k int) float64 {
	var dcg float64
	seen := make(map[string]struct{}, k)
	for i, id := range ranking {
		if i >= k {
			break
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		grade := judgments[id]
		if grade <= 0 {
			continue
		}
		gain := math.Pow(2, grade) - 1
		dcg += gain / math.Log2(float64(i)+2)
	}
	return dcg
}

// idealDCG computes DCG of the best possible ordering of the judged
// documents.
func idealDCG(judgments Judgments, k int) float64 {
	grades := make([]float64, 0, len(judgments))
	for _, grade := range judgments {
		if grade > 0 {
			grades = append(grades, grade)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(grades)))

	var idcg float64
	for i, grade := range grades {
		if i >= k {
			break
		}
		idcg += (math.Pow(2, grade) - 1) / math.Log2(float64(i)+2)
	}
	return idcg
}

// RecallAtK computes the fraction of relevant documents that appear in
// the top k. Returns 0 when there are no relevant documents.
func RecallAtK(ranking []string, judgments Judgments, k int) float64 {
	relevant := judgments.Relevant()
	if relevant == 0 || k <= 0 {
		return 0
	}

	found := relevantInTopK(ranking, judgments, k)
	return float64(found) / float64(relevant)
}

// PrecisionAtK computes the fraction of the top k that is relevant.
// The divisor is k even when fewer than k results were returned.
func PrecisionAtK(ranking []string, judgments Judgments, k int) float64 {
	if k <= 0 {
		return 0
	}

	found := relevantInTopK(ranking, judgments, k)
	return float64(found) / float64(k)
}

// relevantInTopK counts distinct positively judged documents in the
// first k ranks. Duplicate IDs count once so recall never exceeds 1.
func relevantInTopK(ranking []string, judgments Judgments, k int) int {
	found := 0
	seen := make(map[string]struct{}, k)
	for i, id := range ranking {
		if i >= k {
			break
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if judgments[id] > 0 {
			found++
		}
	}
	return found
}

// MRR computes the reciprocal rank of the first relevant document,
// 1/(rank+1) with 0-based ranks. Returns 0 when no relevant document
// appears in the ranking.
func MRR(ranking []string, judgments Judgments) float64 {
	for i, id := range ranking {
		if judgments[id] > 0 {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// Metrics bundles the scores computed for one query.
type Metrics struct {
	NDCG      float64 `json:"ndcg"`
	Recall    float64 `json:"recall"`
	Precision float64 `json:"precision"`
	MRR       float64 `json:"mrr"`
	K         int     `json:"k"`
}

// Evaluate computes all metrics for one ranking at cutoff k.
func Evaluate(ranking []string, judgments Judgments, k int) Metrics {
	return Metrics{
		NDCG:      NDCG(ranking, judgments, k),
		Recall:    RecallAtK(ranking, judgments, k),
		Precision: PrecisionAtK(ranking, judgments, k),
		MRR:       MRR(ranking, judgments),
		K:         k,
	}
}
