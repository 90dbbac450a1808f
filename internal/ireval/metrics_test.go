package ireval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNDCGPerfectRanking(t *testing.T) {
	judgments := Judgments{"a": 3, "b": 2, "c": 1}

	assert.InDelta(t, 1.0, NDCG([]string{"a", "b", "c"}, judgments, 3), 1e-9)
}

func TestNDCGWorstOrdering(t *testing.T) {
	judgments := Judgments{"a": 3, "b": 2, "c": 1}
	ranking := []string{"c", "b", "a"}

	got := NDCG(ranking, judgments, 3)
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 1.0)

	// Hand-computed: DCG = 1/1 + 3/log2(3) + 7/2, IDCG = 7/1 + 3/log2(3) + 1/2.
	dcg := 1.0 + 3.0/math.Log2(3) + 7.0/2.0
	idcg := 7.0 + 3.0/math.Log2(3) + 1.0/2.0
	assert.InDelta(t, dcg/idcg, got, 1e-9)
}

func TestNDCGDegenerateInputs(t *testing.T) {
	judgments := Judgments{"a": 1}

	assert.Zero(t, NDCG(nil, judgments, 10))
	assert.Zero(t, NDCG([]string{"a"}, judgments, 0))
	assert.Zero(t, NDCG([]string{"a"}, Judgments{}, 10))
	// All grades zero means IDCG is zero.
	assert.Zero(t, NDCG([]string{"a"}, Judgments{"a": 0}, 10))
}

func TestNDCGCutoff(t *testing.T) {
	judgments := Judgments{"a": 1, "b": 1}

	// "b" beyond the cutoff contributes nothing.
	withCutoff := NDCG([]string{"x", "a", "y", "b"}, judgments, 2)
	full := NDCG([]string{"x", "a", "y", "b"}, judgments, 4)
	assert.Less(t, withCutoff, full)
}

func TestRecallAtK(t *testing.T) {
	judgments := Judgments{"a": 1, "b": 2, "c": 1}

	assert.InDelta(t, 2.0/3.0, RecallAtK([]string{"a", "x", "b"}, judgments, 3), 1e-9)
	assert.InDelta(t, 1.0, RecallAtK([]string{"a", "b", "c"}, judgments, 3), 1e-9)
	assert.Zero(t, RecallAtK([]string{"x", "y"}, judgments, 2))
	assert.Zero(t, RecallAtK([]string{"a"}, Judgments{}, 5))
}

func TestPrecisionAtK(t *testing.T) {
	judgments := Judgments{"a": 1, "b": 1}

	assert.InDelta(t, 0.5, PrecisionAtK([]string{"a", "x", "b", "y"}, judgments, 4), 1e-9)
	// Divisor is k even when fewer results were returned.
	assert.InDelta(t, 0.2, PrecisionAtK([]string{"a"}, judgments, 5), 1e-9)
	assert.Zero(t, PrecisionAtK([]string{"a"}, judgments, 0))
}

func TestMRR(t *testing.T) {
	judgments := Judgments{"b": 1}

	assert.InDelta(t, 1.0, MRR([]string{"b", "a"}, judgments), 1e-9)
	assert.InDelta(t, 0.5, MRR([]string{"a", "b"}, judgments), 1e-9)
	assert.InDelta(t, 1.0/3.0, MRR([]string{"x", "y", "b"}, judgments), 1e-9)
	assert.Zero(t, MRR([]string{"x", "y"}, judgments))
	assert.Zero(t, MRR(nil, judgments))
}

func TestDuplicateIDsCountOnce(t *testing.T) {
	judgments := Judgments{"a": 3}
	ranking := []string{"a", "a", "b"}

	// Repeated occurrences of an ID contribute no additional gain, so
	// the duplicate-heavy ranking stays within the unit bound.
	assert.InDelta(t, 1.0, NDCG(ranking, judgments, 3), 1e-9)
	assert.InDelta(t, 1.0, RecallAtK(ranking, judgments, 3), 1e-9)
	assert.InDelta(t, 1.0/3.0, PrecisionAtK(ranking, judgments, 3), 1e-9)
	assert.InDelta(t, 1.0, MRR(ranking, judgments), 1e-9)
}

func TestDuplicateIDsOccupyRankSlots(t *testing.T) {
	judgments := Judgments{"a": 1, "b": 1}

	// The duplicate at rank 1 pushes "b" to a deeper discount than a
	// clean ranking would give it.
	withDup := NDCG([]string{"a", "a", "b"}, judgments, 3)
	clean := NDCG([]string{"a", "b"}, judgments, 3)
	assert.Less(t, withDup, clean)
	assert.LessOrEqual(t, withDup, 1.0)
}

func TestAllMetricsInUnitRange(t *testing.T) {
	judgments := Judgments{"a": 3, "b": 1, "d": 2}
	rankings := [][]string{
		{"a", "b", "c", "d"},
		{"c", "c", "c"},
		{"d"},
		nil,
	}

	for _, ranking := range rankings {
		m := Evaluate(ranking, judgments, 3)
		for name, v := range map[string]float64{
			"ndcg": m.NDCG, "recall": m.Recall, "precision": m.Precision, "mrr": m.MRR,
		} {
			assert.GreaterOrEqual(t, v, 0.0, name)
			assert.LessOrEqual(t, v, 1.0, name)
		}
	}
}

func TestEvaluate(t *testing.T) {
	judgments := Judgments{"a": 2, "b": 1}

	m := Evaluate([]string{"a", "x", "b"}, judgments, 3)
	assert.Equal(t, 3, m.K)
	assert.InDelta(t, 1.0, m.MRR, 1e-9)
	assert.InDelta(t, 1.0, m.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, m.Precision, 1e-9)
	assert.Greater(t, m.NDCG, 0.0)
}
