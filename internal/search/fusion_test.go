package search

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

func resultSet(method Method, ids ...string) MethodResultSet {
	hits := make([]RankedHit, len(ids))
	for i, id := range ids {
		hits[i] = RankedHit{ID: id, Rank: uint32(i), Score: 1.0 / float64(i+1)}
	}
	return MethodResultSet{Method: method, Hits: hits}
}

func fusedOrder(hits []FusedHit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

func TestFuse_FormulaExact(t *testing.T) {
	f := NewFuser()
	weights := Weights{Lexical: 0.5, Dense: 0.3, Sparse: 0.2}

	sets := []MethodResultSet{
		resultSet(MethodLexical, "a", "b"),
		resultSet(MethodDense, "b", "a"),
		resultSet(MethodSparse, "c"),
	}

	results := f.Fuse(sets, weights)
	require.Len(t, results, 3)

	byID := make(map[string]FusedHit)
	for _, r := range results {
		byID[r.ID] = r
	}

	// a: lexical rank 0, dense rank 1.
	wantA := 0.5/61.0 + 0.3/62.0
	// b: lexical rank 1, dense rank 0.
	wantB := 0.5/62.0 + 0.3/61.0
	// c: sparse rank 0 only; absence from the others contributes nothing.
	wantC := 0.2 / 61.0

	assert.InDelta(t, wantA, byID["a"].Score, 1e-12)
	assert.InDelta(t, wantB, byID["b"].Score, 1e-12)
	assert.InDelta(t, wantC, byID["c"].Score, 1e-12)
}

func TestFuse_AbsenceIsNotPenalized(t *testing.T) {
	f := NewFuser()

	// d appears only in one list: its score must be exactly that one
	// contribution, with no extra term for the lists it missed.
	sets := []MethodResultSet{
		resultSet(MethodLexical, "a", "b", "c"),
		resultSet(MethodDense, "d"),
	}

	results := f.Fuse(sets, EqualWeights())

	for _, r := range results {
		if r.ID == "d" {
			assert.InDelta(t, (1.0/3.0)/61.0, r.Score, 1e-12)
			assert.Equal(t, []Method{MethodDense}, r.Methods)
		}
	}
}

func TestFuse_OnlySeenDocumentsAppear(t *testing.T) {
	f := NewFuser()

	sets := []MethodResultSet{
		resultSet(MethodLexical, "a"),
		{Method: MethodDense, Hits: []RankedHit{}},
		{Method: MethodSparse, Hits: []RankedHit{}, Failed: true},
	}

	results := f.Fuse(sets, EqualWeights())
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestFuse_ScenarioThreeWayWithFailedSparse(t *testing.T) {
	f := NewFuser()

	sets := []MethodResultSet{
		resultSet(MethodLexical, "d1", "d2", "d3"),
		resultSet(MethodDense, "d2", "d1", "d4"),
		{Method: MethodSparse, Hits: []RankedHit{}, Failed: true},
	}

	results := f.Fuse(sets, EqualWeights())
	require.Len(t, results, 4)

	// d1 and d2 hold mirrored rank0+rank1 profiles, so their scores are
	// exactly equal and the ascending-ID tie-break puts d1 first. Both
	// dominate the singletons d3 and d4.
	order := fusedOrder(results)
	assert.Equal(t, "d1", order[0])
	assert.Equal(t, "d2", order[1])
	assert.InDelta(t, results[0].Score, results[1].Score, 1e-12)
	assert.ElementsMatch(t, []string{"d3", "d4"}, order[2:])
	assert.Greater(t, results[1].Score, results[2].Score)
}

func TestFuse_Deterministic(t *testing.T) {
	f := NewFuser()
	weights := EqualWeights()

	sets := []MethodResultSet{
		resultSet(MethodLexical, "z", "m", "a", "q"),
		resultSet(MethodDense, "m", "z", "b"),
		resultSet(MethodSparse, "q", "b", "a"),
	}

	first := f.Fuse(sets, weights)
	for range 10 {
		assert.Equal(t, first, f.Fuse(sets, weights))
	}
}

func TestFuse_TieBreakByID(t *testing.T) {
	f := NewFuser()

	// Same rank in disjoint lists with equal weights produces identical
	// scores; ordering must fall back to the ID.
	sets := []MethodResultSet{
		resultSet(MethodLexical, "zeta"),
		resultSet(MethodDense, "alpha"),
	}

	results := f.Fuse(sets, EqualWeights())
	require.Len(t, results, 2)
	assert.Equal(t, []string{"alpha", "zeta"}, fusedOrder(results))
}

func TestFuse_PartialFailureStillRanks(t *testing.T) {
	f := NewFuser()

	for _, failing := range Methods {
		sets := make([]MethodResultSet, 0, 3)
		for _, m := range Methods {
			if m == failing {
				sets = append(sets, MethodResultSet{Method: m, Hits: []RankedHit{}, Failed: true})
				continue
			}
			sets = append(sets, resultSet(m, "a", "b"))
		}

		results := f.Fuse(sets, EqualWeights())
		assert.NotEmpty(t, results, "failing method %s", failing)
	}
}

func TestFuse_Empty(t *testing.T) {
	f := NewFuser()
	results := f.Fuse(nil, EqualWeights())
	assert.Empty(t, results)
}

func TestNewFuserWithK(t *testing.T) {
	assert.Equal(t, 60, NewFuserWithK(0).K)
	assert.Equal(t, 60, NewFuserWithK(-5).K)
	assert.Equal(t, 10, NewFuserWithK(10).K)
}

func TestAdaptiveWeights_ShortQueryFavorsLexical(t *testing.T) {
	w := AdaptiveWeights(QueryFeatures{TokenCount: 1}, EqualWeights())

	assert.Greater(t, w.Lexical, 1.0/3.0)
	assert.InDelta(t, 1.0, w.Lexical+w.Dense+w.Sparse, 1e-6)
}

func TestAdaptiveWeights_LongQueryFavorsDense(t *testing.T) {
	w := AdaptiveWeights(QueryFeatures{TokenCount: 12}, EqualWeights())

	assert.Greater(t, w.Dense, w.Lexical)
	assert.Greater(t, w.Dense, w.Sparse)
}

func TestAdaptiveWeights_TechnicalFavorsSparse(t *testing.T) {
	w := AdaptiveWeights(QueryFeatures{TokenCount: 5, TechnicalScore: 0.8}, EqualWeights())

	assert.Greater(t, w.Sparse, w.Lexical)
	assert.Greater(t, w.Sparse, w.Dense)
}

func TestAdaptiveWeights_QuestionBoostsDense(t *testing.T) {
	w := AdaptiveWeights(QueryFeatures{TokenCount: 6, IsQuestion: true}, EqualWeights())

	assert.Greater(t, w.Dense, w.Lexical)
}

func TestAdaptiveWeights_ConditionsCompose(t *testing.T) {
	// Short and technical and a question: lexical ×1.5, sparse ×1.5,
	// dense ×0.9×1.3 before renormalization.
	f := QueryFeatures{TokenCount: 2, TechnicalScore: 1.0, IsQuestion: true}
	w := AdaptiveWeights(f, EqualWeights())

	sum := 1.5 + 1.5 + 0.9*1.3
	assert.InDelta(t, 1.5/sum, w.Lexical, 1e-9)
	assert.InDelta(t, 0.9*1.3/sum, w.Dense, 1e-9)
	assert.InDelta(t, 1.5/sum, w.Sparse, 1e-9)
}

func TestAdaptiveWeights_AlwaysNormalized(t *testing.T) {
	cases := []QueryFeatures{
		{},
		{TokenCount: 1},
		{TokenCount: 4},
		{TokenCount: 11},
		{TokenCount: 25, IsQuestion: true},
		{TokenCount: 3, TechnicalScore: 1.0},
		{TokenCount: 15, TechnicalScore: 0.6, IsQuestion: true},
	}

	for i, f := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			w := AdaptiveWeights(f, EqualWeights())
			assert.GreaterOrEqual(t, w.Lexical, 0.0)
			assert.GreaterOrEqual(t, w.Dense, 0.0)
			assert.GreaterOrEqual(t, w.Sparse, 0.0)
			assert.InDelta(t, 1.0, w.Lexical+w.Dense+w.Sparse, 1e-6)
		})
	}
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, EqualWeights().Validate())
	assert.NoError(t, Weights{Lexical: 1}.Validate())

	assert.Error(t, Weights{}.Validate())
	assert.Error(t, Weights{Lexical: -0.1, Dense: 0.6, Sparse: 0.5}.Validate())
	assert.Error(t, Weights{Lexical: math.NaN(), Dense: 0.5, Sparse: 0.5}.Validate())
	assert.Error(t, Weights{Lexical: math.Inf(1)}.Validate())
}

func TestWeights_Normalize(t *testing.T) {
	w := Weights{Lexical: 2, Dense: 1, Sparse: 1}.Normalize()
	assert.InDelta(t, 0.5, w.Lexical, 1e-9)
	assert.InDelta(t, 0.25, w.Dense, 1e-9)
	assert.InDelta(t, 0.25, w.Sparse, 1e-9)

	// All-zero input comes back unchanged rather than dividing by zero.
	assert.Equal(t, Weights{}, Weights{}.Normalize())
}
