package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyze_TokenCount(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"single token", "ls", 1},
		{"simple words", "config file parser", 3},
		{"punctuation separated", "foo, bar; baz!", 3},
		{"identifier preserved", "getUserById handler", 2},
		{"empty", "", 0},
		{"whitespace only", "   ", 0},
		{"question mark stripped", "what is rrf?", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Analyze(tt.query).TokenCount)
		})
	}
}

func TestAnalyze_IsQuestion(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"how does fusion work", true},
		{"What is a sparse vector", true},
		{"why is this slow", true},
		{"config parser broken?", true},
		{"config parser", false},
		{"search the index", false},
		{"howling wind", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, Analyze(tt.query).IsQuestion)
		})
	}
}

func TestAnalyze_TechnicalScore(t *testing.T) {
	// Pure natural language scores zero.
	assert.Zero(t, Analyze("find the best restaurants nearby").TechnicalScore)

	// Identifiers, error codes and file paths push the density up.
	f := Analyze("getUserById returns ERR_404_NOT_FOUND in handler.go")
	assert.Greater(t, f.TechnicalScore, 0.5)

	// Mixed queries land in between.
	m := Analyze("why does getUserById fail sometimes")
	assert.Greater(t, m.TechnicalScore, 0.0)
	assert.Less(t, m.TechnicalScore, 0.5)
}

func TestAnalyze_TechnicalScoreInRange(t *testing.T) {
	queries := []string{
		"",
		"one",
		"snake_case_id CONST_VALUE PascalCase",
		"a perfectly ordinary sentence about nothing in particular",
		"0x1F == foo_bar -> baz.go",
	}
	for _, q := range queries {
		f := Analyze(q)
		assert.GreaterOrEqual(t, f.TechnicalScore, 0.0, q)
		assert.LessOrEqual(t, f.TechnicalScore, 1.0, q)
	}
}

func TestAnalyze_ShortCommandQuery(t *testing.T) {
	f := Analyze("ls")
	assert.Equal(t, 1, f.TokenCount)
	assert.False(t, f.IsQuestion)

	// Short command plus adaptation must leave lexical above baseline.
	w := AdaptiveWeights(f, EqualWeights())
	assert.Greater(t, w.Lexical, 1.0/3.0)
}

func TestIsTechnicalToken(t *testing.T) {
	technical := []string{
		"getUserById", "ParseConfig", "snake_case_var", "MAX_RETRIES",
		"ERR_404_NOT_FOUND", "E1234", "NullPointerException",
		"handler.go", "src/main.rs", "0xFF", "==", "->",
	}
	for _, tok := range technical {
		assert.True(t, isTechnicalToken(tok), tok)
	}

	plain := []string{"hello", "Search", "the", "restaurants", "foo"}
	for _, tok := range plain {
		assert.False(t, isTechnicalToken(tok), tok)
	}
}
