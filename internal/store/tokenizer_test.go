package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "plain words",
			input: "Hello World",
			want:  []string{"hello", "world"},
		},
		{
			name:  "camelCase split",
			input: "getUserById",
			want:  []string{"get", "user", "by", "id"},
		},
		{
			name:  "snake_case split",
			input: "max_retry_count",
			want:  []string{"max", "retry", "count"},
		},
		{
			name:  "acronyms kept together",
			input: "parseHTTPRequest",
			want:  []string{"parse", "http", "request"},
		},
		{
			name:  "short tokens dropped",
			input: "a b cd",
			want:  []string{"cd"},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenizeText(tt.input))
		})
	}
}

func TestFilterStopWords(t *testing.T) {
	stopWords := BuildStopWordMap([]string{"the", "is"})

	got := FilterStopWords([]string{"the", "engine", "is", "fast"}, stopWords)
	assert.Equal(t, []string{"engine", "fast"}, got)
}

func TestSplitCamel(t *testing.T) {
	assert.Equal(t, []string{"HTTP", "Server"}, splitCamel("HTTPServer"))
	assert.Equal(t, []string{"camel", "Case"}, splitCamel("camelCase"))
	assert.Equal(t, []string{}, splitCamel(""))
}
