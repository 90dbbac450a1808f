package sparse

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase word tokens, splitting on
// whitespace and punctuation. Dots and underscores inside identifiers
// are kept so technical tokens survive intact.
func Tokenize(text string) []string {
	var tokens []string
	var b strings.Builder

	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, strings.ToLower(b.String()))
			b.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '_' || r == '.' || r == '-':
			// Keep identifier-internal separators; a leading one is noise.
			if b.Len() > 0 {
				b.WriteRune(r)
			}
		default:
			flush()
		}
	}
	flush()

	// Trim trailing separators left by sentence punctuation ("name." at
	// end of sentence).
	for i, tok := range tokens {
		tokens[i] = strings.TrimRight(tok, "_.-")
	}

	out := tokens[:0]
	for _, tok := range tokens {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// Truncate returns at most maxTokens tokens.
func Truncate(tokens []string, maxTokens int) []string {
	if maxTokens <= 0 || len(tokens) <= maxTokens {
		return tokens
	}
	return tokens[:maxTokens]
}
