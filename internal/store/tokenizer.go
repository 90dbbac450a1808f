package store

import (
	"regexp"
	"strings"
	"unicode"
)

// wordRegex matches alphanumeric sequences (underscores kept for the
// initial split so identifiers survive intact).
var wordRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// TokenizeText splits text for the keyword index. Identifiers in
// camelCase, PascalCase, and snake_case are broken apart so queries like
// "user id" match "getUserById". All tokens are lowercased and tokens
// shorter than two characters are dropped.
func TokenizeText(text string) []string {
	var tokens []string

	for _, word := range wordRegex.FindAllString(text, -1) {
		for _, t := range splitIdentifier(word) {
			lower := strings.ToLower(t)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// splitIdentifier splits snake_case, then camelCase within each part.
func splitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamel(part)...)
			}
		}
		return result
	}

	return splitCamel(token)
}

// splitCamel splits camelCase and PascalCase identifiers.
// "parseHTTPRequest" becomes ["parse", "HTTP", "Request"].
func splitCamel(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			// Split when the case boundary separates words, keeping
			// acronym runs like HTTP together.
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
