package search

import (
	"regexp"
	"strings"
)

// Compiled patterns for query feature extraction.
// Compiled at package init for performance.
var (
	// Error codes: ERR_*, E0001, ERRXXX, Exception types
	errorCodePattern = regexp.MustCompile(`(?i)^(ERR_\w+|E\d{4,5}|[A-Z]{2,}\d{3,}|\w+Exception)$`)

	// File paths: path/to/file.ext (common extensions)
	filePathPattern = regexp.MustCompile(`(?i)^[\w\-\./\\]+\.(go|ts|tsx|js|jsx|py|md|json|yaml|yml|toml|css|scss|html|rs|java|kt|c|cpp|h|hpp|rb|php|swift|sh|bash|zsh)$`)

	// Technical identifiers
	camelCasePattern      = regexp.MustCompile(`^[a-z]+([A-Z][a-z0-9]*)+$`)
	pascalCasePattern     = regexp.MustCompile(`^([A-Z][a-z0-9]*){2,}$`)
	snakeCasePattern      = regexp.MustCompile(`^[a-z]+(_[a-z0-9]+)+$`)
	screamingSnakePattern = regexp.MustCompile(`^[A-Z]+(_[A-Z0-9]+)+$`)

	// Mathematical or operator-heavy tokens: ==, ->, :=, <<, %s, 0x1F
	symbolPattern = regexp.MustCompile(`^(0x[0-9a-fA-F]+|[=!<>:+\-*/%&|^~]{2,}|%[a-zA-Z])$`)

	// Interrogative lead tokens
	questionLeadPattern = regexp.MustCompile(`(?i)^(who|what|when|where|why|how|which|can|does|is|are|should)\b`)

	// Token splitter: whitespace and sentence punctuation, keeping
	// identifier-internal characters intact.
	tokenSplitPattern = regexp.MustCompile(`[\s,;!?()\[\]{}"']+`)
)

// Analyze extracts the features consumed by adaptive weighting. Pure
// function, no I/O, sub-millisecond for any realistic query length.
func Analyze(query string) QueryFeatures {
	query = strings.TrimSpace(query)
	if query == "" {
		return QueryFeatures{}
	}

	tokens := splitQueryTokens(query)

	technical := 0
	for _, tok := range tokens {
		if isTechnicalToken(tok) {
			technical++
		}
	}

	var score float64
	if len(tokens) > 0 {
		score = float64(technical) / float64(len(tokens))
	}
	if score > 1 {
		score = 1
	}

	return QueryFeatures{
		TokenCount:     len(tokens),
		IsQuestion:     isQuestion(query),
		TechnicalScore: score,
	}
}

// splitQueryTokens splits on whitespace and sentence punctuation while
// preserving identifier-internal characters such as "_" and ".".
func splitQueryTokens(query string) []string {
	parts := tokenSplitPattern.Split(query, -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, ".")
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// isQuestion checks for an interrogative lead token or a trailing
// question mark.
func isQuestion(query string) bool {
	if strings.HasSuffix(query, "?") {
		return true
	}
	return questionLeadPattern.MatchString(query)
}

// isTechnicalToken reports whether a single token looks code-like.
func isTechnicalToken(tok string) bool {
	if errorCodePattern.MatchString(tok) {
		return true
	}
	if filePathPattern.MatchString(tok) {
		return true
	}
	if symbolPattern.MatchString(tok) {
		return true
	}
	return camelCasePattern.MatchString(tok) ||
		pascalCasePattern.MatchString(tok) ||
		snakeCasePattern.MatchString(tok) ||
		screamingSnakePattern.MatchString(tok)
}
