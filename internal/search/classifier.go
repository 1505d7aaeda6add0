package search

import (
	"regexp"
	"strings"
)

// Classification is pure and deterministic: no I/O, no state. Rules are
// checked in priority order and the first match wins.
var (
	// Quoted exact phrases anywhere in the query: "..." or '...'
	quotedPhrasePattern = regexp.MustCompile(`"[^"]+"|'[^']+'`)

	// Explicit exact-match cue words
	exactCuePattern = regexp.MustCompile(`(?i)\b(exact|exactly|verbatim)\b`)

	// Conceptual-similarity cue words
	semanticCuePattern = regexp.MustCompile(`(?i)\b(similar|related|about|like|meaning)\b`)

	// Standalone 4-digit tokens (years, codes)
	numericTokenPattern = regexp.MustCompile(`\b\d{4}\b`)
)

// DefaultFuzzyThreshold is the trigram acceptance threshold when no
// rule lowers it.
const DefaultFuzzyThreshold = 0.3

// shortQueryFuzzyThreshold loosens fuzzy acceptance for terse queries,
// where a single typo would otherwise kill recall.
const shortQueryFuzzyThreshold = 0.2

// Classifier derives a weight profile from surface features of the
// query text.
type Classifier struct{}

// NewClassifier creates a classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the query's profile. Rules are evaluated in priority
// order:
//
//  1. quoted phrase or exact-match cue  -> exact_match
//  2. fewer than 3 words               -> short (fuzzy threshold 0.2)
//  3. similarity cue word              -> semantic
//  4. more than 8 words               -> long
//  5. 4-digit token                    -> numeric
//  6. otherwise                        -> balanced
func (c *Classifier) Classify(queryText string) QueryProfile {
	trimmed := strings.TrimSpace(queryText)

	profile := QueryProfile{
		WordCount:       len(strings.Fields(trimmed)),
		HasQuotedPhrase: quotedPhrasePattern.MatchString(trimmed),
		HasNumericToken: numericTokenPattern.MatchString(trimmed),
		FuzzyThreshold:  DefaultFuzzyThreshold,
	}

	switch {
	case profile.HasQuotedPhrase || exactCuePattern.MatchString(trimmed):
		profile.Intent = IntentExactMatch
		profile.Weights = Weights{Dense: 0.2, Lexical: 0.2, Pattern: 0.4, Fuzzy: 0.2}

	case profile.WordCount < 3:
		profile.Intent = IntentShort
		profile.Weights = Weights{Dense: 0.3, Lexical: 0.2, Pattern: 0.2, Fuzzy: 0.3}
		profile.FuzzyThreshold = shortQueryFuzzyThreshold

	case semanticCuePattern.MatchString(trimmed):
		profile.Intent = IntentSemantic
		profile.Weights = Weights{Dense: 0.6, Lexical: 0.2, Pattern: 0.1, Fuzzy: 0.1}

	case profile.WordCount > 8:
		profile.Intent = IntentLong
		profile.Weights = Weights{Dense: 0.3, Lexical: 0.4, Pattern: 0.15, Fuzzy: 0.15}

	case profile.HasNumericToken:
		profile.Intent = IntentNumeric
		profile.Weights = Weights{Dense: 0.25, Lexical: 0.25, Pattern: 0.35, Fuzzy: 0.15}

	default:
		profile.Intent = IntentBalanced
		profile.Weights = Weights{Dense: 0.4, Lexical: 0.3, Pattern: 0.15, Fuzzy: 0.15}
	}

	return profile
}

// QuotedPhrase returns the first quoted phrase without its quotes, or
// the empty string. The pattern retriever prefers it as the literal
// needle.
func QuotedPhrase(queryText string) string {
	m := quotedPhrasePattern.FindString(queryText)
	if len(m) < 2 {
		return ""
	}
	return m[1 : len(m)-1]
}
