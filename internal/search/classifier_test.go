package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name          string
		query         string
		wantIntent    Intent
		wantWeights   Weights
		wantThreshold float64
	}{
		{
			name:          "quoted phrase wins over everything",
			query:         `"exact policy number 12345"`,
			wantIntent:    IntentExactMatch,
			wantWeights:   Weights{Dense: 0.2, Lexical: 0.2, Pattern: 0.4, Fuzzy: 0.2},
			wantThreshold: 0.3,
		},
		{
			name:          "exact cue word without quotes",
			query:         "find the exact wording of the clause",
			wantIntent:    IntentExactMatch,
			wantWeights:   Weights{Dense: 0.2, Lexical: 0.2, Pattern: 0.4, Fuzzy: 0.2},
			wantThreshold: 0.3,
		},
		{
			name:          "two-word query is short with loosened fuzzy threshold",
			query:         "refund policy",
			wantIntent:    IntentShort,
			wantWeights:   Weights{Dense: 0.3, Lexical: 0.2, Pattern: 0.2, Fuzzy: 0.3},
			wantThreshold: 0.2,
		},
		{
			name:          "semantic cue",
			query:         "documents about data retention",
			wantIntent:    IntentSemantic,
			wantWeights:   Weights{Dense: 0.6, Lexical: 0.2, Pattern: 0.1, Fuzzy: 0.1},
			wantThreshold: 0.3,
		},
		{
			name:          "long query favors lexical",
			query:         "what is the maximum number of days allowed for a customer to request a refund",
			wantIntent:    IntentLong,
			wantWeights:   Weights{Dense: 0.3, Lexical: 0.4, Pattern: 0.15, Fuzzy: 0.15},
			wantThreshold: 0.3,
		},
		{
			name:          "four digit token favors pattern",
			query:         "invoice from 2023 for consulting",
			wantIntent:    IntentNumeric,
			wantWeights:   Weights{Dense: 0.25, Lexical: 0.25, Pattern: 0.35, Fuzzy: 0.15},
			wantThreshold: 0.3,
		},
		{
			name:          "balanced fallback",
			query:         "customer escalation handling steps",
			wantIntent:    IntentBalanced,
			wantWeights:   Weights{Dense: 0.4, Lexical: 0.3, Pattern: 0.15, Fuzzy: 0.15},
			wantThreshold: 0.3,
		},
		{
			name:          "short beats semantic cue by priority",
			query:         "similar cases",
			wantIntent:    IntentShort,
			wantWeights:   Weights{Dense: 0.3, Lexical: 0.2, Pattern: 0.2, Fuzzy: 0.3},
			wantThreshold: 0.2,
		},
		{
			name:          "semantic cue beats numeric token by priority",
			query:         "anything related to the 2021 audit",
			wantIntent:    IntentSemantic,
			wantWeights:   Weights{Dense: 0.6, Lexical: 0.2, Pattern: 0.1, Fuzzy: 0.1},
			wantThreshold: 0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := c.Classify(tt.query)

			assert.Equal(t, tt.wantIntent, profile.Intent)
			assert.Equal(t, tt.wantWeights, profile.Weights)
			assert.InDelta(t, tt.wantThreshold, profile.FuzzyThreshold, 1e-9)
			require.NoError(t, ValidateWeights(profile.Weights), "every profile must carry valid weights")
		})
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := NewClassifier()
	query := "invoice from 2023 for consulting"

	first := c.Classify(query)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify(query))
	}
}

func TestClassifier_ProfileFeatures(t *testing.T) {
	c := NewClassifier()

	p := c.Classify(`reports "quarterly revenue" from 2024 please summarize`)
	assert.True(t, p.HasQuotedPhrase)
	assert.True(t, p.HasNumericToken)
	assert.Equal(t, 7, p.WordCount)
}

func TestQuotedPhrase(t *testing.T) {
	assert.Equal(t, "exact policy number 12345", QuotedPhrase(`find "exact policy number 12345" here`))
	assert.Equal(t, "", QuotedPhrase("no quotes here"))
	assert.Equal(t, "single", QuotedPhrase("prefer 'single' quotes too"))
}
