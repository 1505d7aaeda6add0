// Package search implements the hybrid retrieval pipeline: four
// candidate retrievers fanned out in parallel, a rule-based query
// classifier that picks the weight profile, and weighted Reciprocal
// Rank Fusion as the merge barrier.
package search

import (
	"time"

	"github.com/jayusctrojan/empire-search/internal/filter"
)

// Method identifies one retrieval signal.
type Method string

const (
	MethodDense   Method = "dense"
	MethodLexical Method = "lexical"
	MethodPattern Method = "pattern"
	MethodFuzzy   Method = "fuzzy"
)

// NumMethods is the number of retrieval signals.
const NumMethods = 4

// Index returns the method's position in per-method arrays.
func (m Method) Index() int {
	switch m {
	case MethodDense:
		return 0
	case MethodLexical:
		return 1
	case MethodPattern:
		return 2
	case MethodFuzzy:
		return 3
	default:
		return -1
	}
}

// Methods lists all signals in array order.
func Methods() [NumMethods]Method {
	return [NumMethods]Method{MethodDense, MethodLexical, MethodPattern, MethodFuzzy}
}

// Candidate is one ranked hit from a single retriever. Rank is
// 1-indexed and contiguous within the retriever's list.
type Candidate struct {
	UnitID   string
	Method   Method
	RawScore float64
	Rank     int
}

// Query is the normalized input handed to each retriever. Embedding is
// nil when the embedder failed; the dense retriever then returns empty.
type Query struct {
	Text           string
	Embedding      []float32
	Filter         *filter.Expression
	FuzzyThreshold float64
}

// Weights is the per-method weight vector. A valid vector sums to 1
// within 1e-3 and has at least one weight above 1e-3.
type Weights struct {
	Dense   float64 `json:"dense" yaml:"dense"`
	Lexical float64 `json:"lexical" yaml:"lexical"`
	Pattern float64 `json:"pattern" yaml:"pattern"`
	Fuzzy   float64 `json:"fuzzy" yaml:"fuzzy"`
}

// ForMethod returns the weight of one method.
func (w Weights) ForMethod(m Method) float64 {
	switch m {
	case MethodDense:
		return w.Dense
	case MethodLexical:
		return w.Lexical
	case MethodPattern:
		return w.Pattern
	case MethodFuzzy:
		return w.Fuzzy
	default:
		return 0
	}
}

// Intent is the classified query category that selected the weights.
type Intent string

const (
	IntentExactMatch Intent = "exact_match"
	IntentShort      Intent = "short"
	IntentSemantic   Intent = "semantic"
	IntentLong       Intent = "long"
	IntentNumeric    Intent = "numeric"
	IntentBalanced   Intent = "balanced"
)

// QueryProfile is the classifier's verdict: weight vector plus the
// signals that produced it.
type QueryProfile struct {
	WordCount       int     `json:"word_count"`
	HasQuotedPhrase bool    `json:"has_quoted_phrase"`
	HasNumericToken bool    `json:"has_numeric_token"`
	Intent          Intent  `json:"intent"`
	Weights         Weights `json:"weights"`
	FuzzyThreshold  float64 `json:"fuzzy_threshold"`
}

// FusedResult is one unit after fusion. MethodScores and MethodRanks
// are indexed by Method.Index(); a zero rank means the method did not
// surface the unit.
type FusedResult struct {
	UnitID       string              `json:"unit_id"`
	Content      string              `json:"content"`
	Attributes   map[string]string   `json:"attributes,omitempty"`
	MethodScores [NumMethods]float64 `json:"method_scores"`
	MethodRanks  [NumMethods]int     `json:"method_ranks"`
	FusedScore   float64             `json:"fused_score"`
	RerankScore  float64             `json:"rerank_score,omitempty"`
	FinalRank    int                 `json:"final_rank"`
	MinRank      int                 `json:"min_rank"`
}

// Options tunes a single Search call. Zero values take defaults.
type Options struct {
	TopK            int
	Filter          *filter.Expression
	WeightOverride  *Weights
	ExpansionRadius int
	TokenBudget     int
	CacheEnabled    *bool
	ExpandResults   bool
	RerankEnabled   bool
}

// Response is the outcome of one Search call.
type Response struct {
	Results    []*FusedResult  `json:"results"`
	Expanded   []*ExpandedUnit `json:"expanded,omitempty"`
	UsedCache  bool            `json:"used_cache"`
	CacheTier  string          `json:"cache_tier,omitempty"`
	CacheNote  string          `json:"cache_note,omitempty"`
	Suggestion []*FusedResult  `json:"suggestion,omitempty"`
	Reranked   bool            `json:"reranked,omitempty"`
	Profile    QueryProfile    `json:"profile"`
	RequestID  string          `json:"request_id"`
}

// EngineConfig carries the engine's tunables.
type EngineConfig struct {
	RRFK             int
	DefaultTopK      int
	MaxTopK          int
	RetrieverTimeout time.Duration
	DefaultRadius    int
	DefaultBudget    int
	RerankThreshold  float64
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RRFK:             DefaultRRFK,
		DefaultTopK:      10,
		MaxTopK:          100,
		RetrieverTimeout: 800 * time.Millisecond,
		DefaultRadius:    2,
		DefaultBudget:    4000,
		RerankThreshold:  DefaultRerankThreshold,
	}
}
