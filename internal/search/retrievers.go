package search

import (
	"context"
	"sort"
	"strings"

	"github.com/jayusctrojan/empire-search/internal/filter"
	"github.com/jayusctrojan/empire-search/internal/store"
)

// Retriever produces ranked candidates for one retrieval signal.
// Implementations return at most limit*2 candidates, with ranks
// contiguous from 1, and an empty list (never an error) when nothing
// matches.
type Retriever interface {
	Method() Method
	Retrieve(ctx context.Context, q Query, limit int) ([]Candidate, error)
}

// filterOversample is how much harder dense and fuzzy retrieval fetch
// when a post-hoc filter may discard hits.
const filterOversample = 4

// RetrieverSet aggregates the four signals. It is constructed once at
// startup and injected into the engine.
type RetrieverSet struct {
	Dense   Retriever
	Lexical Retriever
	Pattern Retriever
	Fuzzy   Retriever
}

// NewRetrieverSet wires the four retrievers over the shared stores.
func NewRetrieverSet(
	vectors *store.HNSWIndex,
	lexical *store.LexicalBleve,
	trigrams *store.TrigramIndex,
	units store.UnitStore,
) *RetrieverSet {
	return &RetrieverSet{
		Dense:   &DenseRetriever{vectors: vectors, units: units},
		Lexical: &LexicalRetriever{index: lexical},
		Pattern: &PatternRetriever{units: units},
		Fuzzy:   &FuzzyRetriever{index: trigrams, units: units},
	}
}

// All returns the retrievers in method array order.
func (s *RetrieverSet) All() []Retriever {
	return []Retriever{s.Dense, s.Lexical, s.Pattern, s.Fuzzy}
}

// ----------------------------------------------------------------------------
// Dense
// ----------------------------------------------------------------------------

// DenseRetriever finds nearest neighbors in the HNSW index. Filters are
// applied before limiting: under a filter it oversamples the graph and
// drops non-matching units, so the filter never eats into the caller's
// candidate budget.
type DenseRetriever struct {
	vectors *store.HNSWIndex
	units   store.UnitStore
}

func (r *DenseRetriever) Method() Method { return MethodDense }

func (r *DenseRetriever) Retrieve(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	if len(q.Embedding) == 0 {
		return []Candidate{}, nil
	}

	fetch := limit * 2
	if q.Filter != nil {
		fetch *= filterOversample
	}

	hits, err := r.vectors.Search(ctx, q.Embedding, fetch)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.UnitID
		scores[h.UnitID] = float64(h.Score)
	}

	if q.Filter != nil {
		ids, err = keepMatching(ctx, r.units, ids, q.Filter)
		if err != nil {
			return nil, err
		}
	}
	if len(ids) > limit*2 {
		ids = ids[:limit*2]
	}

	candidates := make([]Candidate, len(ids))
	for i, id := range ids {
		candidates[i] = Candidate{
			UnitID:   id,
			Method:   MethodDense,
			RawScore: scores[id],
			Rank:     i + 1,
		}
	}
	return candidates, nil
}

// ----------------------------------------------------------------------------
// Lexical
// ----------------------------------------------------------------------------

// LexicalRetriever scores units with BM25 in the Bleve index. The
// filter translates to a native query conjoined with the match, so it
// applies before the limit.
type LexicalRetriever struct {
	index *store.LexicalBleve
}

func (r *LexicalRetriever) Method() Method { return MethodLexical }

func (r *LexicalRetriever) Retrieve(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	hits, err := r.index.Search(ctx, q.Text, limit*2, q.Filter)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = Candidate{
			UnitID:   h.UnitID,
			Method:   MethodLexical,
			RawScore: h.Score,
			Rank:     i + 1,
		}
	}
	return candidates, nil
}

// ----------------------------------------------------------------------------
// Pattern
// ----------------------------------------------------------------------------

// PatternRetriever matches literal substrings against unit text via the
// unit store's parameterized scan. A quoted phrase in the query becomes
// the needle; otherwise the whole trimmed query is used. Filtering is
// post-hoc, absorbed by over-fetching.
type PatternRetriever struct {
	units store.UnitStore
}

func (r *PatternRetriever) Method() Method { return MethodPattern }

func (r *PatternRetriever) Retrieve(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	needle := QuotedPhrase(q.Text)
	if needle == "" {
		needle = strings.TrimSpace(q.Text)
	}
	if needle == "" {
		return []Candidate{}, nil
	}

	fetch := limit * 2
	if q.Filter != nil {
		fetch *= filterOversample
	}

	units, err := r.units.ScanSubstring(ctx, needle, fetch)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id    string
		score float64
	}
	hits := make([]scored, 0, len(units))
	for _, u := range units {
		if q.Filter != nil && !q.Filter.Matches(u.Attributes) {
			continue
		}
		// Shorter units score higher: the needle covers more of them.
		score := float64(len(needle)) / float64(len(u.Text))
		if score > 1 {
			score = 1
		}
		hits = append(hits, scored{id: u.UnitID, score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) > limit*2 {
		hits = hits[:limit*2]
	}

	candidates := make([]Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = Candidate{
			UnitID:   h.id,
			Method:   MethodPattern,
			RawScore: h.score,
			Rank:     i + 1,
		}
	}
	return candidates, nil
}

// ----------------------------------------------------------------------------
// Fuzzy
// ----------------------------------------------------------------------------

// FuzzyRetriever matches typo-tolerant queries via trigram Jaccard
// similarity. The acceptance threshold comes from the query profile.
// Filtering is post-hoc, absorbed by over-fetching.
type FuzzyRetriever struct {
	index *store.TrigramIndex
	units store.UnitStore
}

func (r *FuzzyRetriever) Method() Method { return MethodFuzzy }

func (r *FuzzyRetriever) Retrieve(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	threshold := q.FuzzyThreshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}

	fetch := limit * 2
	if q.Filter != nil {
		fetch *= filterOversample
	}

	hits, err := r.index.Search(ctx, q.Text, threshold, fetch)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.UnitID
		scores[h.UnitID] = h.Similarity
	}

	if q.Filter != nil {
		ids, err = keepMatching(ctx, r.units, ids, q.Filter)
		if err != nil {
			return nil, err
		}
	}
	if len(ids) > limit*2 {
		ids = ids[:limit*2]
	}

	candidates := make([]Candidate, len(ids))
	for i, id := range ids {
		candidates[i] = Candidate{
			UnitID:   id,
			Method:   MethodFuzzy,
			RawScore: scores[id],
			Rank:     i + 1,
		}
	}
	return candidates, nil
}

// keepMatching drops IDs whose unit attributes fail the filter,
// preserving input order.
func keepMatching(ctx context.Context, units store.UnitStore, ids []string, expr *filter.Expression) ([]string, error) {
	fetched, err := units.GetUnits(ctx, ids)
	if err != nil {
		return nil, err
	}
	kept := make([]string, 0, len(fetched))
	for _, u := range fetched {
		if expr.Matches(u.Attributes) {
			kept = append(kept, u.UnitID)
		}
	}
	return kept, nil
}
