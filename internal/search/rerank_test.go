package search

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayusctrojan/empire-search/internal/cache"
	"github.com/jayusctrojan/empire-search/internal/embed"
	"github.com/jayusctrojan/empire-search/internal/store"
)

// stubReranker scores results by unit ID, or fails.
type stubReranker struct {
	scores map[string]float64
	err    error
}

func (s *stubReranker) ScoreResults(_ context.Context, _ string, results []*FusedResult) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = s.scores[r.UnitID]
	}
	return out, nil
}

func fusedFixture(ids ...string) []*FusedResult {
	out := make([]*FusedResult, len(ids))
	for i, id := range ids {
		out[i] = &FusedResult{UnitID: id, Content: "text of " + id, FinalRank: i + 1}
	}
	return out
}

func TestRerank_ReordersAndFilters(t *testing.T) {
	scorer := &stubReranker{scores: map[string]float64{
		"u1": 0.55,
		"u2": 0.95,
		"u3": 0.20,
	}}

	out, err := rerank(context.Background(), scorer, "q", fusedFixture("u1", "u2", "u3"), DefaultRerankThreshold)
	require.NoError(t, err)

	require.Len(t, out, 2, "u3 scores below the threshold")
	assert.Equal(t, "u2", out[0].UnitID)
	assert.Equal(t, "u1", out[1].UnitID)
	assert.Equal(t, 1, out[0].FinalRank)
	assert.Equal(t, 2, out[1].FinalRank)
	assert.Equal(t, 0.95, out[0].RerankScore)
	assert.Equal(t, 0.55, out[1].RerankScore)
}

func TestRerank_TiesKeepFusedOrder(t *testing.T) {
	scorer := &stubReranker{scores: map[string]float64{"u1": 0.8, "u2": 0.8}}

	out, err := rerank(context.Background(), scorer, "q", fusedFixture("u1", "u2"), DefaultRerankThreshold)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "u1", out[0].UnitID)
	assert.Equal(t, "u2", out[1].UnitID)
}

func TestRerank_EmptyInput(t *testing.T) {
	out, err := rerank(context.Background(), &stubReranker{}, "q", nil, DefaultRerankThreshold)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEmbeddingReranker_PrefersMatchingContent(t *testing.T) {
	r := NewEmbeddingReranker(embed.NewHashingEmbedder())

	results := fusedFixture("a", "b")
	results[0].Content = "refund policy for unused items"
	results[1].Content = "configure the xylophone widget"

	scores, err := r.ScoreResults(context.Background(), "refund policy", results)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Greater(t, scores[0], scores[1])
	assert.InDelta(t, 1.0, cosine32([]float32{1, 0}, []float32{1, 0}), 1e-12)
}

// ----------------------------------------------------------------------------
// Engine integration
// ----------------------------------------------------------------------------

func rerankCandidates() []Candidate {
	return []Candidate{
		{UnitID: "u1", Method: MethodLexical, Rank: 1, RawScore: 2.0},
		{UnitID: "u2", Method: MethodLexical, Rank: 2, RawScore: 1.0},
	}
}

func TestSearch_RerankReordersResults(t *testing.T) {
	units := store.NewMemoryUnitStore()
	seedUnits(t, units, "u1", "u2")

	lexical := &stubRetriever{method: MethodLexical, candidates: rerankCandidates()}
	set := stubSet(emptyStub(MethodDense), lexical, emptyStub(MethodPattern), emptyStub(MethodFuzzy))

	scorer := &stubReranker{scores: map[string]float64{"u1": 0.55, "u2": 0.95}}
	e := newTestEngine(t, set, units, WithReranker(scorer))

	resp, err := e.Search(context.Background(), "refund policy", Options{RerankEnabled: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	assert.True(t, resp.Reranked)
	assert.Equal(t, "u2", resp.Results[0].UnitID)
	assert.Equal(t, 1, resp.Results[0].FinalRank)
	assert.Equal(t, 0.95, resp.Results[0].RerankScore)
}

func TestSearch_RerankDropsWeakResults(t *testing.T) {
	units := store.NewMemoryUnitStore()
	seedUnits(t, units, "u1", "u2")

	lexical := &stubRetriever{method: MethodLexical, candidates: rerankCandidates()}
	set := stubSet(emptyStub(MethodDense), lexical, emptyStub(MethodPattern), emptyStub(MethodFuzzy))

	scorer := &stubReranker{scores: map[string]float64{"u1": 0.9, "u2": 0.1}}
	e := newTestEngine(t, set, units, WithReranker(scorer))

	resp, err := e.Search(context.Background(), "refund policy", Options{RerankEnabled: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "u1", resp.Results[0].UnitID)
}

func TestSearch_RerankFailureKeepsFusedOrder(t *testing.T) {
	units := store.NewMemoryUnitStore()
	seedUnits(t, units, "u1", "u2")

	lexical := &stubRetriever{method: MethodLexical, candidates: rerankCandidates()}
	set := stubSet(emptyStub(MethodDense), lexical, emptyStub(MethodPattern), emptyStub(MethodFuzzy))

	scorer := &stubReranker{err: stderrors.New("scorer down")}
	e := newTestEngine(t, set, units, WithReranker(scorer))

	resp, err := e.Search(context.Background(), "refund policy", Options{RerankEnabled: true})
	require.NoError(t, err)

	assert.False(t, resp.Reranked)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "u1", resp.Results[0].UnitID)
	assert.Zero(t, resp.Results[0].RerankScore)
}

func TestSearch_RerankDisabledByDefault(t *testing.T) {
	units := store.NewMemoryUnitStore()
	seedUnits(t, units, "u1", "u2")

	lexical := &stubRetriever{method: MethodLexical, candidates: rerankCandidates()}
	set := stubSet(emptyStub(MethodDense), lexical, emptyStub(MethodPattern), emptyStub(MethodFuzzy))

	scorer := &stubReranker{scores: map[string]float64{"u1": 0.1, "u2": 0.9}}
	e := newTestEngine(t, set, units, WithReranker(scorer))

	resp, err := e.Search(context.Background(), "refund policy", Options{})
	require.NoError(t, err)
	assert.False(t, resp.Reranked)
	assert.Equal(t, "u1", resp.Results[0].UnitID)
}

func TestSearch_CacheStoresFusedRanking(t *testing.T) {
	units := store.NewMemoryUnitStore()
	seedUnits(t, units, "u1", "u2")

	lexical := &stubRetriever{method: MethodLexical, candidates: rerankCandidates()}
	set := stubSet(emptyStub(MethodDense), lexical, emptyStub(MethodPattern), emptyStub(MethodFuzzy))

	scorer := &stubReranker{scores: map[string]float64{"u1": 0.55, "u2": 0.95}}
	e := newTestEngine(t, set, units,
		WithReranker(scorer),
		WithSemanticCache(cache.New(cache.DefaultConfig())))

	first, err := e.Search(context.Background(), "refund policy", Options{RerankEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, "u2", first.Results[0].UnitID)

	// The cached entry keeps the fused ranking, so a plain repeat query
	// is served in fused order.
	second, err := e.Search(context.Background(), "refund policy", Options{})
	require.NoError(t, err)
	assert.True(t, second.UsedCache)
	require.Len(t, second.Results, 2)
	assert.Equal(t, "u1", second.Results[0].UnitID)
	assert.Equal(t, 1, second.Results[0].FinalRank)
}
