package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jayusctrojan/empire-search/internal/embed"
)

const (
	// DefaultRerankThreshold drops reranked results scoring below it.
	DefaultRerankThreshold = 0.5

	// maxRerankInput caps how many fused results are rescored.
	maxRerankInput = 30
)

// Reranker rescores ranked results against the query text. Scores are
// returned in input order, one per result, on a 0..1 scale.
type Reranker interface {
	ScoreResults(ctx context.Context, queryText string, results []*FusedResult) ([]float64, error)
}

// EmbeddingReranker scores each result by cosine similarity between
// the query embedding and the result content embedding. Deterministic
// and fully local; a model-backed scorer can replace it behind the
// same interface.
type EmbeddingReranker struct {
	embedder embed.Embedder
}

// NewEmbeddingReranker creates a reranker over the given embedder.
func NewEmbeddingReranker(embedder embed.Embedder) *EmbeddingReranker {
	return &EmbeddingReranker{embedder: embedder}
}

func (r *EmbeddingReranker) ScoreResults(ctx context.Context, queryText string, results []*FusedResult) ([]float64, error) {
	queryVec, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query for rerank: %w", err)
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Content
	}
	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed results for rerank: %w", err)
	}

	scores := make([]float64, len(results))
	for i := range results {
		scores[i] = cosine32(queryVec, vecs[i])
	}
	return scores, nil
}

// rerank rescores the top fused results, drops those below the
// threshold, and re-sorts by rerank score. Ties keep the fused order.
// A scorer failure leaves the fused ranking untouched.
func rerank(ctx context.Context, scorer Reranker, queryText string, results []*FusedResult, threshold float64) ([]*FusedResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	in := results
	if len(in) > maxRerankInput {
		in = in[:maxRerankInput]
	}

	scores, err := scorer.ScoreResults(ctx, queryText, in)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(in) {
		return nil, fmt.Errorf("rerank returned %d scores for %d results", len(scores), len(in))
	}

	kept := make([]*FusedResult, 0, len(in))
	for i, res := range in {
		if scores[i] < threshold {
			continue
		}
		res.RerankScore = scores[i]
		kept = append(kept, res)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].RerankScore > kept[j].RerankScore
	})
	for i, res := range kept {
		res.FinalRank = i + 1
	}
	return kept, nil
}

func cosine32(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
