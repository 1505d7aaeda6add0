package search

import (
	"fmt"
	"math"
	"sort"

	"github.com/jayusctrojan/empire-search/internal/errors"
)

// DefaultRRFK is the standard RRF smoothing constant, empirically
// validated across domains (Azure AI Search, OpenSearch use the same).
const DefaultRRFK = 60

// weightEpsilon bounds the allowed drift of the weight sum from 1.0,
// and the floor below which a weight counts as zero.
const weightEpsilon = 1e-3

// Fuser merges per-method candidate lists with weighted Reciprocal
// Rank Fusion:
//
//	fused(u) = Σ over methods m where u appears: w_m / (k + rank_m(u))
//
// A method that did not surface the unit contributes nothing. Scores
// are not normalized, so callers can recompute them exactly from the
// per-method ranks.
type Fuser struct {
	k int
}

// NewFuser creates a fuser with the given smoothing constant.
func NewFuser(k int) (*Fuser, error) {
	if k < 1 {
		return nil, errors.ConfigurationError(
			fmt.Sprintf("rrf constant must be >= 1, got %d", k), nil)
	}
	return &Fuser{k: k}, nil
}

// K returns the smoothing constant.
func (f *Fuser) K() int {
	return f.k
}

// ValidateWeights rejects weight vectors that don't sum to 1 within
// 1e-3 or have no meaningful weight at all.
func ValidateWeights(w Weights) error {
	sum := w.Dense + w.Lexical + w.Pattern + w.Fuzzy
	if math.Abs(sum-1.0) > weightEpsilon {
		return errors.WeightsError(
			fmt.Sprintf("weights must sum to 1.0 (±%g), got %g", weightEpsilon, sum))
	}
	if w.Dense <= weightEpsilon && w.Lexical <= weightEpsilon &&
		w.Pattern <= weightEpsilon && w.Fuzzy <= weightEpsilon {
		return errors.WeightsError("at least one weight must exceed 1e-3")
	}
	return nil
}

// Fuse merges candidates from all methods, deduplicated by unit ID,
// and returns at most matchCount results best first.
//
// Ordering: FusedScore desc, then smallest min rank across methods,
// then lexicographic unit ID. FinalRank is assigned 1..n after sorting.
func (f *Fuser) Fuse(candidates []Candidate, weights Weights, matchCount int) ([]*FusedResult, error) {
	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return []*FusedResult{}, nil
	}

	byUnit := make(map[string]*FusedResult, len(candidates))
	for _, c := range candidates {
		idx := c.Method.Index()
		if idx < 0 {
			return nil, errors.New(errors.ErrCodeFusionFailed,
				fmt.Sprintf("unknown retrieval method %q", c.Method), nil)
		}
		if c.Rank < 1 {
			return nil, errors.New(errors.ErrCodeFusionFailed,
				fmt.Sprintf("candidate %s has invalid rank %d for %s", c.UnitID, c.Rank, c.Method), nil)
		}

		r, ok := byUnit[c.UnitID]
		if !ok {
			r = &FusedResult{UnitID: c.UnitID, MinRank: c.Rank}
			byUnit[c.UnitID] = r
		}
		r.MethodScores[idx] = c.RawScore
		r.MethodRanks[idx] = c.Rank
		r.FusedScore += weights.ForMethod(c.Method) / float64(f.k+c.Rank)
		if c.Rank < r.MinRank {
			r.MinRank = c.Rank
		}
	}

	results := make([]*FusedResult, 0, len(byUnit))
	for _, r := range byUnit {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.MinRank != b.MinRank {
			return a.MinRank < b.MinRank
		}
		return a.UnitID < b.UnitID
	})

	if matchCount > 0 && len(results) > matchCount {
		results = results[:matchCount]
	}
	for i, r := range results {
		r.FinalRank = i + 1
	}
	return results, nil
}
