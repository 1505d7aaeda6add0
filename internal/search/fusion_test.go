package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWeights() Weights {
	return Weights{Dense: 0.4, Lexical: 0.3, Pattern: 0.15, Fuzzy: 0.15}
}

func TestNewFuser_RejectsInvalidK(t *testing.T) {
	_, err := NewFuser(0)
	require.Error(t, err)

	_, err = NewFuser(-5)
	require.Error(t, err)

	f, err := NewFuser(1)
	require.NoError(t, err)
	assert.Equal(t, 1, f.K())
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"classifier profile", validWeights(), false},
		{"sum slightly off within tolerance", Weights{Dense: 0.4005, Lexical: 0.3, Pattern: 0.15, Fuzzy: 0.15}, false},
		{"sum too low", Weights{Dense: 0.3, Lexical: 0.3, Pattern: 0.15, Fuzzy: 0.15}, true},
		{"sum too high", Weights{Dense: 0.5, Lexical: 0.3, Pattern: 0.15, Fuzzy: 0.15}, true},
		{"all near zero", Weights{}, true},
		{"single method carries everything", Weights{Lexical: 1.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeights(tt.weights)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFuser_ExactRecomputation(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	weights := validWeights()
	candidates := []Candidate{
		{UnitID: "u1", Method: MethodDense, RawScore: 0.9, Rank: 1},
		{UnitID: "u2", Method: MethodDense, RawScore: 0.8, Rank: 2},
		{UnitID: "u1", Method: MethodLexical, RawScore: 5.1, Rank: 1},
		{UnitID: "u3", Method: MethodLexical, RawScore: 4.0, Rank: 2},
		{UnitID: "u2", Method: MethodFuzzy, RawScore: 0.5, Rank: 1},
	}

	results, err := f.Fuse(candidates, weights, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Every fused score must be reproducible from the per-method ranks
	// alone: absent methods contribute exactly zero.
	for _, r := range results {
		var want float64
		for _, m := range Methods() {
			if rank := r.MethodRanks[m.Index()]; rank > 0 {
				want += weights.ForMethod(m) / float64(f.K()+rank)
			}
		}
		assert.InDelta(t, want, r.FusedScore, 1e-9, "unit %s", r.UnitID)
	}
}

func TestFuser_MonotonicScoresAndRanks(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	candidates := []Candidate{
		{UnitID: "u1", Method: MethodDense, RawScore: 0.9, Rank: 1},
		{UnitID: "u2", Method: MethodDense, RawScore: 0.7, Rank: 2},
		{UnitID: "u3", Method: MethodDense, RawScore: 0.5, Rank: 3},
		{UnitID: "u2", Method: MethodLexical, RawScore: 3.0, Rank: 1},
		{UnitID: "u4", Method: MethodPattern, RawScore: 0.2, Rank: 1},
	}

	results, err := f.Fuse(candidates, validWeights(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].FusedScore, results[i].FusedScore)
		assert.Equal(t, i, results[i-1].FinalRank)
	}
	assert.Equal(t, len(results), results[len(results)-1].FinalRank)
}

func TestFuser_MultiMethodBeatsSingle(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	// u1 appears in two methods at rank 2; u2 in one method at rank 1.
	// With balanced-ish weights the two contributions of u1 win.
	candidates := []Candidate{
		{UnitID: "u2", Method: MethodDense, RawScore: 0.99, Rank: 1},
		{UnitID: "u1", Method: MethodDense, RawScore: 0.9, Rank: 2},
		{UnitID: "u1", Method: MethodLexical, RawScore: 4.2, Rank: 1},
	}

	results, err := f.Fuse(candidates, Weights{Dense: 0.5, Lexical: 0.5}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "u1", results[0].UnitID)
}

func TestFuser_TieBreaks(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	// Same weight, same rank in different methods: identical fused
	// scores and min ranks, so unit ID decides.
	candidates := []Candidate{
		{UnitID: "zed", Method: MethodDense, RawScore: 0.9, Rank: 1},
		{UnitID: "alpha", Method: MethodLexical, RawScore: 1.0, Rank: 1},
	}
	results, err := f.Fuse(candidates, Weights{Dense: 0.5, Lexical: 0.5}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].UnitID)
	assert.Equal(t, "zed", results[1].UnitID)

	// Equal fused scores with different min ranks: smaller min rank wins.
	candidates = []Candidate{
		{UnitID: "deep", Method: MethodDense, RawScore: 0.9, Rank: 2},
		{UnitID: "deep", Method: MethodLexical, RawScore: 2.0, Rank: 2},
		{UnitID: "shallow", Method: MethodPattern, RawScore: 0.4, Rank: 1},
	}
	// pattern weight chosen so shallow's single contribution equals
	// deep's two: w/(60+1) = 2 * 0.2/(60+2) => w = 0.4*61/62
	w := 0.4 * 61.0 / 62.0
	weights := Weights{Dense: 0.2, Lexical: 0.2, Pattern: w, Fuzzy: 1.0 - 0.4 - w}
	results, err = f.Fuse(candidates, weights, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, results[0].FusedScore, results[1].FusedScore, 1e-12)
	assert.Equal(t, "shallow", results[0].UnitID, "smaller min rank wins the tie")
}

func TestFuser_TruncatesToMatchCount(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	candidates := make([]Candidate, 0, 20)
	for i := 0; i < 20; i++ {
		candidates = append(candidates, Candidate{
			UnitID: string(rune('a' + i)), Method: MethodLexical, RawScore: float64(20 - i), Rank: i + 1,
		})
	}

	results, err := f.Fuse(candidates, Weights{Lexical: 1.0}, 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, 5, results[4].FinalRank)
}

func TestFuser_EmptyInput(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	results, err := f.Fuse(nil, validWeights(), 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFuser_RejectsInvalidCandidates(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	_, err = f.Fuse([]Candidate{{UnitID: "u1", Method: "bogus", Rank: 1}}, validWeights(), 10)
	require.Error(t, err)

	_, err = f.Fuse([]Candidate{{UnitID: "u1", Method: MethodDense, Rank: 0}}, validWeights(), 10)
	require.Error(t, err)
}

func TestFuser_InvalidWeightsRejected(t *testing.T) {
	f, err := NewFuser(60)
	require.NoError(t, err)

	_, err = f.Fuse([]Candidate{{UnitID: "u1", Method: MethodDense, Rank: 1}}, Weights{Dense: 2.0}, 10)
	require.Error(t, err)
}
