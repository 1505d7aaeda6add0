package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayusctrojan/empire-search/internal/filter"
)

func TestParseFilterSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantOp  string
		wantErr bool
	}{
		{"equality", "year=2024", string(filter.OpEq), false},
		{"inequality", "status!=closed", string(filter.OpNe), false},
		{"greater", "amount>100", string(filter.OpGt), false},
		{"greater or equal", "amount>=100", string(filter.OpGte), false},
		{"less", "amount<100", string(filter.OpLt), false},
		{"less or equal", "amount<=100", string(filter.OpLte), false},
		{"contains", "title~refund", string(filter.OpContains), false},
		{"no operator", "year2024", "", true},
		{"missing value", "year=", "", true},
		{"missing field", "=2024", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := parseFilterSpec(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, expr.Validate())
			assert.Equal(t, tt.wantOp, string(expr.Op))
		})
	}
}

func TestParseFilterSpec_InList(t *testing.T) {
	expr, err := parseFilterSpec("region=us,eu,apac")
	require.NoError(t, err)
	require.NoError(t, expr.Validate())
	assert.Equal(t, filter.OpIn, expr.Op)
	assert.Equal(t, []string{"us", "eu", "apac"}, expr.Values)
}

func TestParseFilterFlags_Conjunction(t *testing.T) {
	expr, err := parseFilterFlags([]string{"year=2024", "amount>=100"})
	require.NoError(t, err)
	require.NoError(t, expr.Validate())
	assert.True(t, expr.IsGroup())
	assert.Len(t, expr.Children, 2)

	// A single flag stays a leaf.
	single, err := parseFilterFlags([]string{"year=2024"})
	require.NoError(t, err)
	assert.False(t, single.IsGroup())
}

func TestParseWeightsFlag(t *testing.T) {
	w, err := parseWeightsFlag("0.4,0.3,0.15,0.15")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, w.Dense, 1e-9)
	assert.InDelta(t, 0.3, w.Lexical, 1e-9)
	assert.InDelta(t, 0.15, w.Pattern, 1e-9)
	assert.InDelta(t, 0.15, w.Fuzzy, 1e-9)

	_, err = parseWeightsFlag("0.5,0.5")
	require.Error(t, err)

	_, err = parseWeightsFlag("a,b,c,d")
	require.Error(t, err)
}
