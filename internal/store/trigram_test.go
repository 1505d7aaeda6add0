package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTrigrams(t *testing.T) {
	grams := ExtractTrigrams("cat")
	// "  cat " -> "  c", " ca", "cat", "at "
	assert.Len(t, grams, 4)
	assert.Contains(t, grams, "cat")
	assert.Contains(t, grams, "  c")
	assert.Contains(t, grams, "at ")

	// Case and punctuation are normalized away
	assert.Equal(t, ExtractTrigrams("CAT!"), grams)

	// Empty and symbol-only input produce nothing
	assert.Empty(t, ExtractTrigrams(""))
	assert.Empty(t, ExtractTrigrams("!!!"))
}

func TestTrigramIndex_Search(t *testing.T) {
	ctx := context.Background()
	idx := NewTrigramIndex()

	require.NoError(t, idx.Add(ctx,
		[]string{"u1", "u2", "u3"},
		[]string{"shipping rates", "refund policy", "billing address"}))

	// Given a misspelled query
	results, err := idx.Search(ctx, "shiping", 0.3, 10)
	require.NoError(t, err)

	// Then the typo still matches the correctly spelled unit
	require.NotEmpty(t, results)
	assert.Equal(t, "u1", results[0].UnitID)
	assert.Greater(t, results[0].Similarity, 0.3)

	// An unrelated query stays below the threshold
	results, err = idx.Search(ctx, "zzzz", 0.3, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTrigramIndex_SearchOrderingDeterministic(t *testing.T) {
	ctx := context.Background()
	idx := NewTrigramIndex()

	// Two units with identical text tie on similarity
	require.NoError(t, idx.Add(ctx,
		[]string{"b", "a"},
		[]string{"refund policy", "refund policy"}))

	results, err := idx.Search(ctx, "refund", 0.1, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].UnitID, "ties break by unit ID")
	assert.Equal(t, "b", results[1].UnitID)
}

func TestTrigramIndex_AddReplacesAndDelete(t *testing.T) {
	ctx := context.Background()
	idx := NewTrigramIndex()

	require.NoError(t, idx.Add(ctx, []string{"u1"}, []string{"shipping"}))
	require.NoError(t, idx.Add(ctx, []string{"u1"}, []string{"billing"}))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(ctx, "shipping", 0.5, 10)
	require.NoError(t, err)
	assert.Empty(t, results, "old text must not match after replace")

	require.NoError(t, idx.Delete(ctx, []string{"u1"}))
	assert.Equal(t, 0, idx.Count())
}

func TestTrigramIndex_LimitApplies(t *testing.T) {
	ctx := context.Background()
	idx := NewTrigramIndex()

	ids := []string{"u1", "u2", "u3", "u4"}
	texts := []string{"refund one", "refund two", "refund three", "refund four"}
	require.NoError(t, idx.Add(ctx, ids, texts))

	results, err := idx.Search(ctx, "refund", 0.1, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
