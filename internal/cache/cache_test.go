package cache

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitVec builds a 2D unit vector whose cosine against (1, 0) is c.
func unitVec(c float64) []float32 {
	s := 1.0 - c*c
	if s < 0 {
		s = 0
	}
	return []float32{float32(c), float32(math.Sqrt(s))}
}

func put(t *testing.T, c *SemanticCache, query string, embedding []float32) {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"answer": query})
	require.NoError(t, err)
	require.NoError(t, c.Put(context.Background(), query, embedding, payload))
}

func TestKey_Normalization(t *testing.T) {
	base := Key("refund policy")

	assert.Equal(t, base, Key("Refund Policy"))
	assert.Equal(t, base, Key("  refund   policy  "))
	assert.Equal(t, base, Key("REFUND\t\npolicy"))
	assert.NotEqual(t, base, Key("refund policies"))
	assert.Len(t, base, 64)
}

func TestLookup_TierBands(t *testing.T) {
	c := New(DefaultConfig())
	put(t, c, "refund policy", unitVec(1.0))

	tests := []struct {
		name       string
		similarity float64
		wantTier   Tier
	}{
		{"identical", 1.0, TierExact},
		{"just above exact", 0.99, TierExact},
		{"top of near band", 0.975, TierNear},
		{"near band", 0.95, TierNear},
		{"bottom of near band", 0.935, TierNear},
		{"suggestion band", 0.90, TierSuggestion},
		{"bottom of suggestion band", 0.885, TierSuggestion},
		{"just below suggestion", 0.87, TierMiss},
		{"distant", 0.50, TierMiss},
		{"unrelated", 0.10, TierMiss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := c.Lookup(context.Background(), unitVec(tt.similarity))
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, decision.Tier)

			if tt.wantTier != TierMiss {
				require.NotNil(t, decision.Entry)
				assert.Equal(t, "refund policy", decision.Entry.QueryText)
				assert.InDelta(t, tt.similarity, decision.Similarity, 1e-4)
			} else {
				assert.Nil(t, decision.Entry)
			}

			if tt.wantTier == TierNear {
				assert.Equal(t, NearHitAnnotation, decision.Annotation)
			} else {
				assert.Empty(t, decision.Annotation)
			}
		})
	}
}

func TestLookup_PicksMostSimilarEntry(t *testing.T) {
	c := New(DefaultConfig())
	put(t, c, "far", unitVec(0.0))
	put(t, c, "close", unitVec(0.96))
	put(t, c, "closest", unitVec(0.99))

	decision, err := c.Lookup(context.Background(), unitVec(1.0))
	require.NoError(t, err)
	assert.Equal(t, TierExact, decision.Tier)
	assert.Equal(t, "closest", decision.Entry.QueryText)
}

func TestLookup_EmptyCacheAndEmptyEmbedding(t *testing.T) {
	c := New(DefaultConfig())

	decision, err := c.Lookup(context.Background(), unitVec(1.0))
	require.NoError(t, err)
	assert.Equal(t, TierMiss, decision.Tier)

	put(t, c, "something", unitVec(1.0))
	decision, err = c.Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, TierMiss, decision.Tier)
}

func TestLookup_DoesNotMutateEntries(t *testing.T) {
	c := New(DefaultConfig())
	put(t, c, "stable", unitVec(1.0))

	first, err := c.Lookup(context.Background(), unitVec(1.0))
	require.NoError(t, err)
	created := first.Entry.CreatedAt

	for i := 0; i < 10; i++ {
		decision, err := c.Lookup(context.Background(), unitVec(1.0))
		require.NoError(t, err)
		assert.Equal(t, created, decision.Entry.CreatedAt)
		assert.JSONEq(t, string(first.Entry.Payload), string(decision.Entry.Payload))
	}
	assert.Equal(t, 1, c.Len())
}

func TestPut_LastWriteWins(t *testing.T) {
	c := New(DefaultConfig())

	require.NoError(t, c.Put(context.Background(), "refund policy", unitVec(1.0), json.RawMessage(`{"v":1}`)))
	// Different casing and spacing normalize to the same key.
	require.NoError(t, c.Put(context.Background(), "Refund  POLICY", unitVec(1.0), json.RawMessage(`{"v":2}`)))

	assert.Equal(t, 1, c.Len())

	decision, err := c.Lookup(context.Background(), unitVec(1.0))
	require.NoError(t, err)
	require.Equal(t, TierExact, decision.Tier)
	assert.JSONEq(t, `{"v":2}`, string(decision.Entry.Payload))
}

func TestPut_CancelledContext(t *testing.T) {
	c := New(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Put(ctx, "q", unitVec(1.0), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Zero(t, c.Len())
}

func TestTTLExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = 30 * time.Millisecond
	c := New(cfg)

	put(t, c, "ephemeral", unitVec(1.0))

	decision, err := c.Lookup(context.Background(), unitVec(1.0))
	require.NoError(t, err)
	assert.Equal(t, TierExact, decision.Tier)

	time.Sleep(60 * time.Millisecond)

	decision, err = c.Lookup(context.Background(), unitVec(1.0))
	require.NoError(t, err)
	assert.Equal(t, TierMiss, decision.Tier)
}

func TestEviction_CapacityBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 3
	c := New(cfg)

	put(t, c, "a", unitVec(0.1))
	put(t, c, "b", unitVec(0.2))
	put(t, c, "c", unitVec(0.3))
	put(t, c, "d", unitVec(0.4))

	assert.Equal(t, 3, c.Len())
}

func TestMetrics(t *testing.T) {
	c := New(DefaultConfig())
	put(t, c, "anchor", unitVec(1.0))

	lookups := []float64{1.0, 0.95, 0.90, 0.10}
	for _, sim := range lookups {
		_, err := c.Lookup(context.Background(), unitVec(sim))
		require.NoError(t, err)
	}

	m := c.Metrics()
	assert.Equal(t, uint64(4), m.Lookups)
	assert.Equal(t, uint64(1), m.ExactHits)
	assert.Equal(t, uint64(1), m.NearHits)
	assert.Equal(t, uint64(1), m.Suggestions)
	assert.Equal(t, uint64(1), m.Misses)
	assert.Equal(t, uint64(1), m.Writes)
}

func TestPurge(t *testing.T) {
	c := New(DefaultConfig())
	put(t, c, "a", unitVec(1.0))
	put(t, c, "b", unitVec(0.5))
	require.Equal(t, 2, c.Len())

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestNew_ZeroConfigTakesDefaults(t *testing.T) {
	c := New(Config{})
	put(t, c, "q", unitVec(1.0))

	decision, err := c.Lookup(context.Background(), unitVec(0.95))
	require.NoError(t, err)
	assert.Equal(t, TierNear, decision.Tier)
}
