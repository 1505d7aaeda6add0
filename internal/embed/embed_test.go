package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := NewHashingEmbedder()
	defer e.Close()

	a, err := e.Embed(ctx, "refund policy for returns")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "refund policy for returns")
	require.NoError(t, err)

	assert.Equal(t, a, b, "same text must embed identically")
	assert.Len(t, a, HashingDimensions)
}

func TestHashingEmbedder_UnitLength(t *testing.T) {
	ctx := context.Background()
	e := NewHashingEmbedder()
	defer e.Close()

	vec, err := e.Embed(ctx, "shipping rates by region")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestHashingEmbedder_EmptyText(t *testing.T) {
	ctx := context.Background()
	e := NewHashingEmbedder()
	defer e.Close()

	vec, err := e.Embed(ctx, "   ")
	require.NoError(t, err)
	require.Len(t, vec, HashingDimensions)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestHashingEmbedder_SimilarTextsCloser(t *testing.T) {
	ctx := context.Background()
	e := NewHashingEmbedder()
	defer e.Close()

	base, err := e.Embed(ctx, "refund policy details")
	require.NoError(t, err)
	near, err := e.Embed(ctx, "refund policy summary")
	require.NoError(t, err)
	far, err := e.Embed(ctx, "kubernetes cluster autoscaling")
	require.NoError(t, err)

	assert.Greater(t, dot(base, near), dot(base, far))
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashingEmbedder_Closed(t *testing.T) {
	e := NewHashingEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	require.Error(t, err)
}

// countingEmbedder tracks how often the inner embedder actually runs.
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	inner Embedder
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls += len(texts)
	c.mu.Unlock()
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int    { return c.inner.Dimensions() }
func (c *countingEmbedder) ModelName() string  { return c.inner.ModelName() }
func (c *countingEmbedder) Close() error       { return c.inner.Close() }

func TestCachedEmbedder_AvoidsRecomputation(t *testing.T) {
	ctx := context.Background()
	counting := &countingEmbedder{inner: NewHashingEmbedder()}
	cached := NewCachedEmbedder(counting, 10)
	defer cached.Close()

	first, err := cached.Embed(ctx, "refund policy")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "refund policy")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, counting.calls, "second call must hit the cache")
}

func TestCachedEmbedder_BatchMixesHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	counting := &countingEmbedder{inner: NewHashingEmbedder()}
	cached := NewCachedEmbedder(counting, 10)
	defer cached.Close()

	_, err := cached.Embed(ctx, "cached text")
	require.NoError(t, err)

	results, err := cached.EmbedBatch(ctx, []string{"cached text", "fresh text"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, counting.calls, "only the miss should re-embed")
}
