// Package embed turns query and unit text into dense vectors for the
// vector index and the semantic cache.
package embed

import "context"

// Embedder produces fixed-width embeddings. Implementations must be
// deterministic for the same text and model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}
