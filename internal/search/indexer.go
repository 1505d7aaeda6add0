package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jayusctrojan/empire-search/internal/embed"
	"github.com/jayusctrojan/empire-search/internal/store"
	"github.com/jayusctrojan/empire-search/internal/validation"
)

// Indexer keeps the unit store and the three derived indexes in step.
// The unit store is the source of truth; orphans left in a derived
// index by a partial delete are filtered during enrichment.
type Indexer struct {
	units    store.UnitStore
	vectors  *store.HNSWIndex
	lexical  *store.LexicalBleve
	trigrams *store.TrigramIndex
	embedder embed.Embedder
}

// NewIndexer wires the indexer over the shared stores.
func NewIndexer(
	units store.UnitStore,
	vectors *store.HNSWIndex,
	lexical *store.LexicalBleve,
	trigrams *store.TrigramIndex,
	embedder embed.Embedder,
) *Indexer {
	return &Indexer{
		units:    units,
		vectors:  vectors,
		lexical:  lexical,
		trigrams: trigrams,
		embedder: embedder,
	}
}

// IndexUnits upserts units everywhere. Units without a precomputed
// embedding are embedded here.
func (x *Indexer) IndexUnits(ctx context.Context, units []*store.IndexedUnit) error {
	if len(units) == 0 {
		return nil
	}
	if err := validation.ValidateBatch(units); err != nil {
		return err
	}

	// Fill missing embeddings in one batch.
	var missingIdx []int
	var missingTexts []string
	for i, u := range units {
		if len(u.Embedding) == 0 {
			missingIdx = append(missingIdx, i)
			missingTexts = append(missingTexts, u.Text)
		}
	}
	if len(missingTexts) > 0 {
		embeddings, err := x.embedder.EmbedBatch(ctx, missingTexts)
		if err != nil {
			return fmt.Errorf("embed units: %w", err)
		}
		for j, i := range missingIdx {
			units[i].Embedding = embeddings[j]
		}
	}

	if err := x.units.PutUnits(ctx, units); err != nil {
		return fmt.Errorf("store units: %w", err)
	}

	ids := make([]string, len(units))
	vectors := make([][]float32, len(units))
	texts := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.UnitID
		vectors[i] = u.Embedding
		texts[i] = u.Text
	}

	if err := x.vectors.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("index vectors: %w", err)
	}
	if err := x.lexical.Index(ctx, units); err != nil {
		return fmt.Errorf("index lexical: %w", err)
	}
	if err := x.trigrams.Add(ctx, ids, texts); err != nil {
		return fmt.Errorf("index trigrams: %w", err)
	}

	slog.Info("units_indexed", slog.Int("count", len(units)))
	return nil
}

// DeleteUnits removes units everywhere. Derived index deletes are best
// effort; the unit store delete must succeed.
func (x *Indexer) DeleteUnits(ctx context.Context, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}

	if err := x.vectors.Delete(ctx, unitIDs); err != nil {
		slog.Warn("vector delete failed, orphans remain",
			slog.String("error", err.Error()),
			slog.Int("count", len(unitIDs)))
	}
	if err := x.lexical.Delete(ctx, unitIDs); err != nil {
		slog.Warn("lexical delete failed, orphans remain",
			slog.String("error", err.Error()),
			slog.Int("count", len(unitIDs)))
	}
	if err := x.trigrams.Delete(ctx, unitIDs); err != nil {
		slog.Warn("trigram delete failed, orphans remain",
			slog.String("error", err.Error()),
			slog.Int("count", len(unitIDs)))
	}

	if err := x.units.DeleteUnits(ctx, unitIDs); err != nil {
		return fmt.Errorf("delete units: %w", err)
	}
	return nil
}

// RebuildDerived repopulates the derived indexes from the unit store,
// used after opening an index directory whose in-memory structures
// (trigram index) need rebuilding.
func (x *Indexer) RebuildDerived(ctx context.Context) error {
	units, err := x.units.AllUnits(ctx)
	if err != nil {
		return fmt.Errorf("load units for rebuild: %w", err)
	}
	if len(units) == 0 {
		return nil
	}

	ids := make([]string, len(units))
	texts := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.UnitID
		texts[i] = u.Text
	}
	if err := x.trigrams.Add(ctx, ids, texts); err != nil {
		return fmt.Errorf("rebuild trigrams: %w", err)
	}

	// The vector graph is rebuilt only when its snapshot is missing.
	if x.vectors.Count() == 0 {
		withEmbedding := make([]string, 0, len(units))
		vectors := make([][]float32, 0, len(units))
		for _, u := range units {
			if len(u.Embedding) > 0 {
				withEmbedding = append(withEmbedding, u.UnitID)
				vectors = append(vectors, u.Embedding)
			}
		}
		if len(withEmbedding) > 0 {
			if err := x.vectors.Add(ctx, withEmbedding, vectors); err != nil {
				return fmt.Errorf("rebuild vectors: %w", err)
			}
		}
	}

	slog.Info("derived_indexes_rebuilt", slog.Int("units", len(units)))
	return nil
}
