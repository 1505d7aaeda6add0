// Package store persists indexed units and the derived search indexes:
// a SQLite unit store, an HNSW vector index, a Bleve lexical index, and
// an in-memory trigram index for fuzzy matching.
package store

import (
	"context"
	"time"
)

// IndexedUnit is one retrievable unit of content. Units belonging to the
// same parent form an ordered sequence addressed by SequenceIndex.
type IndexedUnit struct {
	UnitID        string            `json:"unit_id"`
	ParentID      string            `json:"parent_id"`
	SequenceIndex int               `json:"sequence_index"`
	Text          string            `json:"text"`
	Embedding     []float32         `json:"embedding,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// UnitStore is the durable source of truth for units.
type UnitStore interface {
	// PutUnits upserts units in a single transaction.
	PutUnits(ctx context.Context, units []*IndexedUnit) error

	// GetUnit returns one unit, or nil when absent.
	GetUnit(ctx context.Context, unitID string) (*IndexedUnit, error)

	// GetUnits returns the units that exist, preserving input order.
	// Missing IDs are skipped, not errors.
	GetUnits(ctx context.Context, unitIDs []string) ([]*IndexedUnit, error)

	// GetRange returns units of a parent with SequenceIndex in
	// [start, end], ordered by SequenceIndex.
	GetRange(ctx context.Context, parentID string, start, end int) ([]*IndexedUnit, error)

	// CountSiblings returns how many units share the parent.
	CountSiblings(ctx context.Context, parentID string) (int, error)

	// ScanSubstring returns up to limit units whose text contains the
	// literal substring, case-insensitively.
	ScanSubstring(ctx context.Context, substring string, limit int) ([]*IndexedUnit, error)

	// DeleteUnits removes units by ID. Missing IDs are ignored.
	DeleteUnits(ctx context.Context, unitIDs []string) error

	// AllUnits returns every stored unit, ordered by parent and sequence.
	AllUnits(ctx context.Context) ([]*IndexedUnit, error)

	// Count returns the number of stored units.
	Count(ctx context.Context) (int, error)

	Close() error
}

// VectorResult is one nearest-neighbor hit.
type VectorResult struct {
	UnitID   string
	Distance float32
	Score    float32
}

// VectorIndexConfig configures the HNSW graph.
type VectorIndexConfig struct {
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"` // "cos" or "l2"
	M          int    `yaml:"m"`
	EfSearch   int    `yaml:"ef_search"`
}

// LexicalResult is one keyword-scored hit.
type LexicalResult struct {
	UnitID       string
	Score        float64
	MatchedTerms []string
}
