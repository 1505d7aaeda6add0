// Package cache implements the similarity-tiered semantic cache that
// fronts the search pipeline. Entries are immutable snapshots keyed by
// the normalized query hash; lookups match by embedding similarity and
// classify hits into tiers.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Tier classifies a lookup by how close the best cached query is.
type Tier string

const (
	// TierExact serves the cached payload as-is.
	TierExact Tier = "exact"
	// TierNear serves the cached payload annotated as similar, not exact.
	TierNear Tier = "near"
	// TierSuggestion surfaces the cached payload alongside a fresh run.
	TierSuggestion Tier = "suggestion"
	// TierMiss means nothing close enough was cached.
	TierMiss Tier = "miss"
)

// NearHitAnnotation marks near-tier responses.
const NearHitAnnotation = "similar answer, not exact"

// Entry is one cached result snapshot. Entries are never mutated after
// Put; a repeated query overwrites with a fresh entry (last-write-wins).
type Entry struct {
	Key       string          `json:"key"`
	QueryText string          `json:"query_text"`
	Embedding []float32       `json:"embedding"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decision is the outcome of a lookup.
type Decision struct {
	Tier       Tier
	Entry      *Entry
	Similarity float64
	Annotation string
}

// Metrics are monotonically increasing lookup counters.
type Metrics struct {
	Lookups     uint64 `json:"lookups"`
	ExactHits   uint64 `json:"exact_hits"`
	NearHits    uint64 `json:"near_hits"`
	Suggestions uint64 `json:"suggestions"`
	Misses      uint64 `json:"misses"`
	Writes      uint64 `json:"writes"`
}

// Config tunes the cache bands and store.
type Config struct {
	ExactThreshold   float64       `yaml:"exact_threshold"`
	NearThreshold    float64       `yaml:"near_threshold"`
	SuggestThreshold float64       `yaml:"suggest_threshold"`
	TTL              time.Duration `yaml:"ttl"`
	MaxEntries       int           `yaml:"max_entries"`
}

// DefaultConfig returns the documented tier bands: exact at 0.98, near
// at 0.93, suggestion at 0.88, one hour TTL.
func DefaultConfig() Config {
	return Config{
		ExactThreshold:   0.98,
		NearThreshold:    0.93,
		SuggestThreshold: 0.88,
		TTL:              time.Hour,
		MaxEntries:       1024,
	}
}

// SemanticCache holds recent query results in a TTL'd LRU. The store is
// internally synchronized; lookups scan current entries without
// touching recency, so reads never mutate cache state.
type SemanticCache struct {
	store  *expirable.LRU[string, *Entry]
	config Config

	lookups     atomic.Uint64
	exactHits   atomic.Uint64
	nearHits    atomic.Uint64
	suggestions atomic.Uint64
	misses      atomic.Uint64
	writes      atomic.Uint64
}

// New creates a semantic cache. Zero config fields take defaults.
func New(cfg Config) *SemanticCache {
	def := DefaultConfig()
	if cfg.ExactThreshold <= 0 {
		cfg.ExactThreshold = def.ExactThreshold
	}
	if cfg.NearThreshold <= 0 {
		cfg.NearThreshold = def.NearThreshold
	}
	if cfg.SuggestThreshold <= 0 {
		cfg.SuggestThreshold = def.SuggestThreshold
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}

	return &SemanticCache{
		store:  expirable.NewLRU[string, *Entry](cfg.MaxEntries, nil, cfg.TTL),
		config: cfg,
	}
}

// Key hashes the normalized query text: lowercased, whitespace
// collapsed, then sha256.
func Key(queryText string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(queryText)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Lookup finds the most similar cached entry and classifies it:
// similarity >= exact serves the snapshot directly; >= near serves it
// annotated; >= suggestion surfaces it alongside a fresh run; anything
// lower is a miss.
func (c *SemanticCache) Lookup(ctx context.Context, embedding []float32) (*Decision, error) {
	c.lookups.Add(1)

	if len(embedding) == 0 || c.store.Len() == 0 {
		c.misses.Add(1)
		return &Decision{Tier: TierMiss}, nil
	}

	var (
		best    *Entry
		bestSim = -1.0
	)
	for _, entry := range c.store.Values() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sim := cosine(embedding, entry.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = entry
		}
	}

	switch {
	case best != nil && bestSim >= c.config.ExactThreshold:
		c.exactHits.Add(1)
		return &Decision{Tier: TierExact, Entry: best, Similarity: bestSim}, nil
	case best != nil && bestSim >= c.config.NearThreshold:
		c.nearHits.Add(1)
		return &Decision{Tier: TierNear, Entry: best, Similarity: bestSim, Annotation: NearHitAnnotation}, nil
	case best != nil && bestSim >= c.config.SuggestThreshold:
		c.suggestions.Add(1)
		return &Decision{Tier: TierSuggestion, Entry: best, Similarity: bestSim}, nil
	default:
		c.misses.Add(1)
		return &Decision{Tier: TierMiss}, nil
	}
}

// Put stores a result snapshot. The same normalized query overwrites
// its previous entry.
func (c *SemanticCache) Put(ctx context.Context, queryText string, embedding []float32, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := &Entry{
		Key:       Key(queryText),
		QueryText: queryText,
		Embedding: embedding,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	c.store.Add(entry.Key, entry)
	c.writes.Add(1)
	return nil
}

// Len returns the number of live entries.
func (c *SemanticCache) Len() int {
	return c.store.Len()
}

// Purge drops all entries.
func (c *SemanticCache) Purge() {
	c.store.Purge()
}

// Metrics returns a snapshot of the counters.
func (c *SemanticCache) Metrics() Metrics {
	return Metrics{
		Lookups:     c.lookups.Load(),
		ExactHits:   c.exactHits.Load(),
		NearHits:    c.nearHits.Load(),
		Suggestions: c.suggestions.Load(),
		Misses:      c.misses.Load(),
		Writes:      c.writes.Load(),
	}
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
