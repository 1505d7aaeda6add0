package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex is the pure-Go approximate nearest-neighbor index over unit
// embeddings. Unit IDs are mapped to internal uint64 keys; deletions are
// lazy (mappings dropped, graph node orphaned) because removing nodes
// from a coder/hnsw graph can corrupt it.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig

	unitKeys map[string]uint64
	keyUnits map[uint64]string
	nextKey  uint64

	closed bool
}

// hnswSidecar holds the key mappings persisted next to the graph file.
type hnswSidecar struct {
	UnitKeys map[string]uint64
	NextKey  uint64
	Config   VectorIndexConfig
}

// NewHNSWIndex creates an empty index.
func NewHNSWIndex(cfg VectorIndexConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index requires positive dimensions, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:    graph,
		config:   cfg,
		unitKeys: make(map[string]uint64),
		keyUnits: make(map[uint64]string),
	}, nil
}

// Add inserts embeddings for the given unit IDs. Existing IDs are
// re-pointed at fresh graph nodes; the old nodes become orphans.
func (x *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != x.config.Dimensions {
			return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", x.config.Dimensions, len(v))
		}
	}

	for i, id := range ids {
		if oldKey, exists := x.unitKeys[id]; exists {
			delete(x.keyUnits, oldKey)
			delete(x.unitKeys, id)
		}

		key := x.nextKey
		x.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if x.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		x.graph.Add(hnsw.MakeNode(key, vec))
		x.unitKeys[id] = key
		x.keyUnits[key] = id
	}

	return nil
}

// Search returns up to k nearest units, best first. Orphaned graph
// nodes are filtered out via the key mapping.
func (x *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != x.config.Dimensions {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", x.config.Dimensions, len(query))
	}
	if x.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if x.config.Metric == "cos" {
		normalizeInPlace(q)
	}

	nodes := x.graph.Search(q, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, live := x.keyUnits[node.Key]
		if !live {
			continue
		}
		dist := x.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			UnitID:   id,
			Distance: dist,
			Score:    similarityFromDistance(dist, x.config.Metric),
		})
	}
	return results, nil
}

// Delete drops unit IDs from the index. The graph nodes stay behind as
// orphans and are skipped during search.
func (x *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("vector index is closed")
	}
	for _, id := range ids {
		if key, exists := x.unitKeys[id]; exists {
			delete(x.keyUnits, key)
			delete(x.unitKeys, id)
		}
	}
	return nil
}

// Contains reports whether a unit ID is indexed.
func (x *HNSWIndex) Contains(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, exists := x.unitKeys[id]
	return exists && !x.closed
}

// Count returns the number of live vectors.
func (x *HNSWIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return 0
	}
	return len(x.unitKeys)
}

// Dimensions returns the configured embedding width.
func (x *HNSWIndex) Dimensions() int {
	return x.config.Dimensions
}

// Save writes the graph and its sidecar atomically (temp file + rename).
func (x *HNSWIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return fmt.Errorf("vector index is closed")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	if err := x.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close graph file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename graph file: %w", err)
	}

	return x.saveSidecar(path + ".meta")
}

func (x *HNSWIndex) saveSidecar(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create sidecar: %w", err)
	}

	side := hnswSidecar{
		UnitKeys: x.unitKeys,
		NextKey:  x.nextKey,
		Config:   x.config,
	}
	if err := gob.NewEncoder(f).Encode(side); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close sidecar: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores a saved graph and its sidecar.
func (x *HNSWIndex) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("vector index is closed")
	}

	sf, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open sidecar: %w", err)
	}
	defer sf.Close()

	var side hnswSidecar
	if err := gob.NewDecoder(sf).Decode(&side); err != nil {
		return fmt.Errorf("decode sidecar: %w", err)
	}

	x.unitKeys = side.UnitKeys
	x.keyUnits = make(map[uint64]string, len(side.UnitKeys))
	for id, key := range side.UnitKeys {
		x.keyUnits[key] = id
	}
	x.nextKey = side.NextKey
	x.config = side.Config

	gf, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open graph file: %w", err)
	}
	defer gf.Close()

	// coder/hnsw Import needs an io.ByteReader.
	if err := x.graph.Import(bufio.NewReader(gf)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

// Close marks the index unusable.
func (x *HNSWIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	x.graph = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// similarityFromDistance maps a distance to a 0-1 similarity score.
// Cosine distance spans 0-2; L2 spans 0-inf.
func similarityFromDistance(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}
