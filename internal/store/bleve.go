package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/jayusctrojan/empire-search/internal/filter"
)

// LexicalBleve wraps a Bleve index for BM25-scored keyword retrieval.
// Unit text lives in the "content" field; attributes are flattened into
// attr_<key> fields so filters translate to native queries. Attribute
// values that parse as numbers are indexed numerically.
type LexicalBleve struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// NewLexicalBleve opens or creates an index at path; an empty path
// builds an in-memory index for tests. A corrupted on-disk index is
// cleared and recreated, which requires a reindex.
func NewLexicalBleve(path string) (*LexicalBleve, error) {
	im, err := buildIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("build index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}

		if verr := checkIndexIntegrity(path); verr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", verr.Error()))
			if rerr := os.RemoveAll(path); rerr != nil {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w (original: %v)", path, rerr, verr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, im)
		} else if err != nil && looksCorrupt(err) {
			slog.Warn("lexical_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if rerr := os.RemoveAll(path); rerr != nil {
				return nil, fmt.Errorf("lexical index corrupted, cannot clear: %w (original: %v)", rerr, err)
			}
			idx, err = bleve.New(path, im)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	return &LexicalBleve{index: idx, path: path}, nil
}

// buildIndexMapping maps "content" through the standard analyzer and
// everything else (the attr_ fields) through keyword, so attribute
// terms match exactly. Numeric attribute values become numeric fields
// via the dynamic mapping.
func buildIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = keyword.Name

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	im.DefaultMapping = doc

	return im, nil
}

// checkIndexIntegrity detects a half-written index before bleve.Open
// fails on it.
func checkIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func looksCorrupt(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") ||
		strings.Contains(s, "error parsing mapping JSON") ||
		strings.Contains(s, "failed to load segment") ||
		strings.Contains(s, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// Index upserts units in one batch.
func (l *LexicalBleve) Index(ctx context.Context, units []*IndexedUnit) error {
	if len(units) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := l.index.NewBatch()
	for _, u := range units {
		doc := map[string]interface{}{"content": u.Text}
		for k, v := range u.Attributes {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				doc[filter.AttributeField(k)] = f
			} else {
				doc[filter.AttributeField(k)] = v
			}
		}
		if err := batch.Index(u.UnitID, doc); err != nil {
			return fmt.Errorf("index unit %s: %w", u.UnitID, err)
		}
	}

	if err := l.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// Search scores units against queryStr with BM25. A non-nil expr is
// conjoined as a native filter query, so filtering happens before the
// result limit applies.
func (l *LexicalBleve) Search(ctx context.Context, queryStr string, limit int, expr *filter.Expression) ([]*LexicalResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}

	match := bleve.NewMatchQuery(queryStr)
	match.SetField("content")

	var q query.Query = match
	if expr != nil {
		q = bleve.NewConjunctionQuery(match, expr.BleveQuery())
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.IncludeLocations = true

	result, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &LexicalResult{
			UnitID:       hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return results, nil
}

// Delete removes units from the index.
func (l *LexicalBleve) Delete(ctx context.Context, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := l.index.NewBatch()
	for _, id := range unitIDs {
		batch.Delete(id)
	}
	if err := l.index.Batch(batch); err != nil {
		return fmt.Errorf("delete units: %w", err)
	}
	return nil
}

// Count returns the number of indexed units.
func (l *LexicalBleve) Count() (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}
	n, err := l.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("doc count: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying index.
func (l *LexicalBleve) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.index != nil {
		return l.index.Close()
	}
	return nil
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locations {
			seen[term] = struct{}{}
		}
	}
	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	return terms
}
