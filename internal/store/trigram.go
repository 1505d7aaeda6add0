package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// TrigramResult is one fuzzy hit with its Jaccard similarity.
type TrigramResult struct {
	UnitID     string
	Similarity float64
}

// TrigramIndex supports typo-tolerant matching via trigram Jaccard
// similarity. Words are lowercased and padded ("  word ") before
// trigram extraction, so "shiping" still overlaps "shipping".
//
// The index is rebuilt from the unit store on startup and kept entirely
// in memory; an inverted gram -> unit posting list prunes the scan to
// units sharing at least one trigram with the query.
type TrigramIndex struct {
	mu       sync.RWMutex
	unitSets map[string]map[string]struct{}
	postings map[string]map[string]struct{}
	closed   bool
}

// NewTrigramIndex creates an empty index.
func NewTrigramIndex() *TrigramIndex {
	return &TrigramIndex{
		unitSets: make(map[string]map[string]struct{}),
		postings: make(map[string]map[string]struct{}),
	}
}

// Add indexes unit texts, replacing any previous entry per ID.
func (t *TrigramIndex) Add(ctx context.Context, ids []string, texts []string) error {
	if len(ids) != len(texts) {
		return fmt.Errorf("ids and texts length mismatch: %d vs %d", len(ids), len(texts))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("trigram index is closed")
	}

	for i, id := range ids {
		t.removeLocked(id)
		set := ExtractTrigrams(texts[i])
		if len(set) == 0 {
			continue
		}
		t.unitSets[id] = set
		for gram := range set {
			units, ok := t.postings[gram]
			if !ok {
				units = make(map[string]struct{})
				t.postings[gram] = units
			}
			units[id] = struct{}{}
		}
	}
	return nil
}

// Delete removes units from the index. Missing IDs are ignored.
func (t *TrigramIndex) Delete(ctx context.Context, ids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("trigram index is closed")
	}
	for _, id := range ids {
		t.removeLocked(id)
	}
	return nil
}

func (t *TrigramIndex) removeLocked(id string) {
	set, ok := t.unitSets[id]
	if !ok {
		return
	}
	for gram := range set {
		if units, ok := t.postings[gram]; ok {
			delete(units, id)
			if len(units) == 0 {
				delete(t.postings, gram)
			}
		}
	}
	delete(t.unitSets, id)
}

// Search returns up to limit units with Jaccard similarity >= threshold
// against the query, best first. Ties order by unit ID so results are
// deterministic.
func (t *TrigramIndex) Search(ctx context.Context, queryStr string, threshold float64, limit int) ([]*TrigramResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, fmt.Errorf("trigram index is closed")
	}

	queryGrams := ExtractTrigrams(queryStr)
	if len(queryGrams) == 0 {
		return []*TrigramResult{}, nil
	}

	// Count shared trigrams per candidate via the posting lists.
	shared := make(map[string]int)
	for gram := range queryGrams {
		for id := range t.postings[gram] {
			shared[id]++
		}
	}

	results := make([]*TrigramResult, 0, len(shared))
	for id, inter := range shared {
		union := len(queryGrams) + len(t.unitSets[id]) - inter
		sim := float64(inter) / float64(union)
		if sim >= threshold {
			results = append(results, &TrigramResult{UnitID: id, Similarity: sim})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].UnitID < results[j].UnitID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of indexed units.
func (t *TrigramIndex) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.unitSets)
}

// Close marks the index unusable.
func (t *TrigramIndex) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.unitSets = nil
	t.postings = nil
	return nil
}

// ExtractTrigrams returns the trigram set of a text. Each word is
// lowercased and padded with two leading and one trailing space before
// sliding a 3-rune window, so word boundaries contribute distinct
// trigrams.
func ExtractTrigrams(text string) map[string]struct{} {
	grams := make(map[string]struct{})
	for _, word := range splitWords(text) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			grams[string(padded[i:i+3])] = struct{}{}
		}
	}
	return grams
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
