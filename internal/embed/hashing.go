package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// HashingDimensions is the embedding width of the hashing embedder.
const HashingDimensions = 256

// HashingEmbedder produces deterministic embeddings by hashing tokens
// and character trigrams into a fixed-width vector. It needs no model
// download or network and is the default when no external embedder is
// configured. Semantic quality is reduced accordingly: overlap in
// wording is what drives similarity.
type HashingEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// Feature weights: whole tokens dominate, trigrams add typo tolerance.
const (
	tokenWeight   = 0.7
	trigramWeight = 0.3
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// commonStopWords are filtered before hashing so function words don't
// dominate the vector.
var commonStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "to": true, "with": true,
}

// NewHashingEmbedder creates a hashing embedder.
func NewHashingEmbedder() *HashingEmbedder {
	return &HashingEmbedder{}
}

// Embed generates the embedding for one text. Empty input yields the
// zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, HashingDimensions), nil
	}

	vector := make([]float32, HashingDimensions)

	for _, token := range tokenizeText(trimmed) {
		vector[hashToIndex(token, HashingDimensions)] += tokenWeight
	}

	compact := compactAlnum(trimmed)
	for i := 0; i+3 <= len(compact); i++ {
		vector[hashToIndex(compact[i:i+3], HashingDimensions)] += trigramWeight
	}

	normalizeUnit(vector)
	return vector, nil
}

// EmbedBatch embeds each text in order.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the embedding width.
func (e *HashingEmbedder) Dimensions() int {
	return HashingDimensions
}

// ModelName returns the model identifier.
func (e *HashingEmbedder) ModelName() string {
	return "hashing-256"
}

// Close marks the embedder unusable.
func (e *HashingEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

var _ Embedder = (*HashingEmbedder)(nil)

func tokenizeText(text string) []string {
	words := tokenPattern.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		lower := strings.ToLower(w)
		if !commonStopWords[lower] {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

func compactAlnum(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalizeUnit(v []float32) {
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
