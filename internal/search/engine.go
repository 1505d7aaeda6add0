package search

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jayusctrojan/empire-search/internal/cache"
	"github.com/jayusctrojan/empire-search/internal/embed"
	"github.com/jayusctrojan/empire-search/internal/errors"
	"github.com/jayusctrojan/empire-search/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = stderrors.New("nil dependency")

// Engine is the hybrid search pipeline: classify, embed, consult the
// semantic cache, fan the four retrievers out in parallel, fuse at the
// barrier, enrich, optionally expand, and write back to the cache.
type Engine struct {
	units      store.UnitStore
	set        *RetrieverSet
	embedder   embed.Embedder
	cache      *cache.SemanticCache
	reranker   Reranker
	classifier *Classifier
	expander   *Expander

	// mu guards config and fuser, which ApplyTunables may swap while
	// searches are in flight.
	mu     sync.RWMutex
	fuser  *Fuser
	config EngineConfig
}

// EngineOption configures optional engine behavior.
type EngineOption func(*Engine)

// WithSemanticCache fronts the pipeline with a semantic cache. Without
// it every search runs fresh.
func WithSemanticCache(c *cache.SemanticCache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithReranker replaces the default embedding-based reranker.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) {
		e.reranker = r
	}
}

// NewEngine creates the engine. Required dependencies must be non-nil.
func NewEngine(
	units store.UnitStore,
	set *RetrieverSet,
	embedder embed.Embedder,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if units == nil {
		return nil, fmt.Errorf("%w: unit store is required", ErrNilDependency)
	}
	if set == nil {
		return nil, fmt.Errorf("%w: retriever set is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	config = withEngineDefaults(config)

	fuser, err := NewFuser(config.RRFK)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		units:      units,
		set:        set,
		embedder:   embedder,
		fuser:      fuser,
		classifier: NewClassifier(),
		expander:   NewExpander(units),
		config:     config,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reranker == nil {
		e.reranker = NewEmbeddingReranker(embedder)
	}
	return e, nil
}

// withEngineDefaults fills zero-valued tunables from the defaults.
func withEngineDefaults(config EngineConfig) EngineConfig {
	def := DefaultEngineConfig()
	if config.RRFK == 0 {
		config.RRFK = def.RRFK
	}
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = def.DefaultTopK
	}
	if config.MaxTopK <= 0 {
		config.MaxTopK = def.MaxTopK
	}
	if config.RetrieverTimeout <= 0 {
		config.RetrieverTimeout = def.RetrieverTimeout
	}
	if config.DefaultRadius <= 0 {
		config.DefaultRadius = def.DefaultRadius
	}
	if config.DefaultBudget <= 0 {
		config.DefaultBudget = def.DefaultBudget
	}
	if config.RerankThreshold <= 0 {
		config.RerankThreshold = def.RerankThreshold
	}
	return config
}

// ApplyTunables swaps the runtime tunables, rebuilding the fuser when
// the fusion constant changed. Invalid values are rejected and the
// current tunables stay in effect. Safe while searches are in flight.
func (e *Engine) ApplyTunables(config EngineConfig) error {
	config = withEngineDefaults(config)
	fuser, err := NewFuser(config.RRFK)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.config = config
	e.fuser = fuser
	e.mu.Unlock()
	return nil
}

// tunables snapshots the current config and fuser for one request.
func (e *Engine) tunables() (EngineConfig, *Fuser) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config, e.fuser
}

// Search runs the full pipeline for one query.
func (e *Engine) Search(ctx context.Context, queryText string, opts Options) (*Response, error) {
	start := time.Now()

	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "query text is empty", nil)
	}
	if opts.Filter != nil {
		if err := opts.Filter.Validate(); err != nil {
			return nil, err
		}
	}
	cfg, fuser := e.tunables()
	opts = applyDefaults(opts, cfg)

	profile := e.classifier.Classify(queryText)
	if opts.WeightOverride != nil {
		if err := ValidateWeights(*opts.WeightOverride); err != nil {
			return nil, err
		}
		profile.Weights = *opts.WeightOverride
	}

	resp := &Response{
		Profile:   profile,
		RequestID: uuid.NewString(),
	}

	// Embedder failure degrades the pipeline: dense retrieval and the
	// semantic cache are skipped, the other three signals continue.
	embedding, embedErr := e.embedder.Embed(ctx, queryText)
	if embedErr != nil {
		slog.Warn("query_embedding_failed, dense retrieval and cache disabled",
			slog.String("request_id", resp.RequestID),
			slog.String("error", embedErr.Error()))
		embedding = nil
	}

	cacheEnabled := e.cache != nil && *opts.CacheEnabled && len(embedding) > 0
	var suggestion []*FusedResult
	if cacheEnabled {
		decision, err := e.cache.Lookup(ctx, embedding)
		if err != nil {
			return nil, err
		}
		switch decision.Tier {
		case cache.TierExact, cache.TierNear:
			results, derr := decodeResults(decision.Entry.Payload)
			if derr != nil {
				slog.Warn("cache_payload_corrupt, falling through to fresh run",
					slog.String("request_id", resp.RequestID),
					slog.String("error", derr.Error()))
				break
			}
			resp.Results = results
			resp.UsedCache = true
			resp.CacheTier = string(decision.Tier)
			resp.CacheNote = decision.Annotation
			e.logSearch(resp, time.Since(start))
			return resp, nil
		case cache.TierSuggestion:
			if cached, derr := decodeResults(decision.Entry.Payload); derr == nil {
				suggestion = cached
			}
		}
	}

	query := Query{
		Text:           queryText,
		Embedding:      embedding,
		Filter:         opts.Filter,
		FuzzyThreshold: profile.FuzzyThreshold,
	}

	candidates, err := e.fanOut(ctx, query, opts.TopK, cfg.RetrieverTimeout)
	if err != nil {
		return nil, err
	}

	fused, err := fuser.Fuse(candidates, profile.Weights, opts.TopK)
	if err != nil {
		return nil, err
	}
	if err := e.enrich(ctx, fused); err != nil {
		return nil, err
	}

	// The cache stores the fused ranking; reranking is a per-request
	// stage, applied after the write so entries stay comparable.
	e.writeCache(ctx, queryText, embedding, cacheEnabled, fused)

	if opts.RerankEnabled && len(fused) > 0 {
		reranked, rerr := rerank(ctx, e.reranker, queryText, fused, cfg.RerankThreshold)
		if rerr != nil {
			slog.Warn("rerank_failed, keeping fused order",
				slog.String("request_id", resp.RequestID),
				slog.String("error", rerr.Error()))
		} else {
			fused = reranked
			resp.Reranked = true
		}
	}

	resp.Results = fused
	resp.Suggestion = suggestion

	if opts.ExpandResults && len(fused) > 0 {
		expanded, xerr := e.expandResults(ctx, fused, opts)
		if xerr != nil {
			return nil, xerr
		}
		resp.Expanded = expanded.Units
	}

	e.logSearch(resp, time.Since(start))
	return resp, nil
}

// Expand is the secondary entry point for explicit range expansion.
func (e *Engine) Expand(ctx context.Context, requests []ExpandRequest, budget int) (*ExpandResult, error) {
	cfg, _ := e.tunables()
	if budget <= 0 {
		budget = cfg.DefaultBudget
	}
	return e.expander.ExpandRanges(ctx, requests, budget)
}

// ExpandAround expands radius neighbors of a single unit.
func (e *Engine) ExpandAround(ctx context.Context, unitID string, radius, budget int) (*ExpandResult, error) {
	cfg, _ := e.tunables()
	if radius <= 0 {
		radius = cfg.DefaultRadius
	}
	if budget <= 0 {
		budget = cfg.DefaultBudget
	}
	return e.expander.ExpandRadius(ctx, unitID, radius, budget)
}

// CacheMetrics exposes the semantic cache counters, zero when no cache
// is configured.
func (e *Engine) CacheMetrics() cache.Metrics {
	if e.cache == nil {
		return cache.Metrics{}
	}
	return e.cache.Metrics()
}

func applyDefaults(opts Options, cfg EngineConfig) Options {
	if opts.TopK <= 0 {
		opts.TopK = cfg.DefaultTopK
	}
	if opts.TopK > cfg.MaxTopK {
		opts.TopK = cfg.MaxTopK
	}
	if opts.ExpansionRadius <= 0 {
		opts.ExpansionRadius = cfg.DefaultRadius
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = cfg.DefaultBudget
	}
	if opts.CacheEnabled == nil {
		enabled := true
		opts.CacheEnabled = &enabled
	}
	return opts
}

// fanOut runs all four retrievers concurrently, each under its own
// timeout. A failed or timed-out retriever degrades to an empty list;
// only all four failing is an error.
func (e *Engine) fanOut(ctx context.Context, q Query, limit int, timeout time.Duration) ([]Candidate, error) {
	retrievers := e.set.All()
	lists := make([][]Candidate, len(retrievers))
	failures := make([]error, len(retrievers))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range retrievers {
		i, r := i, r
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			candidates, err := r.Retrieve(rctx, q, limit)
			if err != nil {
				if stderrors.Is(err, context.DeadlineExceeded) {
					failures[i] = errors.RetrieverTimeout(string(r.Method()), err)
				} else {
					failures[i] = errors.RetrieverUnavailable(string(r.Method()), err)
				}
				slog.Warn("retriever_degraded",
					slog.String("method", string(r.Method())),
					slog.String("error", err.Error()))
				return nil
			}
			lists[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, ferr := range failures {
		if ferr != nil {
			failed++
		}
	}
	if failed == len(retrievers) {
		return nil, errors.NoRetrieversAvailable(stderrors.Join(failures...))
	}

	var all []Candidate
	for _, list := range lists {
		all = append(all, list...)
	}
	return all, nil
}

// enrich batch-fetches unit content and attributes for fused results.
// Units deleted between retrieval and enrichment keep their rank with
// empty content rather than failing the whole search.
func (e *Engine) enrich(ctx context.Context, results []*FusedResult) error {
	if len(results) == 0 {
		return nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.UnitID
	}

	units, err := e.units.GetUnits(ctx, ids)
	if err != nil {
		return fmt.Errorf("enrich results: %w", err)
	}

	byID := make(map[string]*store.IndexedUnit, len(units))
	for _, u := range units {
		byID[u.UnitID] = u
	}
	for _, r := range results {
		if u, ok := byID[r.UnitID]; ok {
			r.Content = u.Text
			r.Attributes = u.Attributes
		}
	}
	return nil
}

// expandResults builds radius windows around each ranked result and
// expands them under one shared budget, in rank order.
func (e *Engine) expandResults(ctx context.Context, results []*FusedResult, opts Options) (*ExpandResult, error) {
	requests := make([]ExpandRequest, 0, len(results))
	for _, r := range results {
		u, err := e.units.GetUnit(ctx, r.UnitID)
		if err != nil {
			return nil, fmt.Errorf("resolve result unit %s: %w", r.UnitID, err)
		}
		if u == nil {
			continue
		}
		start := u.SequenceIndex - opts.ExpansionRadius
		if start < 0 {
			start = 0
		}
		requests = append(requests, ExpandRequest{
			ParentID: u.ParentID,
			Start:    start,
			End:      u.SequenceIndex + opts.ExpansionRadius,
		})
	}
	return e.expander.ExpandRanges(ctx, requests, opts.TokenBudget)
}

// writeCache persists fresh results. Skipped when the cache is off,
// the context is done, or there is nothing worth caching.
func (e *Engine) writeCache(ctx context.Context, queryText string, embedding []float32, enabled bool, results []*FusedResult) {
	if !enabled || len(results) == 0 || ctx.Err() != nil {
		return
	}

	payload, err := json.Marshal(results)
	if err != nil {
		slog.Warn("cache_write_skipped",
			slog.String("error", err.Error()))
		return
	}
	if err := e.cache.Put(ctx, queryText, embedding, payload); err != nil {
		slog.Warn("cache_write_failed",
			slog.String("error", err.Error()))
	}
}

func (e *Engine) logSearch(resp *Response, elapsed time.Duration) {
	slog.Info("search_completed",
		slog.String("request_id", resp.RequestID),
		slog.Int("query_words", resp.Profile.WordCount),
		slog.String("intent", string(resp.Profile.Intent)),
		slog.Int("results", len(resp.Results)),
		slog.Bool("used_cache", resp.UsedCache),
		slog.String("cache_tier", resp.CacheTier),
		slog.Duration("elapsed", elapsed))
}

func decodeResults(payload json.RawMessage) ([]*FusedResult, error) {
	var results []*FusedResult
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, err
	}
	return results, nil
}
