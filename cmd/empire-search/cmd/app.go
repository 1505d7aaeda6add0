package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jayusctrojan/empire-search/internal/cache"
	"github.com/jayusctrojan/empire-search/internal/config"
	"github.com/jayusctrojan/empire-search/internal/embed"
	"github.com/jayusctrojan/empire-search/internal/search"
	"github.com/jayusctrojan/empire-search/internal/store"
)

// Index file names under the data directory.
const (
	unitsDBFile     = "units.db"
	vectorIndexFile = "vectors.hnsw"
	lexicalIndexDir = "lexical.bleve"
)

// app bundles the wired stores and engine for one CLI invocation. The
// directory lock is held for the whole invocation; Close releases it.
type app struct {
	cfg     *config.Config
	root    string
	dataDir string

	lock     *store.DirLock
	units    *store.SQLiteUnitStore
	vectors  *store.HNSWIndex
	lexical  *store.LexicalBleve
	trigrams *store.TrigramIndex
	embedder embed.Embedder

	engine  *search.Engine
	indexer *search.Indexer
	watcher *config.Watcher
}

// openApp wires stores, indexer, and engine for the current project.
// When requireIndex is set, a missing unit store is an error instead of
// an empty index.
func openApp(ctx context.Context, requireIndex bool) (*app, error) {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	dataDir := cfg.IndexDir(root)
	unitsPath := filepath.Join(dataDir, unitsDBFile)
	if requireIndex {
		if _, err := os.Stat(unitsPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("no index found at %s. Run 'empire-search index' first", dataDir)
		}
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	a := &app{cfg: cfg, root: root, dataDir: dataDir}

	a.lock = store.NewDirLock(dataDir)
	if err := a.lock.Acquire(); err != nil {
		return nil, err
	}

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildEngine(); err != nil {
		a.Close()
		return nil, err
	}
	a.watchConfig(ctx)
	return a, nil
}

// watchConfig hot-reloads engine tunables when the project config
// changes. Store and cache settings still need a restart. Best-effort:
// a watch failure never blocks the invocation.
func (a *app) watchConfig(ctx context.Context) {
	a.watcher = config.NewWatcher(a.root, func(cfg *config.Config) {
		if err := a.engine.ApplyTunables(engineConfigFrom(cfg)); err != nil {
			slog.Warn("config_reload_not_applied",
				slog.String("error", err.Error()))
		}
	})
	if err := a.watcher.Start(ctx); err != nil {
		slog.Warn("config_watch_disabled",
			slog.String("error", err.Error()))
		a.watcher = nil
	}
}

func engineConfigFrom(cfg *config.Config) search.EngineConfig {
	return search.EngineConfig{
		RRFK:             cfg.Search.RRFK,
		DefaultTopK:      cfg.Search.TopK,
		MaxTopK:          cfg.Search.MaxTopK,
		RetrieverTimeout: cfg.Search.RetrieverTimeout,
		DefaultRadius:    cfg.Expansion.Radius,
		DefaultBudget:    cfg.Expansion.TokenBudget,
		RerankThreshold:  cfg.Search.RerankThreshold,
	}
}

func (a *app) openStores(ctx context.Context) error {
	var err error
	a.units, err = store.NewSQLiteUnitStore(filepath.Join(a.dataDir, unitsDBFile))
	if err != nil {
		return fmt.Errorf("open unit store: %w", err)
	}

	a.vectors, err = store.NewHNSWIndex(store.VectorIndexConfig{
		Dimensions: a.cfg.Index.Dimensions,
		Metric:     a.cfg.Index.Metric,
		M:          a.cfg.Index.M,
		EfSearch:   a.cfg.Index.EfSearch,
	})
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	vectorPath := filepath.Join(a.dataDir, vectorIndexFile)
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := a.vectors.Load(vectorPath); err != nil {
			return fmt.Errorf("load vector index: %w", err)
		}
	}

	a.lexical, err = store.NewLexicalBleve(filepath.Join(a.dataDir, lexicalIndexDir))
	if err != nil {
		return fmt.Errorf("open lexical index: %w", err)
	}

	a.trigrams = store.NewTrigramIndex()
	a.embedder = embed.NewCachedEmbedder(embed.NewHashingEmbedder(), embed.DefaultEmbedCacheSize)

	a.indexer = search.NewIndexer(a.units, a.vectors, a.lexical, a.trigrams, a.embedder)

	// The trigram index lives in memory and is rebuilt from the unit
	// store on every start.
	if err := a.indexer.RebuildDerived(ctx); err != nil {
		return fmt.Errorf("rebuild derived indexes: %w", err)
	}
	return nil
}

func (a *app) buildEngine() error {
	set := search.NewRetrieverSet(a.vectors, a.lexical, a.trigrams, a.units)

	engineCfg := engineConfigFrom(a.cfg)

	var opts []search.EngineOption
	if a.cfg.Cache.Enabled {
		opts = append(opts, search.WithSemanticCache(cache.New(cache.Config{
			ExactThreshold:   a.cfg.Cache.ExactThreshold,
			NearThreshold:    a.cfg.Cache.NearThreshold,
			SuggestThreshold: a.cfg.Cache.SuggestThreshold,
			TTL:              a.cfg.Cache.TTL,
			MaxEntries:       a.cfg.Cache.MaxEntries,
		})))
	}

	engine, err := search.NewEngine(a.units, set, a.embedder, engineCfg, opts...)
	if err != nil {
		return err
	}
	a.engine = engine
	return nil
}

// Save persists the vector index to disk.
func (a *app) Save() error {
	if a.vectors == nil {
		return nil
	}
	return a.vectors.Save(filepath.Join(a.dataDir, vectorIndexFile))
}

// Close releases stores and the directory lock. Safe on a partially
// opened app.
func (a *app) Close() {
	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.trigrams != nil {
		_ = a.trigrams.Close()
	}
	if a.lexical != nil {
		_ = a.lexical.Close()
	}
	if a.vectors != nil {
		_ = a.vectors.Close()
	}
	if a.units != nil {
		_ = a.units.Close()
	}
	if a.lock != nil {
		_ = a.lock.Release()
	}
}
