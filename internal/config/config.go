package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
// Values are applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/empire-search/config.yaml)
//  3. Project config (.empire-search.yaml in the project root)
//  4. Environment variables (EMPIRE_SEARCH_*)
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Expansion ExpansionConfig `yaml:"expansion" json:"expansion"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// IndexConfig locates and tunes the on-disk indexes.
type IndexConfig struct {
	// Dir is the directory holding the unit store, vector index, and
	// lexical index. Empty means <project root>/.empire-search.
	Dir string `yaml:"dir" json:"dir"`

	// Dimensions is the embedding width. Must match the embedder.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// Metric is the vector distance metric: "cosine" or "l2".
	Metric string `yaml:"metric" json:"metric"`

	// M and EfSearch tune the HNSW graph. Zero takes library defaults.
	M        int `yaml:"m" json:"m"`
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// SearchConfig tunes retrieval and fusion.
type SearchConfig struct {
	// RRFK is the rank fusion smoothing constant. Default 60, the
	// value used by Azure AI Search and OpenSearch.
	RRFK int `yaml:"rrf_k" json:"rrf_k"`

	// TopK is the default result count; MaxTopK caps per-request asks.
	TopK    int `yaml:"top_k" json:"top_k"`
	MaxTopK int `yaml:"max_top_k" json:"max_top_k"`

	// RetrieverTimeout bounds each retrieval signal per query.
	RetrieverTimeout time.Duration `yaml:"retriever_timeout" json:"retriever_timeout"`

	// FuzzyThreshold is the minimum trigram similarity for fuzzy hits.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`

	// RerankThreshold drops reranked results scoring below it.
	RerankThreshold float64 `yaml:"rerank_threshold" json:"rerank_threshold"`
}

// CacheConfig tunes the semantic result cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Tier thresholds on cosine similarity of query embeddings.
	ExactThreshold   float64 `yaml:"exact_threshold" json:"exact_threshold"`
	NearThreshold    float64 `yaml:"near_threshold" json:"near_threshold"`
	SuggestThreshold float64 `yaml:"suggest_threshold" json:"suggest_threshold"`

	TTL        time.Duration `yaml:"ttl" json:"ttl"`
	MaxEntries int           `yaml:"max_entries" json:"max_entries"`
}

// ExpansionConfig tunes context expansion.
type ExpansionConfig struct {
	// Radius is the default number of neighbor units on each side.
	Radius int `yaml:"radius" json:"radius"`

	// TokenBudget caps the expanded context per request.
	TokenBudget int `yaml:"token_budget" json:"token_budget"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format" json:"format"`
}

// NewConfig creates a Config with the documented defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Dir:        "",
			Dimensions: 256,
			Metric:     "cosine",
			M:          16,
			EfSearch:   20,
		},
		Search: SearchConfig{
			RRFK:             60,
			TopK:             10,
			MaxTopK:          100,
			RetrieverTimeout: 800 * time.Millisecond,
			FuzzyThreshold:   0.3,
			RerankThreshold:  0.5,
		},
		Cache: CacheConfig{
			Enabled:          true,
			ExactThreshold:   0.98,
			NearThreshold:    0.93,
			SuggestThreshold: 0.88,
			TTL:              time.Hour,
			MaxEntries:       1024,
		},
		Expansion: ExpansionConfig{
			Radius:      2,
			TokenBudget: 4000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file,
// honoring XDG_CONFIG_HOME when set.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "empire-search", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "empire-search", "config.yaml")
	}
	return filepath.Join(home, ".config", "empire-search", "config.yaml")
}

// Load loads configuration for the given project directory, applying
// user config, project config, and environment overrides on top of the
// defaults, then validates the result.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("load user config: %w", err)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ProjectConfigPath returns the path of the project config file inside
// dir, preferring .yaml over .yml, or "" when neither exists.
func ProjectConfigPath(dir string) string {
	yamlPath := filepath.Join(dir, ".empire-search.yaml")
	if fileExists(yamlPath) {
		return yamlPath
	}
	ymlPath := filepath.Join(dir, ".empire-search.yml")
	if fileExists(ymlPath) {
		return ymlPath
	}
	return ""
}

func (c *Config) loadFromDir(dir string) error {
	path := ProjectConfigPath(dir)
	if path == "" {
		// No project config is fine, defaults apply.
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML reads a YAML file and merges its non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other onto c. Booleans with a
// meaningful false (cache.enabled) only merge when a sibling field in
// the same section was set.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Index.Dir != "" {
		c.Index.Dir = other.Index.Dir
	}
	if other.Index.Dimensions != 0 {
		c.Index.Dimensions = other.Index.Dimensions
	}
	if other.Index.Metric != "" {
		c.Index.Metric = other.Index.Metric
	}
	if other.Index.M != 0 {
		c.Index.M = other.Index.M
	}
	if other.Index.EfSearch != 0 {
		c.Index.EfSearch = other.Index.EfSearch
	}

	if other.Search.RRFK != 0 {
		c.Search.RRFK = other.Search.RRFK
	}
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.MaxTopK != 0 {
		c.Search.MaxTopK = other.Search.MaxTopK
	}
	if other.Search.RetrieverTimeout != 0 {
		c.Search.RetrieverTimeout = other.Search.RetrieverTimeout
	}
	if other.Search.FuzzyThreshold != 0 {
		c.Search.FuzzyThreshold = other.Search.FuzzyThreshold
	}
	if other.Search.RerankThreshold != 0 {
		c.Search.RerankThreshold = other.Search.RerankThreshold
	}

	cacheTouched := other.Cache.ExactThreshold != 0 || other.Cache.NearThreshold != 0 ||
		other.Cache.SuggestThreshold != 0 || other.Cache.TTL != 0 || other.Cache.MaxEntries != 0
	if cacheTouched || other.Cache.Enabled {
		c.Cache.Enabled = other.Cache.Enabled
	}
	if other.Cache.ExactThreshold != 0 {
		c.Cache.ExactThreshold = other.Cache.ExactThreshold
	}
	if other.Cache.NearThreshold != 0 {
		c.Cache.NearThreshold = other.Cache.NearThreshold
	}
	if other.Cache.SuggestThreshold != 0 {
		c.Cache.SuggestThreshold = other.Cache.SuggestThreshold
	}
	if other.Cache.TTL != 0 {
		c.Cache.TTL = other.Cache.TTL
	}
	if other.Cache.MaxEntries != 0 {
		c.Cache.MaxEntries = other.Cache.MaxEntries
	}

	if other.Expansion.Radius != 0 {
		c.Expansion.Radius = other.Expansion.Radius
	}
	if other.Expansion.TokenBudget != 0 {
		c.Expansion.TokenBudget = other.Expansion.TokenBudget
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Format != "" {
		c.Logging.Format = other.Logging.Format
	}
}

// applyEnvOverrides applies EMPIRE_SEARCH_* environment overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EMPIRE_SEARCH_INDEX_DIR"); v != "" {
		c.Index.Dir = v
	}
	if v := os.Getenv("EMPIRE_SEARCH_RRF_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFK = k
		}
	}
	if v := os.Getenv("EMPIRE_SEARCH_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.TopK = k
		}
	}
	if v := os.Getenv("EMPIRE_SEARCH_RETRIEVER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Search.RetrieverTimeout = d
		}
	}
	if v := os.Getenv("EMPIRE_SEARCH_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("EMPIRE_SEARCH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Cache.TTL = d
		}
	}
	if v := os.Getenv("EMPIRE_SEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EMPIRE_SEARCH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate checks the final configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.Index.Dimensions <= 0 {
		return fmt.Errorf("index.dimensions must be positive, got %d", c.Index.Dimensions)
	}
	validMetrics := map[string]bool{"cosine": true, "l2": true}
	if !validMetrics[strings.ToLower(c.Index.Metric)] {
		return fmt.Errorf("index.metric must be 'cosine' or 'l2', got %q", c.Index.Metric)
	}

	if c.Search.RRFK < 1 {
		return fmt.Errorf("search.rrf_k must be >= 1, got %d", c.Search.RRFK)
	}
	if c.Search.TopK < 1 {
		return fmt.Errorf("search.top_k must be >= 1, got %d", c.Search.TopK)
	}
	if c.Search.MaxTopK < c.Search.TopK {
		return fmt.Errorf("search.max_top_k (%d) must be >= search.top_k (%d)",
			c.Search.MaxTopK, c.Search.TopK)
	}
	if c.Search.FuzzyThreshold < 0 || c.Search.FuzzyThreshold > 1 {
		return fmt.Errorf("search.fuzzy_threshold must be in [0, 1], got %g", c.Search.FuzzyThreshold)
	}
	if c.Search.RerankThreshold < 0 || c.Search.RerankThreshold > 1 {
		return fmt.Errorf("search.rerank_threshold must be in [0, 1], got %g", c.Search.RerankThreshold)
	}

	// Tier thresholds must be ordered exact >= near >= suggestion.
	thresholds := []struct {
		name  string
		value float64
	}{
		{"cache.exact_threshold", c.Cache.ExactThreshold},
		{"cache.near_threshold", c.Cache.NearThreshold},
		{"cache.suggest_threshold", c.Cache.SuggestThreshold},
	}
	for _, t := range thresholds {
		if t.value <= 0 || t.value > 1 || math.IsNaN(t.value) {
			return fmt.Errorf("%s must be in (0, 1], got %g", t.name, t.value)
		}
	}
	if c.Cache.ExactThreshold < c.Cache.NearThreshold ||
		c.Cache.NearThreshold < c.Cache.SuggestThreshold {
		return fmt.Errorf("cache thresholds must be ordered exact >= near >= suggestion, got %g/%g/%g",
			c.Cache.ExactThreshold, c.Cache.NearThreshold, c.Cache.SuggestThreshold)
	}

	if c.Expansion.Radius < 0 {
		return fmt.Errorf("expansion.radius must be non-negative, got %d", c.Expansion.Radius)
	}
	if c.Expansion.TokenBudget < 1 {
		return fmt.Errorf("expansion.token_budget must be >= 1, got %d", c.Expansion.TokenBudget)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", c.Logging.Format)
	}

	return nil
}

// IndexDir resolves the effective index directory for a project root.
func (c *Config) IndexDir(projectRoot string) string {
	if c.Index.Dir != "" {
		return c.Index.Dir
	}
	return filepath.Join(projectRoot, ".empire-search")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory
// or a project config file. Falls back to startDir itself.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	current := absDir
	for {
		if dirExists(filepath.Join(current, ".git")) || ProjectConfigPath(current) != "" {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
