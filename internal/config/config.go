package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/kraken/internal/embedder"
	"github.com/dshills/kraken/internal/fsutil"
	"github.com/dshills/kraken/internal/vectorindex"
)

// Environment variables that override file settings
const (
	EnvConfig            = "KRAKEN_CONFIG"
	EnvDataDir           = "KRAKEN_DATA_DIR"
	EnvDBPath            = "KRAKEN_DB_PATH"
	EnvIndexDir          = "KRAKEN_INDEX_DIR"
	EnvIndexType         = "KRAKEN_INDEX_TYPE"
	EnvEmbeddingProvider = embedder.EnvProvider
	EnvEmbeddingModel    = "KRAKEN_EMBEDDING_MODEL"
	EnvEmbeddingBaseURL  = "KRAKEN_EMBEDDING_BASE_URL"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the in-memory representation of kraken.yaml
type Config struct {
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Files      FilesConfig      `yaml:"files"`
	Attributes AttributesConfig `yaml:"attributes"`
	CDE        CDEConfig        `yaml:"cde"`
	Catalogs   CatalogsConfig   `yaml:"catalogs"`
	Duplicates DuplicatesConfig `yaml:"duplicates"`
	Fuzzy      FuzzyConfig      `yaml:"fuzzy"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// EmbeddingConfig selects and tunes the embedding provider
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider,omitempty"` // empty: detect from environment
	ModelName  string        `yaml:"model_name,omitempty"`
	BaseURL    string        `yaml:"base_url,omitempty"`
	APIKey     string        `yaml:"api_key,omitempty"`
	Device     string        `yaml:"device,omitempty"` // informational; remote providers choose their own
	BatchSize  int           `yaml:"batch_size"`
	Dimension  int           `yaml:"dimension,omitempty"`
	Normalize  bool          `yaml:"normalize"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// IndexConfig controls the vector indexes
type IndexConfig struct {
	Type      string `yaml:"type"`
	Dir       string `yaml:"dir"`
	CacheSize int    `yaml:"cache_size"`
}

// FilesConfig holds data locations
type FilesConfig struct {
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`
	RawDir  string `yaml:"raw_dir"`
}

type AttributesConfig struct {
	Technical TechnicalConfig `yaml:"technical"`
	Semantic  SemanticConfig  `yaml:"semantic"`
}

type TechnicalConfig struct {
	DefaultLimit   int `yaml:"default_limit"`
	FuzzyThreshold int `yaml:"fuzzy_threshold"`
}

type SemanticConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type CDEConfig struct {
	DefaultLimit        int     `yaml:"default_limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type CatalogsConfig struct {
	DefaultLimit        int     `yaml:"default_limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type DuplicatesConfig struct {
	NameSimilarityThreshold int `yaml:"name_similarity_threshold"`
}

// FuzzyConfig controls parallel fuzzy scoring
type FuzzyConfig struct {
	ParallelMin int `yaml:"parallel_min"`
	Workers     int `yaml:"workers"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Device:     "cpu",
			BatchSize:  embedder.DefaultBatchSize,
			Normalize:  true,
			Timeout:    60 * time.Second,
			MaxRetries: 1,
		},
		Index: IndexConfig{
			Type:      "FlatIP",
			Dir:       filepath.Join("data", "indices"),
			CacheSize: 10000,
		},
		Files: FilesConfig{
			DataDir: "data",
			DBPath:  filepath.Join("data", "kraken.db"),
			RawDir:  filepath.Join("data", "raw"),
		},
		Attributes: AttributesConfig{
			Technical: TechnicalConfig{DefaultLimit: 10, FuzzyThreshold: 70},
			Semantic:  SemanticConfig{SimilarityThreshold: 0.65},
		},
		CDE:        CDEConfig{DefaultLimit: 10, SimilarityThreshold: 0.65},
		Catalogs:   CatalogsConfig{DefaultLimit: 10, SimilarityThreshold: 0.65},
		Duplicates: DuplicatesConfig{NameSimilarityThreshold: 80},
		Fuzzy:      FuzzyConfig{ParallelMin: 2000, Workers: 8},
		Metrics:    MetricsConfig{Addr: ":9090"},
	}
}

// Load builds the effective configuration: defaults, overlaid by the YAML
// file at path (or $KRAKEN_CONFIG when path is empty), overlaid by
// environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: invalid YAML in %s: %v", ErrInvalidConfig, path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv sets variables from a .env file without overriding the
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if !fsutil.Exists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("cannot load %s: %w", path, err)
	}
	return nil
}

// Save writes cfg as YAML to path, replacing it atomically
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config dir: %w", err)
	}
	return fsutil.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Files.DataDir, EnvDataDir)
	set(&c.Files.DBPath, EnvDBPath)
	set(&c.Index.Dir, EnvIndexDir)
	set(&c.Index.Type, EnvIndexType)
	set(&c.Embedding.Provider, EnvEmbeddingProvider)
	set(&c.Embedding.ModelName, EnvEmbeddingModel)
	set(&c.Embedding.BaseURL, EnvEmbeddingBaseURL)
}

// Validate rejects settings the search core cannot run with
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if _, err := vectorindex.ParseKind(c.Index.Type); err != nil {
		errs = append(errs, err)
	}
	check(c.Embedding.BatchSize > 0, "embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	check(c.Embedding.Dimension >= 0, "embedding.dimension must not be negative, got %d", c.Embedding.Dimension)
	check(c.Embedding.Timeout >= 0, "embedding.timeout must not be negative, got %s", c.Embedding.Timeout)
	check(c.Index.Dir != "", "index.dir is required")
	check(c.Index.CacheSize > 0, "index.cache_size must be positive, got %d", c.Index.CacheSize)
	check(c.Files.DBPath != "", "files.db_path is required")

	limits := map[string]int{
		"attributes.technical.default_limit": c.Attributes.Technical.DefaultLimit,
		"cde.default_limit":                  c.CDE.DefaultLimit,
		"catalogs.default_limit":             c.Catalogs.DefaultLimit,
	}
	for name, v := range limits {
		check(v > 0, "%s must be positive, got %d", name, v)
	}

	fuzzy := map[string]int{
		"attributes.technical.fuzzy_threshold": c.Attributes.Technical.FuzzyThreshold,
		"duplicates.name_similarity_threshold": c.Duplicates.NameSimilarityThreshold,
	}
	for name, v := range fuzzy {
		check(v >= 0 && v <= 100, "%s must be within 0-100, got %d", name, v)
	}

	semantic := map[string]float64{
		"attributes.semantic.similarity_threshold": c.Attributes.Semantic.SimilarityThreshold,
		"cde.similarity_threshold":                 c.CDE.SimilarityThreshold,
		"catalogs.similarity_threshold":            c.Catalogs.SimilarityThreshold,
	}
	for name, v := range semantic {
		check(v >= 0 && v <= 1, "%s must be within 0-1, got %g", name, v)
	}

	check(c.Fuzzy.Workers >= 0, "fuzzy.workers must not be negative, got %d", c.Fuzzy.Workers)
	check(!c.Metrics.Enabled || c.Metrics.Addr != "", "metrics.addr is required when metrics are enabled")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// IndexKind returns the configured vector index backend
func (c *Config) IndexKind() (vectorindex.Kind, error) {
	return vectorindex.ParseKind(c.Index.Type)
}

// EmbedderConfig maps the embedding section onto the provider factory config
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:   c.Embedding.Provider,
		Model:      c.Embedding.ModelName,
		APIKey:     c.Embedding.APIKey,
		BaseURL:    c.Embedding.BaseURL,
		Dimension:  c.Embedding.Dimension,
		Timeout:    c.Embedding.Timeout,
		MaxRetries: c.Embedding.MaxRetries,
	}
}

// CachePath is the embedding cache file inside the data directory
func (c *Config) CachePath() string {
	return filepath.Join(c.Files.DataDir, embedder.DefaultCacheFile)
}
