// Package app wires the configuration into storage, embedding, indexing and
// search components. Both the CLI and the MCP server are built on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/kraken/internal/catalog"
	"github.com/dshills/kraken/internal/config"
	"github.com/dshills/kraken/internal/embedder"
	"github.com/dshills/kraken/internal/indexer"
	"github.com/dshills/kraken/internal/ingest"
	"github.com/dshills/kraken/internal/mcp"
	"github.com/dshills/kraken/internal/metrics"
	"github.com/dshills/kraken/internal/searcher"
	"github.com/dshills/kraken/internal/storage"
	"github.com/dshills/kraken/internal/vectorindex"
	"github.com/dshills/kraken/pkg/types"
)

// App holds the wired components
type App struct {
	Config   *config.Config
	Store    *storage.SQLiteStorage
	Cache    *embedder.DiskCache
	Encoder  *embedder.CachedEncoder
	Indexes  *vectorindex.Manager
	Searcher *searcher.Searcher
	Catalog  *catalog.Set
	Indexer  *indexer.Indexer
	Ingester *ingest.Ingester
	Metrics  *metrics.Metrics

	embedder embedder.Embedder
	logger   *slog.Logger
}

type options struct {
	logger   *slog.Logger
	embedder embedder.Embedder
	metrics  *metrics.Metrics
}

// Option configures New
type Option func(*options)

// WithLogger sets the logger passed to every component
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEmbedder replaces the provider built from the configuration
func WithEmbedder(e embedder.Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// WithMetrics records into m instead of a fresh registry
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New opens the database and builds every component from cfg.
// The caller must Close the returned App.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil configuration", config.ErrInvalidConfig)
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New(nil)
	}

	kind, err := cfg.IndexKind()
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Metrics: o.metrics, logger: o.logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	if cfg.Files.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Files.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	a.Store, err = storage.NewSQLiteStorage(cfg.Files.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a.embedder = o.embedder
	if a.embedder == nil {
		a.embedder, err = embedder.New(cfg.EmbedderConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Files.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	a.Cache = embedder.LoadDiskCache(cfg.CachePath(), o.logger)
	a.Encoder, err = embedder.NewCachedEncoder(a.embedder, a.Cache,
		embedder.WithBatchSize(cfg.Embedding.BatchSize),
		embedder.WithNormalize(cfg.Embedding.Normalize),
		embedder.WithTimeout(cfg.Embedding.Timeout),
		embedder.WithObserver(a.Metrics),
		embedder.WithEncoderLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encoder: %w", err)
	}

	a.Indexes, err = vectorindex.NewManager(cfg.Index.Dir, a.Encoder,
		vectorindex.WithKind(kind),
		vectorindex.WithObserver(a.Metrics),
		vectorindex.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index manager: %w", err)
	}

	a.Searcher, err = searcher.NewSearcher(a.Indexes,
		searcher.WithCacheSize(cfg.Index.CacheSize),
		searcher.WithParallelism(cfg.Fuzzy.ParallelMin, cfg.Fuzzy.Workers),
		searcher.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize searcher: %w", err)
	}

	a.Catalog, err = catalog.NewSet(a.Store, a.Searcher, cfg,
		catalog.WithObserver(a.Metrics),
		catalog.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	a.Indexer = indexer.New(a.Store, a.Indexes, indexer.WithLogger(o.logger))
	a.Ingester = ingest.New(a.Store, ingest.WithIndex(a.Indexes), ingest.WithLogger(o.logger))

	ok = true
	return a, nil
}

// Prepare attaches or builds the vector indexes of every entity type
func (a *App) Prepare(ctx context.Context, force bool) (*indexer.Statistics, error) {
	return a.Indexer.PrepareAll(ctx, force)
}

// Service returns the search façade for entityType
func (a *App) Service(entityType types.EntityType) (*catalog.Service, error) {
	return a.Catalog.For(entityType)
}

// MCPServer builds the MCP tool server over the app's components
func (a *App) MCPServer() (*mcp.Server, error) {
	searchers := make(map[types.EntityType]mcp.EntitySearcher, len(types.AllEntityTypes))
	for _, t := range types.AllEntityTypes {
		svc, err := a.Catalog.For(t)
		if err != nil {
			return nil, err
		}
		searchers[t] = svc
	}
	return mcp.NewServer(mcp.Deps{
		Searchers: searchers,
		Indexer:   a.Indexer,
		Store:     a.Store,
		Indexes:   a.Indexes,
		Cache:     a.Cache,
		Metrics:   a.Metrics,
		Logger:    a.logger,
	})
}

// Close persists the embedding cache and releases every component
func (a *App) Close() error {
	var errs []error
	if a.Searcher != nil {
		a.Searcher.Close()
	}
	if a.Cache != nil {
		if err := a.Cache.Save(); err != nil {
			a.logger.Warn("failed to save embedding cache", "error", err)
		}
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
