package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/kraken/internal/config"
	"github.com/dshills/kraken/internal/searcher"
	"github.com/dshills/kraken/pkg/types"
)

var (
	// ErrInvalidConfig is returned when a resolved MatchConfig is out of range
	ErrInvalidConfig = errors.New("invalid match configuration")
	// ErrEmptyQuery is returned for blank queries
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// Lister reads the full entity set for a type
type Lister interface {
	ListAll(ctx context.Context, entityType types.EntityType) ([]types.Entity, error)
}

// Matcher runs one search request in a given mode. *searcher.Searcher implements it.
type Matcher interface {
	Search(ctx context.Context, mode types.Mode, req searcher.Request) ([]types.SearchResult, error)
}

// Observer receives one callback per façade search
type Observer interface {
	ObserveSearch(entityType types.EntityType, mode types.Mode, elapsed time.Duration, results int, err error)
}

// MatchConfig holds the per-entity search parameters
type MatchConfig struct {
	TopK              int
	FuzzyThreshold    int     // 0-100
	SemanticThreshold float64 // 0-1
	FuzzyField        string
	IndexName         string
}

// Validate checks the thresholds and result limit
func (m MatchConfig) Validate() error {
	switch {
	case m.TopK <= 0:
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, m.TopK)
	case m.FuzzyThreshold < 0 || m.FuzzyThreshold > 100:
		return fmt.Errorf("%w: fuzzy threshold %d outside 0-100", ErrInvalidConfig, m.FuzzyThreshold)
	case m.SemanticThreshold < 0 || m.SemanticThreshold > 1:
		return fmt.Errorf("%w: semantic threshold %g outside 0-1", ErrInvalidConfig, m.SemanticThreshold)
	case m.FuzzyField == "" || m.IndexName == "":
		return fmt.Errorf("%w: fuzzy field and index name are required", ErrInvalidConfig)
	}
	return nil
}

// MatchConfigFor resolves the search parameters of entityType from cfg
func MatchConfigFor(entityType types.EntityType, cfg *config.Config) (MatchConfig, error) {
	if cfg == nil {
		return MatchConfig{}, fmt.Errorf("%w: nil configuration", ErrInvalidConfig)
	}
	switch entityType {
	case types.EntityAttribute:
		return MatchConfig{
			TopK:              cfg.Attributes.Technical.DefaultLimit,
			FuzzyThreshold:    cfg.Attributes.Technical.FuzzyThreshold,
			SemanticThreshold: cfg.Attributes.Semantic.SimilarityThreshold,
			FuzzyField:        types.FieldPhysicalName,
			IndexName:         entityType.IndexName(),
		}, nil
	case types.EntityCDE:
		return MatchConfig{
			TopK:              cfg.CDE.DefaultLimit,
			FuzzyThreshold:    cfg.Duplicates.NameSimilarityThreshold,
			SemanticThreshold: cfg.CDE.SimilarityThreshold,
			FuzzyField:        types.FieldBizTerm,
			IndexName:         entityType.IndexName(),
		}, nil
	case types.EntityCatalog:
		return MatchConfig{
			TopK:              cfg.Catalogs.DefaultLimit,
			FuzzyThreshold:    cfg.Duplicates.NameSimilarityThreshold,
			SemanticThreshold: cfg.Catalogs.SimilarityThreshold,
			FuzzyField:        types.FieldDescRaw,
			IndexName:         entityType.IndexName(),
		}, nil
	}
	return MatchConfig{}, fmt.Errorf("%w: %q", types.ErrInvalidEntityType, entityType)
}

// Service is the search façade for one entity type
type Service struct {
	entityType types.EntityType
	store      Lister
	matcher    Matcher
	cfg        *config.Config
	observer   Observer
	logger     *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithObserver reports every search to o
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates the façade for entityType. cfg is read on every call, so
// changes made to it afterwards take effect on the next search.
func New(entityType types.EntityType, store Lister, matcher Matcher, cfg *config.Config, opts ...Option) (*Service, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidEntityType, entityType)
	}
	if store == nil || matcher == nil {
		return nil, errors.New("catalog: store and matcher are required")
	}
	s := &Service{
		entityType: entityType,
		store:      store,
		matcher:    matcher,
		cfg:        cfg,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "catalog", "entity", string(entityType))
	return s, nil
}

// NewAttributes creates the attribute façade
func NewAttributes(store Lister, matcher Matcher, cfg *config.Config, opts ...Option) (*Service, error) {
	return New(types.EntityAttribute, store, matcher, cfg, opts...)
}

// NewCDEs creates the CDE façade
func NewCDEs(store Lister, matcher Matcher, cfg *config.Config, opts ...Option) (*Service, error) {
	return New(types.EntityCDE, store, matcher, cfg, opts...)
}

// NewCatalogs creates the catalog façade
func NewCatalogs(store Lister, matcher Matcher, cfg *config.Config, opts ...Option) (*Service, error) {
	return New(types.EntityCatalog, store, matcher, cfg, opts...)
}

// EntityType returns the entity type this façade searches
func (s *Service) EntityType() types.EntityType {
	return s.entityType
}

// SearchOption adjusts a single call
type SearchOption func(*MatchConfig)

// WithLimit overrides top_k for one call. Non-positive values keep the default.
func WithLimit(n int) SearchOption {
	return func(m *MatchConfig) {
		if n > 0 {
			m.TopK = n
		}
	}
}

// Search loads every entity of the façade's type and ranks them against
// query. Entities are read from storage on each call.
func (s *Service) Search(ctx context.Context, query string, mode types.Mode, opts ...SearchOption) (results []types.SearchResult, err error) {
	start := time.Now()
	defer func() {
		if s.observer != nil {
			s.observer.ObserveSearch(s.entityType, mode, time.Since(start), len(results), err)
		}
	}()

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	match, err := MatchConfigFor(s.entityType, s.cfg)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(&match)
	}
	if err := match.Validate(); err != nil {
		return nil, err
	}

	entities, err := s.store.ListAll(ctx, s.entityType)
	if err != nil {
		return nil, fmt.Errorf("load %s entities: %w", s.entityType, err)
	}

	results, err = s.matcher.Search(ctx, mode, searcher.Request{
		Query:             query,
		Entities:          entities,
		FuzzyField:        match.FuzzyField,
		IndexName:         match.IndexName,
		TopK:              match.TopK,
		FuzzyThreshold:    match.FuzzyThreshold,
		SemanticThreshold: match.SemanticThreshold,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search complete",
		"mode", mode.String(),
		"candidates", len(entities),
		"results", len(results),
		"elapsed", time.Since(start))
	return results, nil
}

// Set groups the three façades
type Set struct {
	Attributes *Service
	CDEs       *Service
	Catalogs   *Service
}

// NewSet creates all three façades over the same store and matcher
func NewSet(store Lister, matcher Matcher, cfg *config.Config, opts ...Option) (*Set, error) {
	attrs, err := NewAttributes(store, matcher, cfg, opts...)
	if err != nil {
		return nil, err
	}
	cdes, err := NewCDEs(store, matcher, cfg, opts...)
	if err != nil {
		return nil, err
	}
	catalogs, err := NewCatalogs(store, matcher, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Set{Attributes: attrs, CDEs: cdes, Catalogs: catalogs}, nil
}

// For returns the façade for entityType
func (s *Set) For(entityType types.EntityType) (*Service, error) {
	switch entityType {
	case types.EntityAttribute:
		return s.Attributes, nil
	case types.EntityCDE:
		return s.CDEs, nil
	case types.EntityCatalog:
		return s.Catalogs, nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrInvalidEntityType, entityType)
}
