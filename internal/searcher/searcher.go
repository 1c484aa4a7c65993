package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/dshills/kraken/internal/vectorindex"
	"github.com/dshills/kraken/pkg/types"
)

// Defaults for Searcher options
const (
	DefaultCacheSize   = 4096
	DefaultParallelMin = 2000
	DefaultWorkers     = 8
)

var (
	ErrIndexRequired  = errors.New("vector index is required")
	ErrInvalidRequest = errors.New("invalid search request")
)

// Index is the nearest-neighbor lookup used by semantic search
type Index interface {
	Search(ctx context.Context, name, query string, topK int) ([]vectorindex.Hit, error)
}

// Request carries one search over a full entity set
type Request struct {
	Query             string
	Entities          []types.Entity
	FuzzyField        string // Field scored by the fuzzy matcher
	IndexName         string // Vector index queried by the semantic matcher
	TopK              int
	FuzzyThreshold    int     // 0-100
	SemanticThreshold float64 // 0-1
}

func (r Request) validate() error {
	if r.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidRequest, r.TopK)
	}
	if r.FuzzyThreshold < 0 || r.FuzzyThreshold > 100 {
		return fmt.Errorf("%w: fuzzy threshold %d outside 0-100", ErrInvalidRequest, r.FuzzyThreshold)
	}
	if r.SemanticThreshold < 0 || r.SemanticThreshold > 1 {
		return fmt.Errorf("%w: semantic threshold %g outside 0-1", ErrInvalidRequest, r.SemanticThreshold)
	}
	return nil
}

// Searcher runs fuzzy, semantic and hybrid matching. It is safe for concurrent use.
type Searcher struct {
	index       Index
	memo        *lru.Cache[string, string]
	pool        *ants.Pool
	workers     int
	parallelMin int
	cacheSize   int
	logger      *slog.Logger
}

// Option configures a Searcher
type Option func(*Searcher)

// WithCacheSize sets how many candidate normalizations are memoized
func WithCacheSize(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// WithParallelism scores candidate sets of at least minCandidates on a pool
// of workers goroutines. workers <= 1 disables parallel scoring.
func WithParallelism(minCandidates, workers int) Option {
	return func(s *Searcher) {
		if minCandidates > 0 {
			s.parallelMin = minCandidates
		}
		s.workers = workers
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearcher creates a Searcher over index. Call Close to release its workers.
func NewSearcher(index Index, opts ...Option) (*Searcher, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	s := &Searcher{
		index:       index,
		workers:     DefaultWorkers,
		parallelMin: DefaultParallelMin,
		cacheSize:   DefaultCacheSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "searcher")

	memo, err := lru.New[string, string](s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create normalization cache: %w", err)
	}
	s.memo = memo

	if s.workers > 1 {
		pool, err := ants.NewPool(s.workers)
		if err != nil {
			return nil, fmt.Errorf("create scoring pool: %w", err)
		}
		s.pool = pool
	}
	return s, nil
}

// Search dispatches req to the strategy for mode
func (s *Searcher) Search(ctx context.Context, mode types.Mode, req Request) ([]types.SearchResult, error) {
	strategy, err := StrategyFor(mode)
	if err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return strategy.Search(ctx, s, req)
}

// Close releases the scoring pool
func (s *Searcher) Close() {
	if s.pool != nil {
		s.pool.Release()
	}
}
