package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/kraken/pkg/types"
)

// ErrIndexingInProgress is returned when a preparation is already running
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Source reads the entities to index
type Source interface {
	ListAll(ctx context.Context, entityType types.EntityType) ([]types.Entity, error)
}

// Builder creates named vector indexes. *vectorindex.Manager implements it.
type Builder interface {
	Exists(name string) bool
	Build(ctx context.Context, name string, texts, ids []string, force bool) (bool, error)
}

// Indexer builds the vector index of every entity type from storage
type Indexer struct {
	source  Source
	builder Builder
	lock    IndexLock
	workers int
	logger  *slog.Logger
}

// Option configures an Indexer
type Option func(*Indexer)

// WithWorkers limits how many indexes are prepared concurrently
func WithWorkers(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Indexer) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// New creates an Indexer reading from source and writing through builder
func New(source Source, builder Builder, opts ...Option) *Indexer {
	idx := &Indexer{
		source:  source,
		builder: builder,
		workers: len(types.AllEntityTypes),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = idx.logger.With("component", "indexer")
	return idx
}

// Outcome describes what happened to one index
type Outcome string

const (
	OutcomeBuilt    Outcome = "built"    // Encoded and written
	OutcomeAttached Outcome = "attached" // Already persisted, loaded as is
	OutcomeSkipped  Outcome = "skipped"  // Nothing indexable
)

// Result reports the preparation of one entity type
type Result struct {
	EntityType types.EntityType
	Index      string
	Entities   int // Rows read from storage
	Indexed    int // Rows with indexable text
	Outcome    Outcome
	Duration   time.Duration
}

// Statistics contains statistics about a preparation run
type Statistics struct {
	Results  []Result
	Duration time.Duration
}

// PrepareAll builds the indexes of all entity types. Existing indexes are
// attached unless force is set.
func (idx *Indexer) PrepareAll(ctx context.Context, force bool) (*Statistics, error) {
	return idx.Prepare(ctx, force, types.AllEntityTypes...)
}

// Prepare builds the indexes of the given entity types concurrently
func (idx *Indexer) Prepare(ctx context.Context, force bool, entityTypes ...types.EntityType) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	for _, t := range entityTypes {
		if !t.Valid() {
			return nil, fmt.Errorf("prepare %q: %w", t, types.ErrInvalidEntityType)
		}
	}

	start := time.Now()
	results := make([]Result, len(entityTypes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for i, t := range entityTypes {
		g.Go(func() error {
			res, err := idx.prepareOne(gctx, t, force)
			if err != nil {
				return fmt.Errorf("prepare %s: %w", t, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &Statistics{Results: results, Duration: time.Since(start)}
	idx.logger.Info("indexes prepared", "types", len(results), "duration", stats.Duration)
	return stats, nil
}

func (idx *Indexer) prepareOne(ctx context.Context, t types.EntityType, force bool) (Result, error) {
	start := time.Now()
	name := t.IndexName()
	res := Result{EntityType: t, Index: name}

	if !force && idx.builder.Exists(name) {
		if _, err := idx.builder.Build(ctx, name, nil, nil, false); err != nil {
			return res, err
		}
		res.Outcome = OutcomeAttached
		res.Duration = time.Since(start)
		return res, nil
	}

	entities, err := idx.source.ListAll(ctx, t)
	if err != nil {
		return res, err
	}
	texts, ids := Corpus(entities)
	res.Entities = len(entities)
	res.Indexed = len(ids)

	if len(ids) == 0 {
		idx.logger.Warn("no indexable entities", "entity", string(t))
		res.Outcome = OutcomeSkipped
		res.Duration = time.Since(start)
		return res, nil
	}

	ok, err := idx.builder.Build(ctx, name, texts, ids, force)
	if err != nil {
		return res, err
	}
	res.Outcome = OutcomeBuilt
	if !ok {
		res.Outcome = OutcomeSkipped
	}
	res.Duration = time.Since(start)

	idx.logger.Info("index prepared",
		"index", name,
		"entities", res.Entities,
		"indexed", res.Indexed,
		"outcome", string(res.Outcome),
		"duration", res.Duration)
	return res, nil
}

// IndexText returns the text embedded for an entity: its raw description,
// falling back to the type's name field when the description is blank.
func IndexText(e types.Entity) string {
	if text := strings.TrimSpace(e.Field(types.FieldDescRaw)); text != "" {
		return text
	}
	var fallback string
	switch e.Type {
	case types.EntityAttribute:
		fallback = types.FieldPhysicalName
	case types.EntityCDE:
		fallback = types.FieldBizTerm
	case types.EntityCatalog:
		fallback = types.FieldTable
	}
	return strings.TrimSpace(e.Field(fallback))
}

// Corpus returns parallel text and id slices for entities. Entities with no
// indexable text are left out.
func Corpus(entities []types.Entity) (texts, ids []string) {
	texts = make([]string, 0, len(entities))
	ids = make([]string, 0, len(entities))
	for _, e := range entities {
		text := IndexText(e)
		if text == "" || e.ID == "" {
			continue
		}
		texts = append(texts, text)
		ids = append(ids, e.ID)
	}
	return texts, ids
}
