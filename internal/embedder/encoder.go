package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/kraken/internal/textnorm"
)

// CacheObserver receives cache hit/miss counts from the encoder
type CacheObserver interface {
	ObserveCache(hits, misses int)
}

// CachedEncoder turns texts into vectors, calling the embedder only for texts
// whose normalized form is not in the cache.
//
// The cache is keyed by (model ID, normalized text); vectors computed by one
// model are never served for another.
type CachedEncoder struct {
	embedder  Embedder
	cache     *DiskCache
	modelID   string
	batchSize int
	normalize bool
	timeout   time.Duration
	observer  CacheObserver
	logger    *slog.Logger
}

// EncoderOption configures a CachedEncoder
type EncoderOption func(*CachedEncoder)

// WithBatchSize sets how many missing texts are sent per backend call
func WithBatchSize(n int) EncoderOption {
	return func(e *CachedEncoder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithNormalize controls L2-normalization of vectors before they are cached
func WithNormalize(normalize bool) EncoderOption {
	return func(e *CachedEncoder) {
		e.normalize = normalize
	}
}

// WithTimeout bounds each Encode call that reaches the backend
func WithTimeout(d time.Duration) EncoderOption {
	return func(e *CachedEncoder) {
		e.timeout = d
	}
}

// WithObserver reports cache hits and misses, e.g. to metrics
func WithObserver(o CacheObserver) EncoderOption {
	return func(e *CachedEncoder) {
		e.observer = o
	}
}

// WithEncoderLogger sets a custom logger
func WithEncoderLogger(logger *slog.Logger) EncoderOption {
	return func(e *CachedEncoder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewCachedEncoder creates an encoder over emb backed by cache
func NewCachedEncoder(emb Embedder, cache *DiskCache, opts ...EncoderOption) (*CachedEncoder, error) {
	if emb == nil {
		return nil, ErrEmbedderRequired
	}
	if cache == nil {
		return nil, ErrCacheRequired
	}

	e := &CachedEncoder{
		embedder:  emb,
		cache:     cache,
		modelID:   ModelID(emb),
		batchSize: DefaultBatchSize,
		normalize: true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.batchSize = min(e.batchSize, MaxBatchSize)
	e.logger = e.logger.With("component", "encoder", "model", e.modelID)
	return e, nil
}

// ModelID returns the identifier folded into every cache key
func (e *CachedEncoder) ModelID() string {
	return e.modelID
}

// Dimension returns the embedder's dimension (0 if not yet known)
func (e *CachedEncoder) Dimension() int {
	return e.embedder.Dimension()
}

// Cache returns the backing cache
func (e *CachedEncoder) Cache() *DiskCache {
	return e.cache
}

// Encode returns one vector per input text, in input order. Only texts missing
// from the cache reach the embedder; the cache is persisted afterwards on a
// best-effort basis. Embedder errors are returned unchanged in kind.
func (e *CachedEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	var missingTexts, missingKeys []string
	queued := make(map[string]struct{})
	hits := 0

	for i, text := range texts {
		key := CacheKey(e.modelID, textnorm.Normalize(text))
		keys[i] = key
		if e.cache.Has(key) {
			hits++
			continue
		}
		if _, ok := queued[key]; ok {
			continue
		}
		queued[key] = struct{}{}
		missingTexts = append(missingTexts, text)
		missingKeys = append(missingKeys, key)
	}

	if e.observer != nil {
		e.observer.ObserveCache(hits, len(texts)-hits)
	}

	if len(missingTexts) > 0 {
		if err := e.fill(ctx, missingTexts, missingKeys); err != nil {
			return nil, err
		}
	}

	out := make([][]float32, len(texts))
	for i, key := range keys {
		vec, ok := e.cache.Get(key)
		if !ok {
			return nil, fmt.Errorf("%w: no vector for text %d after encoding", ErrProviderFailed, i)
		}
		out[i] = vec
	}
	return out, nil
}

// EncodeOne encodes a single text
func (e *CachedEncoder) EncodeOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// fill encodes texts in batches and stores the vectors under keys
func (e *CachedEncoder) fill(ctx context.Context, texts, keys []string) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	stored := 0
	defer func() {
		if stored == 0 {
			return
		}
		if err := e.cache.Save(); err != nil {
			e.logger.Warn("failed to persist embedding cache", "path", e.cache.Path(), "err", err)
		}
	}()

	e.logger.Debug("encoding texts", "missing", len(texts), "batch_size", e.batchSize)

	start := 0
	for _, batch := range textnorm.Chunk(texts, e.batchSize) {
		end := start + len(batch)

		resp, err := e.embedder.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: batch})
		if err != nil {
			return fmt.Errorf("encode texts %d-%d: %w", start, end-1, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(resp.Embeddings), len(batch))
		}

		for j, emb := range resp.Embeddings {
			vec := emb.Vector
			if e.normalize {
				vec = NormalizeVector(vec)
			}
			e.cache.Set(keys[start+j], vec)
			stored++
		}
		start = end
	}
	return nil
}
