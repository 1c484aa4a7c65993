package embedder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kraken/internal/embedder"
	"github.com/dshills/kraken/internal/embedder/embeddertest"
)

type cacheCounter struct {
	hits, misses int
}

func (c *cacheCounter) ObserveCache(hits, misses int) {
	c.hits += hits
	c.misses += misses
}

func TestCachedEncoderOnlyEncodesMissing(t *testing.T) {
	ctx := context.Background()
	stub := embeddertest.NewKeywordEmbedder("postal", "code", "date")
	counter := &cacheCounter{}
	enc, err := embedder.NewCachedEncoder(stub, embedder.NewMemoryCache(), embedder.WithObserver(counter))
	require.NoError(t, err)

	first, err := enc.Encode(ctx, []string{"postal code", "Postal  Code", "date"})
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, first[0], first[1], "normalized duplicates share a vector")
	assert.Equal(t, []string{"postal code", "date"}, stub.Sent())

	second, err := enc.Encode(ctx, []string{"date", "code", "postal code"})
	require.NoError(t, err)
	assert.Equal(t, first[2], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, []string{"postal code", "date", "code"}, stub.Sent(), "only the new text reached the backend")
	assert.Equal(t, 2, stub.Calls())

	assert.Equal(t, 2, counter.hits)
	assert.Equal(t, 4, counter.misses)
}

func TestCachedEncoderNormalizesVectors(t *testing.T) {
	stub := embeddertest.NewKeywordEmbedder("a", "b")
	enc, err := embedder.NewCachedEncoder(stub, embedder.NewMemoryCache())
	require.NoError(t, err)

	v, err := enc.EncodeOne(context.Background(), "a a b b")
	require.NoError(t, err)
	assert.InDelta(t, 0.7071, v[0], 1e-3)
	assert.InDelta(t, 0.7071, v[1], 1e-3)
}

func TestCachedEncoderBatches(t *testing.T) {
	stub := embeddertest.NewKeywordEmbedder("x")
	enc, err := embedder.NewCachedEncoder(stub, embedder.NewMemoryCache(), embedder.WithBatchSize(2))
	require.NoError(t, err)

	_, err = enc.Encode(context.Background(), []string{"t1", "t2", "t3", "t4", "t5"})
	require.NoError(t, err)
	assert.Equal(t, 3, stub.Calls())
}

func TestCachedEncoderModelIsPartOfKey(t *testing.T) {
	ctx := context.Background()
	cache := embedder.NewMemoryCache()

	v1 := embeddertest.NewKeywordEmbedder("postal")
	enc1, err := embedder.NewCachedEncoder(v1, cache)
	require.NoError(t, err)
	_, err = enc1.Encode(ctx, []string{"postal"})
	require.NoError(t, err)

	v2 := embeddertest.NewKeywordEmbedder("postal").WithModel("keyword-v2")
	enc2, err := embedder.NewCachedEncoder(v2, cache)
	require.NoError(t, err)
	_, err = enc2.Encode(ctx, []string{"postal"})
	require.NoError(t, err)

	assert.Equal(t, 1, v2.Calls(), "a different model must not reuse cached vectors")
	assert.Equal(t, 2, cache.Len())
}

func TestCachedEncoderPropagatesBackendError(t *testing.T) {
	stub := embeddertest.NewKeywordEmbedder("x")
	backendErr := errors.New("rate limited")
	stub.FailWith(backendErr)

	enc, err := embedder.NewCachedEncoder(stub, embedder.NewMemoryCache())
	require.NoError(t, err)

	_, err = enc.Encode(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, backendErr)
	assert.Equal(t, 0, enc.Cache().Len())
}

func TestCachedEncoderPersistsAndSwallowsSaveErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("persists across instances", func(t *testing.T) {
		path := filepath.Join(dir, embedder.DefaultCacheFile)
		stub := embeddertest.NewKeywordEmbedder("x")
		enc, err := embedder.NewCachedEncoder(stub, embedder.LoadDiskCache(path, nil))
		require.NoError(t, err)
		_, err = enc.Encode(ctx, []string{"x"})
		require.NoError(t, err)

		stub2 := embeddertest.NewKeywordEmbedder("x")
		enc2, err := embedder.NewCachedEncoder(stub2, embedder.LoadDiskCache(path, nil))
		require.NoError(t, err)
		_, err = enc2.Encode(ctx, []string{"x"})
		require.NoError(t, err)
		assert.Equal(t, 0, stub2.Calls())
	})

	t.Run("unwritable cache path", func(t *testing.T) {
		blocker := filepath.Join(dir, "not-a-dir")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		stub := embeddertest.NewKeywordEmbedder("x")
		enc, err := embedder.NewCachedEncoder(stub, embedder.LoadDiskCache(filepath.Join(blocker, embedder.DefaultCacheFile), nil))
		require.NoError(t, err)

		vecs, err := enc.Encode(ctx, []string{"x"})
		require.NoError(t, err)
		assert.Len(t, vecs, 1)
	})
}

func TestNewCachedEncoderValidation(t *testing.T) {
	_, err := embedder.NewCachedEncoder(nil, embedder.NewMemoryCache())
	assert.ErrorIs(t, err, embedder.ErrEmbedderRequired)

	_, err = embedder.NewCachedEncoder(embeddertest.NewKeywordEmbedder(), nil)
	assert.ErrorIs(t, err, embedder.ErrCacheRequired)

	enc, err := embedder.NewCachedEncoder(embeddertest.NewKeywordEmbedder(), embedder.NewMemoryCache())
	require.NoError(t, err)
	out, err := enc.Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, "keyword:keyword-v1", enc.ModelID())
}
