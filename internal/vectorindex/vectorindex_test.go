package vectorindex_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kraken/internal/embedder"
	"github.com/dshills/kraken/internal/embedder/embeddertest"
	"github.com/dshills/kraken/internal/vectorindex"
)

var vocab = []string{"customer", "postal", "zip", "code", "email", "address", "order", "date"}

func newManager(t *testing.T, dir string, stub *embeddertest.KeywordEmbedder, opts ...vectorindex.Option) *vectorindex.Manager {
	t.Helper()
	enc, err := embedder.NewCachedEncoder(stub, embedder.NewMemoryCache())
	require.NoError(t, err)
	m, err := vectorindex.NewManager(dir, enc, opts...)
	require.NoError(t, err)
	return m
}

func TestPostalCodeScenario(t *testing.T) {
	for _, kind := range []vectorindex.Kind{vectorindex.KindFlat, vectorindex.KindHNSW} {
		t.Run(kind.String(), func(t *testing.T) {
			ctx := context.Background()
			m := newManager(t, t.TempDir(), embeddertest.NewKeywordEmbedder(vocab...), vectorindex.WithKind(kind))

			ok, err := m.Build(ctx, "attributes_desc",
				[]string{"customer postal code", "customer email address"}, []string{"1", "2"}, false)
			require.NoError(t, err)
			require.True(t, ok)

			hits, err := m.Search(ctx, "attributes_desc", "customer zip code", 1)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "1", hits[0].ID)
			assert.Greater(t, hits[0].Score, 0.5)
		})
	}
}

func TestExactCosineWithKeywordEmbedder(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir(), embeddertest.NewKeywordEmbedder(vocab...))

	_, err := m.Build(ctx, "x", []string{"postal code", "postal", "email"}, []string{"a", "b", "c"}, false)
	require.NoError(t, err)

	hits, err := m.Search(ctx, "x", "Postal Code", 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, "b", hits[1].ID)
	assert.InDelta(t, 0.70710678, hits[1].Score, 1e-6)
	assert.Equal(t, "c", hits[2].ID)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-6)
}

func TestIndexRoundTrip(t *testing.T) {
	for _, kind := range []vectorindex.Kind{vectorindex.KindFlat, vectorindex.KindHNSW} {
		t.Run(kind.String(), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			texts := []string{"customer postal code", "customer email address", "order date", "zip code", "email"}
			ids := []string{"10", "20", "30", "40", "50"}

			m1 := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...), vectorindex.WithKind(kind))
			_, err := m1.Build(ctx, "cdes_desc", texts, ids, false)
			require.NoError(t, err)
			before, err := m1.Search(ctx, "cdes_desc", "customer zip code", 3)
			require.NoError(t, err)

			for _, ext := range []string{".index", ".ids", ".meta.json"} {
				assert.FileExists(t, filepath.Join(dir, "cdes_desc"+ext))
			}

			m2 := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...))
			_, attached := m2.Handle("cdes_desc")
			require.False(t, attached)

			after, err := m2.Search(ctx, "cdes_desc", "customer zip code", 3)
			require.NoError(t, err)
			require.Len(t, after, len(before))
			for i := range before {
				assert.Equal(t, before[i].ID, after[i].ID)
				assert.InDelta(t, before[i].Score, after[i].Score, 1e-6)
			}

			h, ok := m2.Handle("cdes_desc")
			require.True(t, ok)
			meta := h.Meta()
			assert.Equal(t, "cdes_desc", meta.IndexName)
			assert.Equal(t, len(vocab)+1, meta.EmbeddingDim)
			assert.Equal(t, kind.String(), meta.IndexType)
			assert.Equal(t, vectorindex.BackendVersion(), meta.BackendVersion)
			assert.Equal(t, "keyword:keyword-v1", meta.ModelID)
			assert.False(t, meta.BuiltAt.IsZero())
		})
	}
}

func TestAddAppends(t *testing.T) {
	for _, kind := range []vectorindex.Kind{vectorindex.KindFlat, vectorindex.KindHNSW} {
		t.Run(kind.String(), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			m := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...), vectorindex.WithKind(kind))

			_, err := m.Build(ctx, "a", []string{"customer postal code", "customer email address"}, []string{"1", "2"}, false)
			require.NoError(t, err)

			require.NoError(t, m.Add(ctx, "a", []string{"order date"}, []string{"3"}))

			h, _ := m.Handle("a")
			assert.Equal(t, 3, h.Len())
			assert.Equal(t, []string{"1", "2", "3"}, h.IDs())

			hits, err := m.Search(ctx, "a", "order date", 1)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "3", hits[0].ID)
			assert.Equal(t, 2, hits[0].Position)

			fresh := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...))
			reopened, err := fresh.Open("a")
			require.NoError(t, err)
			assert.Equal(t, 3, reopened.Len())
			assert.Equal(t, 3, reopened.Meta().Count)
		})
	}
}

func TestAddErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newManager(t, dir, embeddertest.NewKeywordEmbedder("postal", "code"))

	err := m.Add(ctx, "missing", []string{"x"}, []string{"1"})
	assert.ErrorIs(t, err, vectorindex.ErrNotLoaded)

	_, err = m.Build(ctx, "a", []string{"postal"}, []string{"1"}, false)
	require.NoError(t, err)

	err = m.Add(ctx, "a", []string{"x", "y"}, []string{"1"})
	assert.ErrorIs(t, err, vectorindex.ErrLengthMismatch)

	wider := newManager(t, dir, embeddertest.NewKeywordEmbedder("postal", "code", "zip"))
	_, err = wider.Open("a")
	require.NoError(t, err)
	err = wider.Add(ctx, "a", []string{"zip"}, []string{"2"})
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)

	h, _ := wider.Handle("a")
	assert.Equal(t, 1, h.Len(), "failed add leaves the index unchanged")
}

func TestEmptyCorpusSearch(t *testing.T) {
	stub := embeddertest.NewKeywordEmbedder(vocab...)
	m := newManager(t, t.TempDir(), stub)

	hits, err := m.Search(context.Background(), "never_built", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 0, stub.Calls())

	_, err = m.Open("never_built")
	assert.ErrorIs(t, err, vectorindex.ErrIndexNotFound)
}

func TestMalformedBuildLeavesNoFiles(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		ids   []string
	}{
		{"length mismatch", []string{"a", "b"}, []string{"1"}},
		{"empty texts", nil, []string{"1"}},
		{"empty both", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			stub := embeddertest.NewKeywordEmbedder(vocab...)
			m := newManager(t, dir, stub)

			ok, err := m.Build(context.Background(), "bad", tt.texts, tt.ids, false)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, 0, stub.Calls())

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestBuildExistingWithoutForce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...))
	_, err := first.Build(ctx, "a", []string{"postal"}, []string{"1"}, false)
	require.NoError(t, err)

	stub := embeddertest.NewKeywordEmbedder(vocab...)
	second := newManager(t, dir, stub)
	ok, err := second.Build(ctx, "a", []string{"email", "date"}, []string{"8", "9"}, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, stub.Calls())
	h, _ := second.Handle("a")
	assert.Equal(t, []string{"1"}, h.IDs())

	ok, err = second.Build(ctx, "a", []string{"email", "date"}, []string{"8", "9"}, true)
	require.NoError(t, err)
	assert.True(t, ok)
	h, _ = second.Handle("a")
	assert.Equal(t, []string{"8", "9"}, h.IDs())
}

func TestStatusStaleness(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writer := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...))
	reader := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...))

	st, err := reader.Status("a")
	require.NoError(t, err)
	assert.False(t, st.Persisted)
	assert.False(t, st.Loaded)

	_, err = writer.Build(ctx, "a", []string{"postal"}, []string{"1"}, false)
	require.NoError(t, err)
	_, err = reader.Open("a")
	require.NoError(t, err)

	st, err = reader.Status("a")
	require.NoError(t, err)
	assert.True(t, st.Loaded)
	assert.False(t, st.Stale)

	require.NoError(t, writer.Add(ctx, "a", []string{"email"}, []string{"2"}))

	st, err = reader.Status("a")
	require.NoError(t, err)
	assert.True(t, st.Stale)
	assert.Equal(t, 1, st.LoadedCount)
	assert.Equal(t, 2, st.Meta.Count)

	_, err = reader.Reload("a")
	require.NoError(t, err)
	st, err = reader.Status("a")
	require.NoError(t, err)
	assert.False(t, st.Stale)
	assert.Equal(t, 2, st.LoadedCount)

	names, err := reader.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}

func TestCorruptFilesRejected(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...))
	_, err := m.Build(ctx, "a", []string{"postal", "email"}, []string{"1", "2"}, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ids"), []byte(`["1"]`), 0o644))
	_, err = m.Reload("a")
	assert.ErrorIs(t, err, vectorindex.ErrCorruptIndex)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.index"), []byte("junk"), 0o644))
	_, err = m.Reload("a")
	assert.ErrorIs(t, err, vectorindex.ErrCorruptIndex)
}

func TestSearchBatch(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir(), embeddertest.NewKeywordEmbedder(vocab...))
	_, err := m.Build(ctx, "a", []string{"postal code", "email address", "order date"}, []string{"1", "2", "3"}, false)
	require.NoError(t, err)

	res, err := m.SearchBatch(ctx, "a", []string{"email", "date"}, 1)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "2", res[0][0].ID)
	assert.Equal(t, "3", res[1][0].ID)

	none, err := m.Search(ctx, "a", "postal", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestManagerValidation(t *testing.T) {
	enc, err := embedder.NewCachedEncoder(embeddertest.NewKeywordEmbedder(), embedder.NewMemoryCache())
	require.NoError(t, err)

	_, err = vectorindex.NewManager("", enc)
	assert.ErrorIs(t, err, vectorindex.ErrDirRequired)

	_, err = vectorindex.NewManager(t.TempDir(), nil)
	assert.ErrorIs(t, err, vectorindex.ErrEncoderRequired)

	_, err = vectorindex.NewManager(t.TempDir(), enc, vectorindex.WithKind(vectorindex.Kind(9)))
	assert.ErrorIs(t, err, vectorindex.ErrUnknownIndexType)

	m, err := vectorindex.NewManager(t.TempDir(), enc)
	require.NoError(t, err)
	_, err = m.Build(context.Background(), "../escape", []string{"a"}, []string{"1"}, false)
	assert.ErrorIs(t, err, vectorindex.ErrInvalidName)
}

// gatedEncoder blocks the first Encode call after arm until release is closed
type gatedEncoder struct {
	vectorindex.Encoder
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedEncoder(t *testing.T, stub *embeddertest.KeywordEmbedder) *gatedEncoder {
	t.Helper()
	enc, err := embedder.NewCachedEncoder(stub, embedder.NewMemoryCache())
	require.NoError(t, err)
	return &gatedEncoder{Encoder: enc, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.Encoder.Encode(ctx, texts)
}

func TestAddWaitingOnRebuildAppendsToRebuiltIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	enc := newGatedEncoder(t, embeddertest.NewKeywordEmbedder(vocab...))
	m, err := vectorindex.NewManager(dir, enc)
	require.NoError(t, err)

	_, err = m.Build(ctx, "a", []string{"postal", "email"}, []string{"o1", "o2"}, false)
	require.NoError(t, err)

	enc.armed.Store(true)
	var wg sync.WaitGroup
	var buildErr, addErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, buildErr = m.Build(ctx, "a", []string{"order date"}, []string{"n1"}, true)
	}()
	<-enc.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		addErr = m.Add(ctx, "a", []string{"zip code"}, []string{"a1"})
	}()
	time.Sleep(50 * time.Millisecond)
	close(enc.release)
	wg.Wait()

	require.NoError(t, buildErr)
	require.NoError(t, addErr)

	h, ok := m.Handle("a")
	require.True(t, ok)
	assert.Equal(t, []string{"n1", "a1"}, h.IDs())

	reopened, err := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...)).Open("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "a1"}, reopened.IDs())
	assert.Equal(t, 2, reopened.Meta().Count)
}

func TestAddReloadsHandleRewrittenByAnotherManager(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...))
	second := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...))

	_, err := first.Build(ctx, "a", []string{"postal", "email"}, []string{"1", "2"}, false)
	require.NoError(t, err)
	_, err = second.Open("a")
	require.NoError(t, err)

	require.NoError(t, first.Add(ctx, "a", []string{"order"}, []string{"3"}))
	require.NoError(t, second.Add(ctx, "a", []string{"date"}, []string{"4"}))

	h, _ := second.Handle("a")
	assert.Equal(t, []string{"1", "2", "3", "4"}, h.IDs())

	reopened, err := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...)).Open("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4"}, reopened.IDs())
}

func TestForcedRebuildKeepsCommitMarker(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newManager(t, dir, embeddertest.NewKeywordEmbedder(vocab...))

	_, err := m.Build(ctx, "a", []string{"postal"}, []string{"1"}, false)
	require.NoError(t, err)
	_, err = m.Build(ctx, "a", []string{"email", "date"}, []string{"8", "9"}, true)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"a.index", "a.ids", "a.meta.json", "a.lock"}, names, "no temp files left behind")
}
