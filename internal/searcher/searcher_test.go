package searcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kraken/internal/vectorindex"
	"github.com/dshills/kraken/pkg/types"
)

// fakeIndex returns canned hits per query
type fakeIndex struct {
	hits  map[string][]vectorindex.Hit
	err   error
	calls int
}

func (f *fakeIndex) Search(ctx context.Context, name, query string, topK int) ([]vectorindex.Hit, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	hits := f.hits[query]
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func attr(id, name string) types.Entity {
	e := types.Entity{Type: types.EntityAttribute, ID: id, Fields: map[string]string{types.FieldAttrID: id}}
	if name != "" {
		e.Fields[types.FieldPhysicalName] = name
	}
	return e
}

func newTestSearcher(t *testing.T, idx Index, opts ...Option) *Searcher {
	t.Helper()
	s, err := NewSearcher(idx, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func ids(results []types.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID()
	}
	return out
}

func TestWRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"this is a test", "this is a test", 100},
		{"this is a test", "this is a test!", 97},
		{"fuzzy wuzzy was a bear", "wuzzy fuzzy was a bear", 95},
		{"new york mets", "new york mets vs atlanta braves", 90},
		{"número", "numero", 83},
		{"descripcion", "descripción", 91},
		{"código postal", "codigo postal", 92},
		{"", "anything", 0},
		{"anything", "", 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s|%s", tt.a, tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, WRatio(tt.a, tt.b))
			assert.Equal(t, tt.want, WRatio(tt.b, tt.a), "symmetric")
		})
	}

	for _, pair := range [][2]string{{"postal code", "zip"}, {"a", "abcdefghijklmnopqrstuvwxyz"}, {"customer id", "id customer"}} {
		got := WRatio(pair[0], pair[1])
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, 100)
	}
}

func TestIndelCountsRunes(t *testing.T) {
	assert.Equal(t, 2, indel([]rune("número"), []rune("numero")))
	assert.Equal(t, 0, indel([]rune("año"), []rune("año")))

	// more distinct runes than fit in a byte
	long := make([]rune, 300)
	for i := range long {
		long[i] = rune(0x4e00 + i)
	}
	shorter := append(append([]rune(nil), long[:100]...), long[101:]...)
	assert.Equal(t, 1, indel(long, shorter))
	assert.Equal(t, 4, lcs([]rune("kitten"), []rune("sitting")))
	assert.Equal(t, 5, indel([]rune("kitten"), []rune("sitting")))
}

func TestFuzzySearch(t *testing.T) {
	s := newTestSearcher(t, &fakeIndex{})
	candidates := []types.Entity{
		attr("1", "email"),
		attr("2", "Postal Code"),
		attr("3", ""),
		attr("4", "postal codes"),
		attr("5", "postal code"),
	}

	res, err := s.FuzzySearch(context.Background(), "postal  CODE", candidates, types.FieldPhysicalName, 10, 70)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "5", "4"}, ids(res), "ties keep candidate order")

	for _, r := range res {
		assert.Equal(t, types.MethodFuzzy, r.Method)
		assert.GreaterOrEqual(t, r.Score, 0.70)
		assert.NoError(t, r.Validate())
	}
	assert.Equal(t, 1.0, res[0].Score)

	top1, err := s.FuzzySearch(context.Background(), "postal code", candidates, types.FieldPhysicalName, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(top1))

	all, err := s.FuzzySearch(context.Background(), "postal code", candidates, types.FieldPhysicalName, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4, "candidate without the field is excluded")
}

func TestFuzzySearchParallelMatchesSequential(t *testing.T) {
	candidates := make([]types.Entity, 500)
	for i := range candidates {
		candidates[i] = attr(fmt.Sprint(i), fmt.Sprintf("customer field %d code", i%37))
	}

	seq := newTestSearcher(t, &fakeIndex{}, WithParallelism(1, 0))
	par := newTestSearcher(t, &fakeIndex{}, WithParallelism(10, 4), WithCacheSize(16))

	want, err := seq.FuzzySearch(context.Background(), "customer field 7", candidates, types.FieldPhysicalName, 25, 50)
	require.NoError(t, err)
	got, err := par.FuzzySearch(context.Background(), "customer field 7", candidates, types.FieldPhysicalName, 25, 50)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NotEmpty(t, got)
}

func TestSemanticSearch(t *testing.T) {
	idx := &fakeIndex{hits: map[string][]vectorindex.Hit{
		"zip": {
			{ID: "1", Score: 0.91, Position: 0},
			{ID: "ghost", Score: 0.9, Position: 5},
			{ID: "2", Score: 0.66, Position: 1},
			{ID: "3", Score: 0.4, Position: 2},
		},
	}}
	s := newTestSearcher(t, idx)
	entities := EntityMap([]types.Entity{attr("1", "a"), attr("2", "b"), attr("3", "c")})

	res, err := s.SemanticSearch(context.Background(), "zip", "attributes_desc", entities, 10, 0.65)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(res))
	for _, r := range res {
		assert.Equal(t, types.MethodSemantic, r.Method)
		assert.GreaterOrEqual(t, r.Score, 0.65)
	}

	idx.err = errors.New("backend down")
	_, err = s.SemanticSearch(context.Background(), "zip", "attributes_desc", entities, 10, 0.65)
	assert.ErrorIs(t, err, idx.err)
}

func TestMerge(t *testing.T) {
	r := func(id string, score float64, m types.Method) types.SearchResult {
		return types.SearchResult{Entity: attr(id, id), Score: score, Method: m}
	}
	fuzzy := []types.SearchResult{
		r("a", 0.80, types.MethodFuzzy),
		r("b", 0.70, types.MethodFuzzy),
	}
	semantic := []types.SearchResult{
		r("a", 0.90, types.MethodSemantic),
		r("b", 0.70, types.MethodSemantic),
		r("c", 0.60, types.MethodSemantic),
	}

	got := Merge(10, fuzzy, semantic)
	require.Len(t, got, 3)

	assert.Equal(t, "a", got[0].ID())
	assert.Equal(t, 0.90, got[0].Score, "higher of the two scores wins")
	assert.Equal(t, types.MethodSemantic, got[0].Method)

	assert.Equal(t, "b", got[1].ID())
	assert.Equal(t, types.MethodFuzzy, got[1].Method, "fuzzy wins ties")

	assert.Equal(t, []string{"a", "b"}, ids(Merge(2, fuzzy, semantic)))
	assert.Empty(t, Merge(5))
}

func TestHybridSearch(t *testing.T) {
	entities := []types.Entity{
		attr("1", "postal code"),
		attr("2", "zip"),
		attr("3", "email address"),
	}
	idx := &fakeIndex{hits: map[string][]vectorindex.Hit{
		"postal code": {
			{ID: "2", Score: 0.9, Position: 1},
			{ID: "1", Score: 0.7, Position: 0},
		},
	}}
	s := newTestSearcher(t, idx)

	req := Request{
		Query:             "postal code",
		Entities:          entities,
		FuzzyField:        types.FieldPhysicalName,
		IndexName:         "attributes_desc",
		TopK:              10,
		FuzzyThreshold:    70,
		SemanticThreshold: 0.65,
	}
	res, err := s.HybridSearch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(res))
	assert.Equal(t, types.MethodFuzzy, res[0].Method)
	assert.Equal(t, 1.0, res[0].Score)
	assert.Equal(t, types.MethodSemantic, res[1].Method)

	idx.err = errors.New("backend down")
	_, err = s.HybridSearch(context.Background(), req)
	assert.Error(t, err)
}

func TestSearchDispatch(t *testing.T) {
	idx := &fakeIndex{hits: map[string][]vectorindex.Hit{"zip": {{ID: "2", Score: 0.8}}}}
	s := newTestSearcher(t, idx)
	req := Request{
		Query:             "zip",
		Entities:          []types.Entity{attr("1", "postal code"), attr("2", "zip")},
		FuzzyField:        types.FieldPhysicalName,
		IndexName:         "attributes_desc",
		TopK:              5,
		FuzzyThreshold:    70,
		SemanticThreshold: 0.5,
	}

	res, err := s.Search(context.Background(), types.ModeFuzzy, req)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.calls, "fuzzy mode never touches the index")
	require.Len(t, res, 1)
	assert.Equal(t, types.MethodFuzzy, res[0].Method)

	res, err = s.Search(context.Background(), types.ModeSemantic, req)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, types.MethodSemantic, res[0].Method)

	_, err = s.Search(context.Background(), types.Mode(42), req)
	assert.ErrorIs(t, err, types.ErrInvalidMode)

	bad := []Request{
		{TopK: 0},
		{TopK: 1, FuzzyThreshold: 101},
		{TopK: 1, SemanticThreshold: 1.5},
	}
	for _, b := range bad {
		_, err := s.Search(context.Background(), types.ModeHybrid, b)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
}

func TestStrategyFor(t *testing.T) {
	for _, m := range []types.Mode{types.ModeHybrid, types.ModeFuzzy, types.ModeSemantic} {
		st, err := StrategyFor(m)
		require.NoError(t, err)
		assert.Equal(t, m, st.Mode())
	}
}

func TestNewSearcherRequiresIndex(t *testing.T) {
	_, err := NewSearcher(nil)
	assert.ErrorIs(t, err, ErrIndexRequired)
}
