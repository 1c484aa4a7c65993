package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kraken/internal/config"
	"github.com/dshills/kraken/internal/searcher"
	"github.com/dshills/kraken/pkg/types"
)

type fakeLister struct {
	entities map[types.EntityType][]types.Entity
	calls    int
	err      error
}

func (f *fakeLister) ListAll(ctx context.Context, t types.EntityType) ([]types.Entity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entities[t], nil
}

type fakeMatcher struct {
	SearchFunc func(ctx context.Context, mode types.Mode, req searcher.Request) ([]types.SearchResult, error)
	requests   []searcher.Request
	modes      []types.Mode
}

func (f *fakeMatcher) Search(ctx context.Context, mode types.Mode, req searcher.Request) ([]types.SearchResult, error) {
	f.requests = append(f.requests, req)
	f.modes = append(f.modes, mode)
	if f.SearchFunc != nil {
		return f.SearchFunc(ctx, mode, req)
	}
	return []types.SearchResult{}, nil
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []observation
}

type observation struct {
	entity  types.EntityType
	mode    types.Mode
	results int
	err     error
}

func (o *recordingObserver) ObserveSearch(e types.EntityType, m types.Mode, _ time.Duration, n int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, observation{e, m, n, err})
}

func TestMatchConfigFor(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		entity types.EntityType
		want   MatchConfig
	}{
		{types.EntityAttribute, MatchConfig{TopK: 10, FuzzyThreshold: 70, SemanticThreshold: 0.65, FuzzyField: "physical_name", IndexName: "attributes_desc"}},
		{types.EntityCDE, MatchConfig{TopK: 10, FuzzyThreshold: 80, SemanticThreshold: 0.65, FuzzyField: "biz_term", IndexName: "cdes_desc"}},
		{types.EntityCatalog, MatchConfig{TopK: 10, FuzzyThreshold: 80, SemanticThreshold: 0.65, FuzzyField: "desc_raw", IndexName: "catalogs_desc"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.entity), func(t *testing.T) {
			got, err := MatchConfigFor(tt.entity, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, got.Validate())
		})
	}

	_, err := MatchConfigFor("table", cfg)
	assert.ErrorIs(t, err, types.ErrInvalidEntityType)

	_, err = MatchConfigFor(types.EntityCDE, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMatchConfigValidate(t *testing.T) {
	valid := MatchConfig{TopK: 5, FuzzyThreshold: 70, SemanticThreshold: 0.5, FuzzyField: "f", IndexName: "i"}

	tests := []struct {
		name   string
		mutate func(*MatchConfig)
	}{
		{"zero top_k", func(m *MatchConfig) { m.TopK = 0 }},
		{"negative fuzzy", func(m *MatchConfig) { m.FuzzyThreshold = -1 }},
		{"fuzzy above 100", func(m *MatchConfig) { m.FuzzyThreshold = 101 }},
		{"semantic above 1", func(m *MatchConfig) { m.SemanticThreshold = 1.5 }},
		{"negative semantic", func(m *MatchConfig) { m.SemanticThreshold = -0.1 }},
		{"missing field", func(m *MatchConfig) { m.FuzzyField = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			assert.ErrorIs(t, m.Validate(), ErrInvalidConfig)
		})
	}

	boundary := valid
	boundary.FuzzyThreshold, boundary.SemanticThreshold = 100, 1
	assert.NoError(t, boundary.Validate())
}

func TestServiceSearch(t *testing.T) {
	ctx := context.Background()
	entities := []types.Entity{
		{Type: types.EntityCDE, ID: "CDE-1", Fields: map[string]string{types.FieldBizTerm: "Postal Code"}},
	}

	t.Run("builds request from configuration", func(t *testing.T) {
		store := &fakeLister{entities: map[types.EntityType][]types.Entity{types.EntityCDE: entities}}
		matcher := &fakeMatcher{}
		svc, err := NewCDEs(store, matcher, config.Default())
		require.NoError(t, err)

		_, err = svc.Search(ctx, "postal", types.ModeFuzzy)
		require.NoError(t, err)

		require.Len(t, matcher.requests, 1)
		req := matcher.requests[0]
		assert.Equal(t, "postal", req.Query)
		assert.Equal(t, entities, req.Entities)
		assert.Equal(t, types.FieldBizTerm, req.FuzzyField)
		assert.Equal(t, "cdes_desc", req.IndexName)
		assert.Equal(t, 10, req.TopK)
		assert.Equal(t, 80, req.FuzzyThreshold)
		assert.Equal(t, types.ModeFuzzy, matcher.modes[0])
	})

	t.Run("limit override", func(t *testing.T) {
		matcher := &fakeMatcher{}
		svc, err := NewCDEs(&fakeLister{}, matcher, config.Default())
		require.NoError(t, err)

		_, err = svc.Search(ctx, "postal", types.ModeHybrid, WithLimit(3))
		require.NoError(t, err)
		_, err = svc.Search(ctx, "postal", types.ModeHybrid, WithLimit(0))
		require.NoError(t, err)

		assert.Equal(t, 3, matcher.requests[0].TopK)
		assert.Equal(t, 10, matcher.requests[1].TopK)
	})

	t.Run("reads storage on every call", func(t *testing.T) {
		store := &fakeLister{}
		svc, err := NewCatalogs(store, &fakeMatcher{}, config.Default())
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := svc.Search(ctx, "country", types.ModeFuzzy)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, store.calls)
	})

	t.Run("empty query", func(t *testing.T) {
		store := &fakeLister{}
		svc, err := NewAttributes(store, &fakeMatcher{}, config.Default())
		require.NoError(t, err)

		_, err = svc.Search(ctx, "   ", types.ModeHybrid)
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.Zero(t, store.calls)
	})

	t.Run("thresholds validated at use", func(t *testing.T) {
		cfg := config.Default()
		matcher := &fakeMatcher{}
		svc, err := NewAttributes(&fakeLister{}, matcher, cfg)
		require.NoError(t, err)

		cfg.Attributes.Semantic.SimilarityThreshold = 1.2
		_, err = svc.Search(ctx, "zip", types.ModeSemantic)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Empty(t, matcher.requests)
	})

	t.Run("storage error", func(t *testing.T) {
		boom := errors.New("disk gone")
		svc, err := NewAttributes(&fakeLister{err: boom}, &fakeMatcher{}, config.Default())
		require.NoError(t, err)

		_, err = svc.Search(ctx, "zip", types.ModeFuzzy)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("observer", func(t *testing.T) {
		obs := &recordingObserver{}
		matcher := &fakeMatcher{SearchFunc: func(ctx context.Context, mode types.Mode, req searcher.Request) ([]types.SearchResult, error) {
			return []types.SearchResult{{Entity: entities[0], Score: 0.9, Method: types.MethodFuzzy}}, nil
		}}
		svc, err := NewCDEs(&fakeLister{}, matcher, config.Default(), WithObserver(obs))
		require.NoError(t, err)

		_, err = svc.Search(ctx, "postal", types.ModeFuzzy)
		require.NoError(t, err)
		_, err = svc.Search(ctx, "", types.ModeSemantic)
		require.Error(t, err)

		require.Len(t, obs.calls, 2)
		assert.Equal(t, observation{types.EntityCDE, types.ModeFuzzy, 1, nil}, obs.calls[0])
		assert.ErrorIs(t, obs.calls[1].err, ErrEmptyQuery)
	})
}

func TestNewValidation(t *testing.T) {
	_, err := New("table", &fakeLister{}, &fakeMatcher{}, config.Default())
	assert.ErrorIs(t, err, types.ErrInvalidEntityType)

	_, err = New(types.EntityCDE, nil, &fakeMatcher{}, config.Default())
	assert.Error(t, err)
}

func TestSetFor(t *testing.T) {
	set, err := NewSet(&fakeLister{}, &fakeMatcher{}, config.Default())
	require.NoError(t, err)

	for _, et := range types.AllEntityTypes {
		svc, err := set.For(et)
		require.NoError(t, err)
		assert.Equal(t, et, svc.EntityType())
	}
	_, err = set.For("table")
	assert.ErrorIs(t, err, types.ErrInvalidEntityType)
}
