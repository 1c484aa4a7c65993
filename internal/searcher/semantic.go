package searcher

import (
	"context"
	"fmt"
	"math"

	"github.com/dshills/kraken/pkg/types"
)

// SemanticSearch queries the named vector index and maps hits back to
// entities. Hits with no entity in idToEntity are dropped, since the index
// may lag behind storage, as are hits scoring below threshold.
func (s *Searcher) SemanticSearch(ctx context.Context, query, indexName string, idToEntity map[string]types.Entity, topK int, threshold float64) ([]types.SearchResult, error) {
	if topK <= 0 {
		return []types.SearchResult{}, nil
	}
	hits, err := s.index.Search(ctx, indexName, query, topK)
	if err != nil {
		return nil, fmt.Errorf("semantic search %s: %w", indexName, err)
	}

	results := make([]types.SearchResult, 0, len(hits))
	dropped := 0
	for _, h := range hits {
		e, ok := idToEntity[h.ID]
		if !ok {
			dropped++
			continue
		}
		if h.Score < threshold {
			continue
		}
		results = append(results, types.SearchResult{
			Entity: e,
			Score:  math.Min(math.Max(h.Score, 0), 1),
			Method: types.MethodSemantic,
		})
	}
	if dropped > 0 {
		s.logger.Debug("index hits without a stored entity", "index", indexName, "dropped", dropped)
	}
	return results, nil
}

// EntityMap indexes entities by ID; later duplicates replace earlier ones
func EntityMap(entities []types.Entity) map[string]types.Entity {
	m := make(map[string]types.Entity, len(entities))
	for _, e := range entities {
		m[e.ID] = e
	}
	return m
}
