package searcher

import (
	"context"
	"sort"
	"sync"

	"github.com/dshills/kraken/internal/textnorm"
	"github.com/dshills/kraken/pkg/types"
)

type scored struct {
	entity types.Entity
	score  int
}

// FuzzySearch scores query against the field of each candidate with WRatio.
// Candidates without the field are skipped. It returns at most topK results
// scoring at least threshold (0-100), best first, with ties in candidate
// order. Scores are reported in [0,1].
func (s *Searcher) FuzzySearch(ctx context.Context, query string, candidates []types.Entity, field string, topK, threshold int) ([]types.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []types.SearchResult{}, nil
	}

	eligible := make([]types.Entity, 0, len(candidates))
	for _, c := range candidates {
		if c.HasField(field) {
			eligible = append(eligible, c)
		}
	}

	q := textnorm.Normalize(query)
	scores := make([]int, len(eligible))
	if s.pool != nil && len(eligible) >= s.parallelMin {
		s.scoreParallel(q, eligible, field, scores)
	} else {
		for i, c := range eligible {
			scores[i] = WRatio(q, s.normalized(c.Field(field)))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept := make([]scored, 0, len(eligible))
	for i, c := range eligible {
		if scores[i] >= threshold {
			kept = append(kept, scored{entity: c, score: scores[i]})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}

	results := make([]types.SearchResult, len(kept))
	for i, k := range kept {
		results[i] = types.SearchResult{
			Entity: k.entity,
			Score:  float64(k.score) / 100,
			Method: types.MethodFuzzy,
		}
	}
	return results, nil
}

// scoreParallel fills scores using the worker pool, one chunk per worker
func (s *Searcher) scoreParallel(q string, eligible []types.Entity, field string, scores []int) {
	chunk := (len(eligible) + s.workers - 1) / s.workers
	var wg sync.WaitGroup
	for start := 0; start < len(eligible); start += chunk {
		end := min(start+chunk, len(eligible))
		work := func() {
			defer wg.Done()
			for i := start; i < end; i++ {
				scores[i] = WRatio(q, s.normalized(eligible[i].Field(field)))
			}
		}
		wg.Add(1)
		if err := s.pool.Submit(work); err != nil {
			s.logger.Debug("scoring pool unavailable, scoring inline", "err", err)
			work()
		}
	}
	wg.Wait()
}

// normalized memoizes textnorm.Normalize for candidate text
func (s *Searcher) normalized(text string) string {
	if v, ok := s.memo.Get(text); ok {
		return v
	}
	v := textnorm.Normalize(text)
	s.memo.Add(text, v)
	return v
}
