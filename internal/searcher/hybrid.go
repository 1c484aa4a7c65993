package searcher

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/kraken/pkg/types"
)

// HybridSearch runs fuzzy and semantic matching over the same entities and
// merges them: highest score first, one result per entity ID, at most TopK.
//
// Fuzzy results are placed before semantic ones ahead of the stable sort, so
// on equal scores the fuzzy result is kept. This ordering rule is inherited
// behavior rather than a deliberate ranking choice; revisit before relying on it.
func (s *Searcher) HybridSearch(ctx context.Context, req Request) ([]types.SearchResult, error) {
	var fuzzy, semantic []types.SearchResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fuzzy, err = s.FuzzySearch(gctx, req.Query, req.Entities, req.FuzzyField, req.TopK, req.FuzzyThreshold)
		return err
	})
	g.Go(func() error {
		var err error
		semantic, err = s.SemanticSearch(gctx, req.Query, req.IndexName, EntityMap(req.Entities), req.TopK, req.SemanticThreshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Merge(req.TopK, fuzzy, semantic), nil
}

// Merge concatenates lists in order, sorts by descending score keeping the
// relative order of equal scores, and keeps the first result per entity ID
// until topK are collected.
func Merge(topK int, lists ...[]types.SearchResult) []types.SearchResult {
	var all []types.SearchResult
	for _, l := range lists {
		all = append(all, l...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score > all[j].Score
	})

	out := make([]types.SearchResult, 0, min(topK, len(all)))
	seen := make(map[string]struct{}, len(all))
	for _, r := range all {
		if len(out) >= topK {
			break
		}
		if _, dup := seen[r.ID()]; dup {
			continue
		}
		seen[r.ID()] = struct{}{}
		out = append(out, r)
	}
	return out
}
