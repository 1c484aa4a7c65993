package searcher

import (
	"context"
	"fmt"

	"github.com/dshills/kraken/pkg/types"
)

// Strategy is one way of answering a Request
type Strategy interface {
	Mode() types.Mode
	Search(ctx context.Context, s *Searcher, req Request) ([]types.SearchResult, error)
}

type fuzzyStrategy struct{}

func (fuzzyStrategy) Mode() types.Mode { return types.ModeFuzzy }

func (fuzzyStrategy) Search(ctx context.Context, s *Searcher, req Request) ([]types.SearchResult, error) {
	return s.FuzzySearch(ctx, req.Query, req.Entities, req.FuzzyField, req.TopK, req.FuzzyThreshold)
}

type semanticStrategy struct{}

func (semanticStrategy) Mode() types.Mode { return types.ModeSemantic }

func (semanticStrategy) Search(ctx context.Context, s *Searcher, req Request) ([]types.SearchResult, error) {
	return s.SemanticSearch(ctx, req.Query, req.IndexName, EntityMap(req.Entities), req.TopK, req.SemanticThreshold)
}

type hybridStrategy struct{}

func (hybridStrategy) Mode() types.Mode { return types.ModeHybrid }

func (hybridStrategy) Search(ctx context.Context, s *Searcher, req Request) ([]types.SearchResult, error) {
	return s.HybridSearch(ctx, req)
}

// StrategyFor returns the strategy implementing mode
func StrategyFor(mode types.Mode) (Strategy, error) {
	switch mode {
	case types.ModeFuzzy:
		return fuzzyStrategy{}, nil
	case types.ModeSemantic:
		return semanticStrategy{}, nil
	case types.ModeHybrid:
		return hybridStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidMode, int(mode))
	}
}
