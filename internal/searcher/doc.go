// Package searcher ranks catalog entities against a free-text query.
//
// Three strategies are available, selected by types.Mode:
//   - Fuzzy: WRatio string similarity over one field of every candidate
//   - Semantic: cosine similarity from a vector index
//   - Hybrid (default): both, merged and deduplicated by entity ID
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(indexManager,
//	    searcher.WithCacheSize(cfg.Index.CacheSize),
//	    searcher.WithParallelism(cfg.Fuzzy.ParallelMin, cfg.Fuzzy.Workers))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	results, err := s.Search(ctx, types.ModeHybrid, searcher.Request{
//	    Query:             "customer zip code",
//	    Entities:          attributes,
//	    FuzzyField:        types.FieldPhysicalName,
//	    IndexName:         "attributes_desc",
//	    TopK:              10,
//	    FuzzyThreshold:    70,
//	    SemanticThreshold: 0.65,
//	})
//
// # Fuzzy Matching
//
// The query and each candidate are normalized with textnorm before scoring.
// WRatio returns an integer from 0 to 100 and takes the best of:
//
//   - ratio: normalized indel similarity
//   - token sort and token set ratios, scaled by 0.95
//   - partial ratios, used when one string is at least 1.5 times longer,
//     scaled by 0.9 (or 0.6 beyond 8 times longer)
//
// Candidates lacking the field are skipped. Scores below the threshold are
// dropped and the rest are reported divided by 100. Large candidate sets
// are scored on a worker pool with results identical to sequential scoring.
//
// # Semantic Matching
//
// The query goes to the named vector index. Hits whose ID is not among the
// supplied entities are dropped, which covers an index that is ahead of or
// behind storage. Hits below the threshold are dropped.
//
// # Hybrid Merge
//
// Fuzzy and semantic run concurrently over the same entities. The fuzzy list
// is placed first, then both are stable-sorted by descending score and the
// first result per entity ID is kept until TopK results are collected. A
// fuzzy and a semantic hit for one entity never both appear; on equal
// scores the fuzzy hit is kept.
//
// A failure in either matcher fails the hybrid search.
package searcher
