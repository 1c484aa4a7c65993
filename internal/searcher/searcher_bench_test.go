package searcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/dshills/kraken/pkg/types"
)

func benchCandidates(n int) []types.Entity {
	out := make([]types.Entity, n)
	for i := range out {
		out[i] = attr(fmt.Sprint(i), fmt.Sprintf("customer_%d_postal_code_%d", i%113, i))
	}
	return out
}

func BenchmarkWRatio(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = WRatio("customer zip code", "customer_postal_code_12")
	}
}

func BenchmarkFuzzySearch(b *testing.B) {
	candidates := benchCandidates(5000)
	for _, workers := range []int{0, 8} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			s, err := NewSearcher(&fakeIndex{}, WithParallelism(100, workers))
			if err != nil {
				b.Fatal(err)
			}
			defer s.Close()
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.FuzzySearch(ctx, "customer zip code", candidates, types.FieldPhysicalName, 10, 60); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
