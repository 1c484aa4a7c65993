package vectorindex

import (
	"fmt"
	"sort"
	"strings"
)

// Kind selects an index backend
type Kind uint8

const (
	// KindFlat is exact inner-product search over every stored vector
	KindFlat Kind = iota + 1
	// KindHNSW is approximate search over a hierarchical navigable small-world graph
	KindHNSW
)

// ParseKind maps a configured index type to a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flatip", "flat", "":
		return KindFlat, nil
	case "hnsw":
		return KindHNSW, nil
	default:
		return 0, fmt.Errorf("%w: %q (want FlatIP or HNSW)", ErrUnknownIndexType, s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "FlatIP"
	case KindHNSW:
		return "HNSW"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Neighbor is a raw search hit: a position in insertion order and its inner product
type Neighbor struct {
	Position int
	Score    float32
}

// Index stores vectors by insertion position and answers top-k inner-product queries.
// Implementations are not safe for concurrent mutation; Handle serializes access.
type Index interface {
	Kind() Kind
	Dim() int
	Len() int
	Add(vectors [][]float32) error
	// Search returns at most k neighbors in descending score order. It never
	// returns positions outside [0, Len()).
	Search(query []float32, k int) []Neighbor
	// Vector returns the stored vector at position i
	Vector(i int) []float32
}

// NewIndex creates an empty index of the given kind
func NewIndex(kind Kind, dim int) (Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dim)
	}
	switch kind {
	case KindFlat:
		return NewFlat(dim), nil
	case KindHNSW:
		return NewHNSW(dim, DefaultHNSWConfig()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndexType, kind)
	}
}

func checkDims(dim int, vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d, index has %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

// sortNeighbors orders by descending score, then ascending position
func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Score != ns[j].Score {
			return ns[i].Score > ns[j].Score
		}
		return ns[i].Position < ns[j].Position
	})
}
