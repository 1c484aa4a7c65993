package vectorindex

import (
	"container/heap"
	"math"
	"math/rand/v2"
)

const maxHNSWLevel = 16

// HNSWConfig holds the graph construction parameters
type HNSWConfig struct {
	M              int // links per node above layer 0; layer 0 keeps 2*M
	EfConstruction int
	EfSearch       int
	Seed           uint64
}

// DefaultHNSWConfig returns M=32, efConstruction=40, efSearch=16
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{M: 32, EfConstruction: 40, EfSearch: 16, Seed: 0x6b72616b656e}
}

// HNSW is an approximate inner-product index over a hierarchical navigable
// small-world graph. Level assignment uses a seeded generator, so inserting
// the same vectors in the same order always yields the same graph.
type HNSW struct {
	cfg      HNSWConfig
	dim      int
	vectors  [][]float32
	links    [][][]int32 // links[node][layer]
	entry    int32
	maxLevel int
	levelMul float64
	rng      *rand.Rand
}

// NewHNSW creates an empty graph index
func NewHNSW(dim int, cfg HNSWConfig) *HNSW {
	def := DefaultHNSWConfig()
	if cfg.M < 2 {
		cfg.M = def.M
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = def.EfConstruction
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = def.EfSearch
	}
	h := &HNSW{
		cfg:      cfg,
		dim:      dim,
		entry:    -1,
		levelMul: 1 / math.Log(float64(cfg.M)),
	}
	h.reseed()
	return h
}

// reseed derives the level generator from the seed and the current size
func (h *HNSW) reseed() {
	h.rng = rand.New(rand.NewPCG(h.cfg.Seed, uint64(len(h.vectors))))
}

func (h *HNSW) Kind() Kind             { return KindHNSW }
func (h *HNSW) Dim() int               { return h.dim }
func (h *HNSW) Len() int               { return len(h.vectors) }
func (h *HNSW) Config() HNSWConfig     { return h.cfg }
func (h *HNSW) Vector(i int) []float32 { return h.vectors[i] }

func (h *HNSW) Add(vectors [][]float32) error {
	if err := checkDims(h.dim, vectors); err != nil {
		return err
	}
	for _, v := range vectors {
		c := make([]float32, len(v))
		copy(c, v)
		h.insert(c)
	}
	return nil
}

func (h *HNSW) Search(query []float32, k int) []Neighbor {
	if k <= 0 || h.entry < 0 || len(query) != h.dim {
		return nil
	}
	ep := h.entry
	for l := h.maxLevel; l > 0; l-- {
		ep = int32(h.searchLayer(query, ep, 1, l)[0].Position)
	}
	res := h.searchLayer(query, ep, max(h.cfg.EfSearch, k), 0)
	if k < len(res) {
		res = res[:k]
	}
	return res
}

func (h *HNSW) randomLevel() int {
	level := int(math.Floor(-math.Log(1-h.rng.Float64()) * h.levelMul))
	return min(level, maxHNSWLevel)
}

func (h *HNSW) maxConn(layer int) int {
	if layer == 0 {
		return 2 * h.cfg.M
	}
	return h.cfg.M
}

func (h *HNSW) insert(vec []float32) {
	id := int32(len(h.vectors))
	level := h.randomLevel()
	h.vectors = append(h.vectors, vec)
	h.links = append(h.links, make([][]int32, level+1))

	if h.entry < 0 {
		h.entry = id
		h.maxLevel = level
		return
	}

	ep := h.entry
	for l := h.maxLevel; l > level; l-- {
		ep = int32(h.searchLayer(vec, ep, 1, l)[0].Position)
	}
	for l := min(level, h.maxLevel); l >= 0; l-- {
		cands := h.searchLayer(vec, ep, h.cfg.EfConstruction, l)
		n := min(len(cands), h.cfg.M)
		links := make([]int32, n)
		for i := 0; i < n; i++ {
			links[i] = int32(cands[i].Position)
		}
		h.links[id][l] = links
		for _, nb := range links {
			h.connect(nb, id, l)
		}
		ep = int32(cands[0].Position)
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = id
	}
}

// connect adds a back-link and prunes the node's list to its closest neighbors
func (h *HNSW) connect(node, to int32, layer int) {
	links := append(h.links[node][layer], to)
	if len(links) > h.maxConn(layer) {
		base := h.vectors[node]
		scored := make([]Neighbor, len(links))
		for i, l := range links {
			scored[i] = Neighbor{Position: int(l), Score: Dot(base, h.vectors[l])}
		}
		sortNeighbors(scored)
		links = links[:h.maxConn(layer)]
		for i := range links {
			links[i] = int32(scored[i].Position)
		}
	}
	h.links[node][layer] = links
}

// searchLayer returns up to ef nearest nodes to q on one layer, best first
func (h *HNSW) searchLayer(q []float32, ep int32, ef, layer int) []Neighbor {
	visited := map[int32]struct{}{ep: {}}
	first := Neighbor{Position: int(ep), Score: Dot(q, h.vectors[ep])}
	cand := &maxHeap{first}
	res := &minHeap{first}

	for cand.Len() > 0 {
		c := heap.Pop(cand).(Neighbor)
		if res.Len() >= ef && c.Score < (*res)[0].Score {
			break
		}
		for _, n := range h.links[c.Position][layer] {
			if _, ok := visited[n]; ok {
				continue
			}
			visited[n] = struct{}{}
			s := Dot(q, h.vectors[n])
			if res.Len() < ef || s > (*res)[0].Score {
				nb := Neighbor{Position: int(n), Score: s}
				heap.Push(cand, nb)
				heap.Push(res, nb)
				if res.Len() > ef {
					heap.Pop(res)
				}
			}
		}
	}

	out := make([]Neighbor, len(*res))
	copy(out, *res)
	sortNeighbors(out)
	return out
}

type maxHeap []Neighbor

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return h[i].Score > h[j].Score }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

type minHeap []Neighbor

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *minHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
