package vectorindex

// Flat is an exact inner-product index
type Flat struct {
	dim     int
	vectors [][]float32
}

// NewFlat creates an empty flat index
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

func (f *Flat) Kind() Kind { return KindFlat }
func (f *Flat) Dim() int   { return f.dim }
func (f *Flat) Len() int   { return len(f.vectors) }

func (f *Flat) Vector(i int) []float32 {
	return f.vectors[i]
}

func (f *Flat) Add(vectors [][]float32) error {
	if err := checkDims(f.dim, vectors); err != nil {
		return err
	}
	for _, v := range vectors {
		c := make([]float32, len(v))
		copy(c, v)
		f.vectors = append(f.vectors, c)
	}
	return nil
}

func (f *Flat) Search(query []float32, k int) []Neighbor {
	if k <= 0 || len(f.vectors) == 0 || len(query) != f.dim {
		return nil
	}
	all := make([]Neighbor, len(f.vectors))
	for i, v := range f.vectors {
		all[i] = Neighbor{Position: i, Score: Dot(query, v)}
	}
	sortNeighbors(all)
	if k < len(all) {
		all = all[:k]
	}
	return all
}
