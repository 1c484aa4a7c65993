package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// .index layout, little-endian:
//
//	"KVIX" | uint16 version | uint8 kind | uint32 dim | uint32 count | float32[count*dim]
//
// HNSW appends its parameters and graph:
//
//	uint16 M | uint16 efConstruction | uint16 efSearch | uint64 seed |
//	int32 entry | uint8 maxLevel | per node { uint8 level | per layer { uint32 n | int32[n] } }
const (
	indexMagic   = "KVIX"
	indexVersion = uint16(1)
	maxDim       = 1 << 16
)

func writeIndex(w io.Writer, idx Index) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	if _, err := bw.WriteString(indexMagic); err != nil {
		return err
	}
	header := []any{indexVersion, uint8(idx.Kind()), uint32(idx.Dim()), uint32(idx.Len())}
	for _, v := range header {
		if err := binary.Write(bw, le, v); err != nil {
			return err
		}
	}
	for i := 0; i < idx.Len(); i++ {
		if err := binary.Write(bw, le, idx.Vector(i)); err != nil {
			return err
		}
	}

	if h, ok := idx.(*HNSW); ok {
		if err := writeGraph(bw, h); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeGraph(w io.Writer, h *HNSW) error {
	le := binary.LittleEndian
	params := []any{
		uint16(h.cfg.M), uint16(h.cfg.EfConstruction), uint16(h.cfg.EfSearch), h.cfg.Seed,
		h.entry, uint8(h.maxLevel),
	}
	for _, v := range params {
		if err := binary.Write(w, le, v); err != nil {
			return err
		}
	}
	for _, layers := range h.links {
		if err := binary.Write(w, le, uint8(len(layers)-1)); err != nil {
			return err
		}
		for _, links := range layers {
			if err := binary.Write(w, le, uint32(len(links))); err != nil {
				return err
			}
			if err := binary.Write(w, le, links); err != nil {
				return err
			}
		}
	}
	return nil
}

func readIndex(r io.Reader) (Index, error) {
	br := bufio.NewReader(r)
	le := binary.LittleEndian

	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptIndex, err)
	}
	if string(magic) != indexMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptIndex, magic)
	}

	var (
		version uint16
		kind    uint8
		dim     uint32
		count   uint32
	)
	for _, v := range []any{&version, &kind, &dim, &count} {
		if err := binary.Read(br, le, v); err != nil {
			return nil, fmt.Errorf("%w: header: %v", ErrCorruptIndex, err)
		}
	}
	if version != indexVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, version)
	}
	if dim == 0 || dim > maxDim {
		return nil, fmt.Errorf("%w: dimension %d", ErrCorruptIndex, dim)
	}

	vectors := make([][]float32, 0, min(int(count), 1<<16))
	for i := uint32(0); i < count; i++ {
		v := make([]float32, dim)
		if err := binary.Read(br, le, v); err != nil {
			return nil, fmt.Errorf("%w: vector %d: %v", ErrCorruptIndex, i, err)
		}
		vectors = append(vectors, v)
	}

	switch Kind(kind) {
	case KindFlat:
		return &Flat{dim: int(dim), vectors: vectors}, nil
	case KindHNSW:
		return readGraph(br, int(dim), vectors)
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrCorruptIndex, kind)
	}
}

func readGraph(r io.Reader, dim int, vectors [][]float32) (*HNSW, error) {
	le := binary.LittleEndian
	var (
		m, efc, efs uint16
		seed        uint64
		entry       int32
		maxLevel    uint8
	)
	for _, v := range []any{&m, &efc, &efs, &seed, &entry, &maxLevel} {
		if err := binary.Read(r, le, v); err != nil {
			return nil, fmt.Errorf("%w: graph header: %v", ErrCorruptIndex, err)
		}
	}
	n := len(vectors)
	if (n == 0) != (entry < 0) || int(entry) >= n || maxLevel > maxHNSWLevel {
		return nil, fmt.Errorf("%w: graph entry %d for %d nodes", ErrCorruptIndex, entry, n)
	}

	links := make([][][]int32, n)
	for node := range links {
		var level uint8
		if err := binary.Read(r, le, &level); err != nil {
			return nil, fmt.Errorf("%w: node %d: %v", ErrCorruptIndex, node, err)
		}
		if level > maxLevel {
			return nil, fmt.Errorf("%w: node %d level %d above max %d", ErrCorruptIndex, node, level, maxLevel)
		}
		layers := make([][]int32, int(level)+1)
		for l := range layers {
			var cnt uint32
			if err := binary.Read(r, le, &cnt); err != nil {
				return nil, fmt.Errorf("%w: node %d: %v", ErrCorruptIndex, node, err)
			}
			if int(cnt) > n {
				return nil, fmt.Errorf("%w: node %d has %d links", ErrCorruptIndex, node, cnt)
			}
			ls := make([]int32, cnt)
			if err := binary.Read(r, le, ls); err != nil {
				return nil, fmt.Errorf("%w: node %d: %v", ErrCorruptIndex, node, err)
			}
			for _, to := range ls {
				if to < 0 || int(to) >= n {
					return nil, fmt.Errorf("%w: node %d links to %d", ErrCorruptIndex, node, to)
				}
			}
			layers[l] = ls
		}
		links[node] = layers
	}

	h := NewHNSW(dim, HNSWConfig{M: int(m), EfConstruction: int(efc), EfSearch: int(efs), Seed: seed})
	h.vectors = vectors
	h.links = links
	h.entry = entry
	h.maxLevel = int(maxLevel)
	h.reseed()
	return h, nil
}
