package vectorindex

import (
	"sync"
	"time"
)

// Hit is a search result mapped back to its external ID
type Hit struct {
	ID       string
	Score    float64
	Position int
}

// Handle is an attached, in-memory index. It reflects the files as they were
// when it was opened plus the writes made through the same Manager. Writes
// by other processes are only observed after Manager.Reload.
type Handle struct {
	name string

	mu       sync.RWMutex
	index    Index
	ids      []string
	meta     Meta
	loadedAt time.Time
}

func newHandle(name string, idx Index, ids []string, meta Meta) *Handle {
	return &Handle{name: name, index: idx, ids: ids, meta: meta, loadedAt: time.Now()}
}

// Name returns the index name
func (h *Handle) Name() string {
	return h.name
}

// Len returns the number of addressable IDs
func (h *Handle) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.ids)
}

// Dim returns the vector dimension
func (h *Handle) Dim() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.index.Dim()
}

// Meta returns the metadata as last written or loaded by this handle
func (h *Handle) Meta() Meta {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.meta
}

// LoadedAt returns when the handle was attached
func (h *Handle) LoadedAt() time.Time {
	return h.loadedAt
}

// IDs returns a copy of the ID list in position order
func (h *Handle) IDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.ids...)
}

// SearchVector returns the topK hits for an already normalized query vector
func (h *Handle) SearchVector(query []float32, topK int) []Hit {
	h.mu.RLock()
	defer h.mu.RUnlock()

	neighbors := h.index.Search(query, topK)
	hits := make([]Hit, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Position < 0 || n.Position >= len(h.ids) {
			continue
		}
		hits = append(hits, Hit{ID: h.ids[n.Position], Score: float64(n.Score), Position: n.Position})
	}
	return hits
}
