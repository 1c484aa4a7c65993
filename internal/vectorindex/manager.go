package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/kraken/internal/fsutil"
)

// DefaultLockTimeout bounds how long a writer waits for another process
const DefaultLockTimeout = 30 * time.Second

const (
	indexExt = ".index"
	idsExt   = ".ids"
	metaExt  = ".meta.json"
	lockExt  = ".lock"
)

// Encoder turns texts into vectors, one per text, in order
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
}

// Observer is notified of successful index writes
type Observer interface {
	ObserveIndexWrite(name, op string, vectors int)
}

// Manager owns the named indexes stored in one directory. It has no global
// state: the composition root creates one and passes it to its users.
//
// Writers (Build, Add) are serialized per name in-process with a mutex and
// across processes with an advisory lock file. Every persisted file is
// replaced atomically and the meta file is written last, so a reader never
// sees a meta file without its matching index and ids.
type Manager struct {
	dir         string
	kind        Kind
	encoder     Encoder
	lockTimeout time.Duration
	observer    Observer
	logger      *slog.Logger
	stage       func(path string, write func(io.Writer) error) (*fsutil.Staged, error)

	mu      sync.Mutex
	handles map[string]*Handle
	writers map[string]*sync.Mutex
}

// Option configures a Manager
type Option func(*Manager)

// WithKind selects the backend used by Build
func WithKind(kind Kind) Option {
	return func(m *Manager) {
		m.kind = kind
	}
}

// WithLockTimeout sets how long writers wait for the cross-process lock
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lockTimeout = d
		}
	}
}

// WithObserver reports builds and appends, e.g. to metrics
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager for indexes stored in dir
func NewManager(dir string, encoder Encoder, opts ...Option) (*Manager, error) {
	if dir == "" {
		return nil, ErrDirRequired
	}
	if encoder == nil {
		return nil, ErrEncoderRequired
	}
	m := &Manager{
		dir:         dir,
		kind:        KindFlat,
		encoder:     encoder,
		lockTimeout: DefaultLockTimeout,
		logger:      slog.Default(),
		stage:       fsutil.StageFile,
		handles:     make(map[string]*Handle),
		writers:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.kind != KindFlat && m.kind != KindHNSW {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndexType, m.kind)
	}
	m.logger = m.logger.With("component", "vectorindex")
	return m, nil
}

// Dir returns the index directory
func (m *Manager) Dir() string {
	return m.dir
}

// Kind returns the backend used by Build
func (m *Manager) Kind() Kind {
	return m.kind
}

// Exists reports whether a committed index is persisted under name
func (m *Manager) Exists(name string) bool {
	return fsutil.Exists(m.path(name, metaExt))
}

// Build creates the index for name from texts and ids.
//
// If the index already exists and force is false, it is attached instead and
// Build returns true without encoding anything. Empty or mismatched inputs
// are logged and reported as false with a nil error, leaving no files behind.
// Encoding and persistence failures are returned as errors.
func (m *Manager) Build(ctx context.Context, name string, texts, ids []string, force bool) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}

	if !force && m.Exists(name) {
		if _, err := m.Open(name); err != nil {
			return false, err
		}
		m.logger.Info("index exists, attached without rebuilding", "index", name)
		return true, nil
	}

	if len(texts) == 0 || len(ids) == 0 || len(texts) != len(ids) {
		m.logger.Warn("refusing to build index", "index", name, "texts", len(texts), "ids", len(ids))
		return false, nil
	}

	unlock, err := m.lockWriter(ctx, name)
	if err != nil {
		return false, err
	}
	defer unlock()

	start := time.Now()
	vectors, err := m.encoder.Encode(ctx, texts)
	if err != nil {
		return false, fmt.Errorf("build %s: %w", name, err)
	}
	if len(vectors) != len(texts) {
		return false, fmt.Errorf("build %s: %w: encoder returned %d vectors for %d texts", name, ErrLengthMismatch, len(vectors), len(texts))
	}

	dim := len(vectors[0])
	idx, err := NewIndex(m.kind, dim)
	if err != nil {
		return false, fmt.Errorf("build %s: %w", name, err)
	}
	if err := idx.Add(normalizeAll(vectors)); err != nil {
		return false, fmt.Errorf("build %s: %w", name, err)
	}

	meta := Meta{
		IndexName:      name,
		EmbeddingDim:   dim,
		BackendVersion: BackendVersion(),
		IndexType:      m.kind.String(),
		Count:          len(ids),
		ModelID:        m.encoder.ModelID(),
		BuiltAt:        time.Now().UTC(),
	}
	ids = append([]string(nil), ids...)

	if err := m.persist(name, idx, ids, meta); err != nil {
		return false, fmt.Errorf("build %s: %w", name, err)
	}

	m.register(newHandle(name, idx, ids, meta))
	m.logger.Info("built index", "index", name, "type", meta.IndexType, "count", meta.Count, "dim", dim,
		"duration", time.Since(start))
	if m.observer != nil {
		m.observer.ObserveIndexWrite(name, "build", len(ids))
	}
	return true, nil
}

// Open loads the persisted index for name and attaches it, replacing any
// handle already attached. It returns ErrIndexNotFound if none is persisted.
func (m *Manager) Open(name string) (*Handle, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	h, err := m.load(name)
	if err != nil {
		return nil, err
	}
	m.register(h)
	return h, nil
}

// Handle returns the attached handle for name
func (m *Manager) Handle(name string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[name]
	return h, ok
}

// Reload replaces the attached handle with a fresh load from disk
func (m *Manager) Reload(name string) (*Handle, error) {
	return m.Open(name)
}

// Close detaches the handle for name; the files are untouched
func (m *Manager) Close(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handles, name)
}

// Add encodes texts and appends them to the attached index for name, then
// re-persists it. It returns ErrNotLoaded when nothing is attached.
//
// The handle is resolved under the writer lock. If the committed files were
// rewritten since it was attached, by a rebuild or by another process, it is
// reloaded first so the append never overwrites newer files.
func (m *Manager) Add(ctx context.Context, name string, texts, ids []string) error {
	if _, ok := m.Handle(name); !ok {
		return fmt.Errorf("add to %s: %w", name, ErrNotLoaded)
	}
	if len(texts) != len(ids) {
		return fmt.Errorf("add to %s: %w: %d texts, %d ids", name, ErrLengthMismatch, len(texts), len(ids))
	}
	if len(texts) == 0 {
		return nil
	}

	unlock, err := m.lockWriter(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	h, ok := m.Handle(name)
	if !ok {
		return fmt.Errorf("add to %s: %w", name, ErrNotLoaded)
	}
	if h, err = m.refresh(name, h); err != nil {
		return fmt.Errorf("add to %s: %w", name, err)
	}

	vectors, err := m.encoder.Encode(ctx, texts)
	if err != nil {
		return fmt.Errorf("add to %s: %w", name, err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("add to %s: %w: encoder returned %d vectors for %d texts", name, ErrLengthMismatch, len(vectors), len(texts))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := checkDims(h.index.Dim(), vectors); err != nil {
		return fmt.Errorf("add to %s: %w", name, err)
	}
	if err := h.index.Add(normalizeAll(vectors)); err != nil {
		return fmt.Errorf("add to %s: %w", name, err)
	}
	h.ids = append(h.ids, ids...)
	h.meta.Count = len(h.ids)
	h.meta.UpdatedAt = time.Now().UTC()

	if err := m.persist(name, h.index, h.ids, h.meta); err != nil {
		// Realign memory with whatever the files hold now.
		if fresh, lerr := m.load(name); lerr == nil {
			h.index, h.ids, h.meta = fresh.index, fresh.ids, fresh.meta
		}
		return fmt.Errorf("add to %s: %w", name, err)
	}

	m.logger.Info("appended to index", "index", name, "added", len(ids), "count", len(h.ids))
	if m.observer != nil {
		m.observer.ObserveIndexWrite(name, "add", len(ids))
	}
	return nil
}

// Search returns the topK nearest IDs to query. If no handle is attached it
// attempts to open the persisted index; a never-built index yields no hits.
func (m *Manager) Search(ctx context.Context, name, query string, topK int) ([]Hit, error) {
	res, err := m.SearchBatch(ctx, name, []string{query}, topK)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// SearchBatch is Search for several queries at once, one result list per query
func (m *Manager) SearchBatch(ctx context.Context, name string, queries []string, topK int) ([][]Hit, error) {
	out := make([][]Hit, len(queries))
	for i := range out {
		out[i] = []Hit{}
	}
	if len(queries) == 0 || topK <= 0 {
		return out, nil
	}

	h, err := m.attach(name)
	if errors.Is(err, ErrIndexNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if h.Len() == 0 {
		return out, nil
	}

	vectors, err := m.encoder.Encode(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	dim := h.Dim()
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("search %s: %w: query has %d, index has %d", name, ErrDimensionMismatch, len(v), dim)
		}
		out[i] = h.SearchVector(NormalizeL2(v), topK)
	}
	return out, nil
}

// Status describes one index as seen on disk and in memory
type Status struct {
	Name        string
	Persisted   bool
	Meta        *Meta // on-disk meta, nil when not persisted
	Loaded      bool
	LoadedCount int
	// Stale is true when the files changed since the handle was attached
	Stale bool
}

// Status reports the on-disk and attached state of name
func (m *Manager) Status(name string) (Status, error) {
	st := Status{Name: name}
	meta, err := readMeta(m.path(name, metaExt))
	switch {
	case errors.Is(err, ErrIndexNotFound):
	case err != nil:
		return st, err
	default:
		st.Persisted = true
		st.Meta = &meta
	}

	if h, ok := m.Handle(name); ok {
		st.Loaded = true
		hm := h.Meta()
		st.LoadedCount = h.Len()
		st.Stale = !st.Persisted || !sameGeneration(meta, hm)
	}
	return st, nil
}

// Names returns every index that is persisted or attached, sorted
func (m *Manager) Names() ([]string, error) {
	set := make(map[string]struct{})
	matches, err := filepath.Glob(filepath.Join(m.dir, "*"+metaExt))
	if err != nil {
		return nil, err
	}
	for _, p := range matches {
		set[strings.TrimSuffix(filepath.Base(p), metaExt)] = struct{}{}
	}
	m.mu.Lock()
	for name := range m.handles {
		set[name] = struct{}{}
	}
	m.mu.Unlock()

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Manager) attach(name string) (*Handle, error) {
	if h, ok := m.Handle(name); ok {
		return h, nil
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	m.logger.Debug("attaching index on first search", "index", name)
	return m.Open(name)
}

func (m *Manager) load(name string) (*Handle, error) {
	meta, err := readMeta(m.path(name, metaExt))
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
		}
		return nil, err
	}

	f, err := os.Open(m.path(name, indexExt))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptIndex, name, err)
	}
	idx, err := readIndex(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	ids, err := readIDs(m.path(name, idsExt))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	if len(ids) != idx.Len() || meta.Count != len(ids) || meta.EmbeddingDim != idx.Dim() {
		return nil, fmt.Errorf("%w: %s: %d vectors, %d ids, meta count %d dim %d/%d",
			ErrCorruptIndex, name, idx.Len(), len(ids), meta.Count, meta.EmbeddingDim, idx.Dim())
	}
	if model := m.encoder.ModelID(); meta.ModelID != "" && meta.ModelID != model {
		m.logger.Warn("index was built with a different embedding model", "index", name,
			"index_model", meta.ModelID, "encoder_model", model)
	}

	m.logger.Debug("loaded index", "index", name, "type", meta.IndexType, "count", len(ids))
	return newHandle(name, idx, ids, meta), nil
}

// refresh returns h, or a fresh load when the committed meta no longer
// matches it. Callers hold the writer lock.
func (m *Manager) refresh(name string, h *Handle) (*Handle, error) {
	disk, err := readMeta(m.path(name, metaExt))
	if errors.Is(err, ErrIndexNotFound) {
		return h, nil
	}
	if err != nil {
		return nil, err
	}
	if sameGeneration(disk, h.Meta()) {
		return h, nil
	}

	m.logger.Info("index changed on disk, reloading before write", "index", name,
		"disk_count", disk.Count, "loaded_count", h.Len())
	fresh, err := m.load(name)
	if err != nil {
		return nil, err
	}
	m.register(fresh)
	return fresh, nil
}

// sameGeneration reports whether two metas describe the same committed write
func sameGeneration(a, b Meta) bool {
	return a.Count == b.Count && a.BuiltAt.Equal(b.BuiltAt) && a.UpdatedAt.Equal(b.UpdatedAt)
}

// persist stages index, ids and meta, then renames them in that order. A
// staging failure leaves the previous files untouched, and the meta file is
// renamed last as the commit marker.
func (m *Manager) persist(name string, idx Index, ids []string, meta Meta) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	writers := []struct {
		ext   string
		write func(io.Writer) error
	}{
		{indexExt, func(w io.Writer) error { return writeIndex(w, idx) }},
		{idsExt, func(w io.Writer) error { return json.NewEncoder(w).Encode(ids) }},
		{metaExt, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(meta)
		}},
	}

	staged := make([]*fsutil.Staged, 0, len(writers))
	discard := func() {
		for _, s := range staged {
			s.Discard()
		}
	}
	for _, w := range writers {
		s, err := m.stage(m.path(name, w.ext), w.write)
		if err != nil {
			discard()
			return err
		}
		staged = append(staged, s)
	}

	for i, s := range staged {
		if err := s.Commit(); err != nil {
			for _, rest := range staged[i+1:] {
				rest.Discard()
			}
			if i > 0 {
				// Some files were replaced: the attached handle no longer
				// matches the disk.
				m.Close(name)
			}
			return err
		}
	}
	return nil
}

func (m *Manager) register(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles[h.name] = h
}

// lockWriter serializes writers for name within and across processes
func (m *Manager) lockWriter(ctx context.Context, name string) (func(), error) {
	m.mu.Lock()
	w, ok := m.writers[name]
	if !ok {
		w = &sync.Mutex{}
		m.writers[name] = w
	}
	m.mu.Unlock()

	w.Lock()
	release, err := fsutil.AcquireLock(ctx, m.path(name, lockExt), m.lockTimeout)
	if err != nil {
		w.Unlock()
		return nil, fmt.Errorf("lock index %s: %w", name, err)
	}
	return func() {
		release()
		w.Unlock()
	}, nil
}

func (m *Manager) path(name, ext string) string {
	return filepath.Join(m.dir, name+ext)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func normalizeAll(vectors [][]float32) [][]float32 {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = NormalizeL2(v)
	}
	return out
}
