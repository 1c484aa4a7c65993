package embedder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/dshills/kraken/internal/fsutil"
)

// DefaultCacheFile is the cache file name inside the data directory
const DefaultCacheFile = "emb_cache.bin"

const (
	cacheMagic   = "KEMC"
	cacheVersion = uint16(1)
	maxKeyLen    = 1 << 10
	maxVectorDim = 1 << 16
)

var errCorruptCache = errors.New("corrupt embedding cache")

// DiskCache is a persistent map from cache key to embedding vector.
// Entries never expire; the cache only grows.
type DiskCache struct {
	path   string
	logger *slog.Logger

	// saveMu serializes Save; mu guards the fields below it and is never
	// held during file I/O.
	saveMu  sync.Mutex
	mu      sync.RWMutex
	entries map[string][]float32
	version uint64 // bumped by every Set
	saved   uint64 // version last written to disk
}

// NewMemoryCache returns a cache that is never persisted
func NewMemoryCache() *DiskCache {
	return &DiskCache{
		entries: make(map[string][]float32),
		logger:  slog.Default().With("component", "embedding-cache"),
	}
}

// LoadDiskCache loads the cache stored at path. It never fails: a missing,
// unreadable or corrupt file yields an empty cache, logged as a warning.
func LoadDiskCache(path string, logger *slog.Logger) *DiskCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &DiskCache{
		path:    path,
		entries: make(map[string][]float32),
		logger:  logger.With("component", "embedding-cache"),
	}
	if path == "" {
		return c
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c.logger.Debug("no embedding cache on disk", "path", path)
		return c
	}

	lock := flock.New(lockPath(path))
	if err := lock.RLock(); err != nil {
		c.logger.Warn("cannot lock embedding cache, starting cold", "path", path, "err", err)
		return c
	}
	defer func() { _ = lock.Unlock() }()

	entries, err := readCacheFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.logger.Debug("no embedding cache on disk", "path", path)
	case err != nil:
		c.logger.Warn("discarding unreadable embedding cache", "path", path, "err", err)
	default:
		c.entries = entries
		c.logger.Debug("loaded embedding cache", "path", path, "entries", len(entries))
	}
	return c
}

// Path returns the backing file, or "" for memory-only caches
func (c *DiskCache) Path() string {
	return c.path
}

// Get returns a copy of the vector stored under key
func (c *DiskCache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Has reports whether key is cached
func (c *DiskCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Set stores a copy of vector under key
func (c *DiskCache) Set(key string, vector []float32) {
	v := make([]float32, len(vector))
	copy(v, vector)

	c.mu.Lock()
	c.entries[key] = v
	c.version++
	c.mu.Unlock()
}

// Len returns the number of cached vectors
func (c *DiskCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Save persists the cache if it changed since the last save. Entries written
// to the file by other processes are merged in first, so concurrent savers
// never drop each other's vectors. The file is replaced atomically.
//
// Readers and writers of the in-memory map are not blocked while the file is
// locked, read and rewritten; entries set meanwhile are picked up by the next
// Save.
func (c *DiskCache) Save() error {
	if c.path == "" {
		return nil
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.RLock()
	if c.version == c.saved {
		c.mu.RUnlock()
		return nil
	}
	version := c.version
	snapshot := make(map[string][]float32, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	lock := flock.New(lockPath(c.path))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock embedding cache: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	var merged map[string][]float32
	if onDisk, err := readCacheFile(c.path); err == nil {
		merged = make(map[string][]float32)
		for k, v := range onDisk {
			if _, ok := snapshot[k]; !ok {
				snapshot[k] = v
				merged[k] = v
			}
		}
	}

	if err := fsutil.WriteFileAtomic(c.path, func(w io.Writer) error {
		return writeCache(w, snapshot)
	}); err != nil {
		return err
	}

	c.mu.Lock()
	for k, v := range merged {
		if _, ok := c.entries[k]; !ok {
			c.entries[k] = v
		}
	}
	c.saved = version
	c.mu.Unlock()
	return nil
}

func lockPath(path string) string {
	return path + ".lock"
}

func readCacheFile(path string) (map[string][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCache(bufio.NewReader(f))
}

func readCache(r io.Reader) (map[string][]float32, error) {
	magic := make([]byte, len(cacheMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: header: %v", errCorruptCache, err)
	}
	if string(magic) != cacheMagic {
		return nil, fmt.Errorf("%w: bad magic %q", errCorruptCache, magic)
	}

	var version uint16
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: version: %v", errCorruptCache, err)
	}
	if version != cacheVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errCorruptCache, version)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: count: %v", errCorruptCache, err)
	}

	entries := make(map[string][]float32, min(int(count), 1<<16))
	for i := uint32(0); i < count; i++ {
		var keyLen uint16
		if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", errCorruptCache, i, err)
		}
		if keyLen == 0 || int(keyLen) > maxKeyLen {
			return nil, fmt.Errorf("%w: entry %d: key length %d", errCorruptCache, i, keyLen)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", errCorruptCache, i, err)
		}

		var dim uint32
		if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", errCorruptCache, i, err)
		}
		if dim > maxVectorDim {
			return nil, fmt.Errorf("%w: entry %d: dimension %d", errCorruptCache, i, dim)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", errCorruptCache, i, err)
		}
		entries[string(key)] = vec
	}
	return entries, nil
}

func writeCache(w io.Writer, entries map[string][]float32) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(cacheMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, cacheVersion); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(entries))); err != nil {
		return err
	}
	for key, vec := range entries {
		if err := binary.Write(bw, binary.LittleEndian, uint16(len(key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(vec))); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, vec); err != nil {
			return err
		}
	}
	return bw.Flush()
}
