// Package fsutil holds the file-replacement and advisory-locking helpers shared
// by the embedding cache and the vector index store.
package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when another writer holds the lock past the deadline
var ErrLockTimeout = errors.New("lock held by another writer")

const lockPollInterval = 50 * time.Millisecond

// Staged is a fully written and synced temp file waiting to replace its target
type Staged struct {
	tmp  string
	path string
}

// StageFile writes to a temp file next to path and syncs it without touching
// path itself. The caller must Commit or Discard the result.
func StageFile(path string, write func(io.Writer) error) (*Staged, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := write(tmp); err != nil {
		cleanup()
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("close %s: %w", path, err)
	}
	return &Staged{tmp: tmpName, path: path}, nil
}

// Commit renames the staged file over its target
func (s *Staged) Commit() error {
	if err := os.Rename(s.tmp, s.path); err != nil {
		_ = os.Remove(s.tmp)
		return fmt.Errorf("rename %s: %w", s.path, err)
	}
	return nil
}

// Discard removes the staged file; the target is left as it was
func (s *Staged) Discard() {
	_ = os.Remove(s.tmp)
}

// WriteFileAtomic writes to a temp file in the target directory, syncs it and
// renames it over path. Readers see either the old or the new content.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	staged, err := StageFile(path, write)
	if err != nil {
		return err
	}
	return staged.Commit()
}

// AcquireLock takes an exclusive advisory lock on lockPath, retrying until
// ctx is done or timeout elapses. The returned func releases the lock.
func AcquireLock(ctx context.Context, lockPath string, timeout time.Duration) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l := flock.New(lockPath)
	locked, err := l.TryLockContext(lctx, lockPollInterval)
	if locked {
		return func() { _ = l.Unlock() }, nil
	}
	_ = l.Close()

	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err == nil, errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
	default:
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
