package fsutil

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	require.NoError(t, WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("first"))
		return err
	}))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	t.Run("failed write keeps old content and leaves no temp files", func(t *testing.T) {
		err := WriteFileAtomic(path, func(w io.Writer) error {
			_, _ = w.Write([]byte("partial"))
			return errors.New("boom")
		})
		require.Error(t, err)

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "first", string(got))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestAcquireLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "nested", "x.lock")

	release, err := AcquireLock(context.Background(), lockPath, time.Second)
	require.NoError(t, err)
	assert.True(t, Exists(lockPath))

	// flock locks are per file handle, so a second handle in the same process contends
	_, err = AcquireLock(context.Background(), lockPath, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	release()

	release2, err := AcquireLock(context.Background(), lockPath, time.Second)
	require.NoError(t, err)
	release2()
}

func TestAcquireLockContextCancel(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")
	release, err := AcquireLock(context.Background(), lockPath, time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = AcquireLock(ctx, lockPath, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStageFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	write := func(content string) func(io.Writer) error {
		return func(w io.Writer) error {
			_, err := w.Write([]byte(content))
			return err
		}
	}

	t.Run("staged content is invisible until commit", func(t *testing.T) {
		staged, err := StageFile(path, write("new"))
		require.NoError(t, err)

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "old", string(got))

		require.NoError(t, staged.Commit())
		got, err = os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))
	})

	t.Run("discard keeps the target and removes the temp file", func(t *testing.T) {
		staged, err := StageFile(path, write("discarded"))
		require.NoError(t, err)
		staged.Discard()

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestAcquireLockWaitsForRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")
	release, err := AcquireLock(context.Background(), lockPath, time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(3 * lockPollInterval)
		release()
	}()

	start := time.Now()
	release2, err := AcquireLock(context.Background(), lockPath, 5*time.Second)
	require.NoError(t, err)
	defer release2()
	assert.GreaterOrEqual(t, time.Since(start), lockPollInterval)
}
