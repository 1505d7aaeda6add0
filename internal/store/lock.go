package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/jayusctrojan/empire-search/internal/errors"
)

// DirLock guards an index directory against concurrent writers from
// other processes. Readers don't take the lock; SQLite WAL and Bleve
// handle in-process concurrency themselves.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for the index directory. The lock file
// lives at <dir>/.index.lock.
func NewDirLock(dir string) *DirLock {
	lockPath := filepath.Join(dir, ".index.lock")
	return &DirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Acquire takes the exclusive lock without blocking. A held lock maps
// to the index-locked error so callers can surface which process owns
// the directory.
func (l *DirLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	if !acquired {
		return errors.New(errors.ErrCodeIndexLocked,
			fmt.Sprintf("index directory is locked by another process: %s", l.path), nil).
			WithSuggestion("wait for the other indexing run to finish, or remove a stale lock file")
	}

	l.locked = true
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *DirLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release index lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}
