package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// FileLocker is a file-based Locker for single-host, multi-process use:
// each key maps to a lock file under baseDir containing the holder's
// expiry as a unix timestamp. Acquisition is exclusive-create
// (O_CREATE|O_EXCL); a lock file whose recorded expiry has already
// passed is treated as stale and reclaimed, the same "last writer wins
// past its TTL" convention pkg/session/file.go uses for expired
// sessions.
type FileLocker struct {
	baseDir string
}

// NewFileLocker creates a FileLocker rooted at baseDir. If baseDir is
// empty, it defaults to ~/.cache/objsync/locks/.
func NewFileLocker(baseDir string) (*FileLocker, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".cache", "objsync", "locks")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &FileLocker{baseDir: baseDir}, nil
}

func (l *FileLocker) path(key string) string {
	return filepath.Join(l.baseDir, key+".lock")
}

func (l *FileLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	path := l.path(key)
	expiry := time.Now().Add(ttl)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, false, fmt.Errorf("create lock file: %w", err)
		}
		if !l.reclaimIfStale(path) {
			return nil, false, nil
		}
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err != nil {
			return nil, false, nil
		}
	}

	_, writeErr := f.WriteString(strconv.FormatInt(expiry.Unix(), 10))
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(path)
		return nil, false, fmt.Errorf("write lock file: %w", firstNonNil(writeErr, closeErr))
	}

	release := func() { os.Remove(path) }
	return release, true, nil
}

// reclaimIfStale removes an existing lock file whose recorded expiry
// has passed, returning true if the file was removed (so the caller can
// retry acquisition).
func (l *FileLocker) reclaimIfStale(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	ts, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return false
	}
	if time.Now().Before(time.Unix(ts, 0)) {
		return false
	}
	return os.Remove(path) == nil
}

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

var _ Locker = (*FileLocker)(nil)
