package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is a single-process Locker, suitable for tests and for a
// CLI that never runs two pulls against the same remote concurrently
// from separate processes.
type MemoryLocker struct {
	mu      sync.Mutex
	holders map[string]time.Time // key -> expiry
}

// NewMemoryLocker returns a ready-to-use MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{holders: make(map[string]time.Time)}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, held := l.holders[key]; held && time.Now().Before(expiry) {
		return nil, false, nil
	}

	l.holders[key] = time.Now().Add(ttl)
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.holders, key)
	}
	return release, true, nil
}

var _ Locker = (*MemoryLocker)(nil)
