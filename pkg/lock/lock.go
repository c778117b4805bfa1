// Package lock provides mutual exclusion across concurrent pull
// invocations targeting the same remote, with in-memory, file, and
// Redis-backed implementations sharing one interface — the same shape
// as pkg/session's Store/backend split, generalized from session
// storage to short-lived advisory locks.
package lock

import (
	"context"
	"time"
)

// Locker acquires an advisory lock for key, held for at most ttl unless
// released first. Acquire never blocks waiting for a held lock: it
// returns ok=false immediately if key is already locked.
//
// release is nil when ok is false or err is non-nil.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// DefaultTTL bounds how long a lock survives an orchestrator that dies
// without reaching its teardown path.
const DefaultTTL = 10 * time.Minute
