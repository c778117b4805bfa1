package lock

import (
	"context"
	"testing"
	"time"
)

// lockerFactories lets the shared contract tests run against every
// backend that doesn't require an external service.
func lockerFactories(t *testing.T) map[string]Locker {
	t.Helper()
	fileLocker, err := NewFileLocker(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileLocker: %v", err)
	}
	return map[string]Locker{
		"memory": NewMemoryLocker(),
		"file":   fileLocker,
	}
}

func TestAcquireThenSecondAcquireFails(t *testing.T) {
	for name, l := range lockerFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			release, ok, err := l.Acquire(ctx, "origin", time.Minute)
			if err != nil || !ok {
				t.Fatalf("first Acquire = %v, %v, want ok", ok, err)
			}
			defer release()

			_, ok2, err := l.Acquire(ctx, "origin", time.Minute)
			if err != nil {
				t.Fatalf("second Acquire error: %v", err)
			}
			if ok2 {
				t.Fatal("second Acquire for a held key should fail")
			}
		})
	}
}

func TestReleaseThenReacquireSucceeds(t *testing.T) {
	for name, l := range lockerFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			release, ok, err := l.Acquire(ctx, "origin", time.Minute)
			if err != nil || !ok {
				t.Fatalf("first Acquire = %v, %v, want ok", ok, err)
			}
			release()

			_, ok2, err := l.Acquire(ctx, "origin", time.Minute)
			if err != nil || !ok2 {
				t.Fatalf("re-Acquire after release = %v, %v, want ok", ok2, err)
			}
		})
	}
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	for name, l := range lockerFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, ok1, err := l.Acquire(ctx, "origin", time.Minute)
			if err != nil || !ok1 {
				t.Fatalf("Acquire origin = %v, %v", ok1, err)
			}
			_, ok2, err := l.Acquire(ctx, "upstream", time.Minute)
			if err != nil || !ok2 {
				t.Fatalf("Acquire upstream = %v, %v, want ok (different key)", ok2, err)
			}
		})
	}
}

func TestExpiredFileLockIsReclaimed(t *testing.T) {
	l, err := NewFileLocker(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileLocker: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := l.Acquire(ctx, "origin", time.Millisecond); err != nil || !ok {
		t.Fatalf("first Acquire = %v, %v", ok, err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, ok, err := l.Acquire(ctx, "origin", time.Minute); err != nil || !ok {
		t.Fatalf("Acquire after expiry = %v, %v, want ok (stale lock reclaimed)", ok, err)
	}
}
