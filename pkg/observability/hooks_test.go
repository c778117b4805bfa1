package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	p := NoopPullHooks{}
	p.OnPullStart(ctx, "origin", []string{"main"})
	p.OnPullComplete(ctx, "origin", 3, 2, 128, time.Second, nil)

	f := NoopFetchHooks{}
	f.OnFetchStart(ctx, "http://example.com/objects/file/ab/cd")
	f.OnFetchRetry(ctx, "http://example.com/objects/file/ab/cd", 1, nil)
	f.OnFetchComplete(ctx, "http://example.com/objects/file/ab/cd", 128, time.Second, nil)

	l := NoopLockHooks{}
	l.OnLockAcquired(ctx, "origin")
	l.OnLockContended(ctx, "origin")
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Pull().(NoopPullHooks); !ok {
		t.Error("Pull() should return NoopPullHooks by default")
	}
	if _, ok := Fetch().(NoopFetchHooks); !ok {
		t.Error("Fetch() should return NoopFetchHooks by default")
	}
	if _, ok := Lock().(NoopLockHooks); !ok {
		t.Error("Lock() should return NoopLockHooks by default")
	}

	customPull := &testPullHooks{}
	SetPullHooks(customPull)
	if Pull() != customPull {
		t.Error("SetPullHooks should set custom hooks")
	}

	customFetch := &testFetchHooks{}
	SetFetchHooks(customFetch)
	if Fetch() != customFetch {
		t.Error("SetFetchHooks should set custom hooks")
	}

	customLock := &testLockHooks{}
	SetLockHooks(customLock)
	if Lock() != customLock {
		t.Error("SetLockHooks should set custom hooks")
	}

	Reset()
	if _, ok := Pull().(NoopPullHooks); !ok {
		t.Error("Reset() should restore NoopPullHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testPullHooks{}
	SetPullHooks(custom)

	SetPullHooks(nil)

	if Pull() != custom {
		t.Error("SetPullHooks(nil) should be ignored")
	}

	Reset()
}

type testPullHooks struct{ NoopPullHooks }
type testFetchHooks struct{ NoopFetchHooks }
type testLockHooks struct{ NoopLockHooks }
