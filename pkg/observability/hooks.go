// Package observability provides hooks for metrics, tracing, and logging
// around a pull.
//
// This package enables optional instrumentation without adding hard
// dependencies on specific observability backends. Consumers register
// hooks at startup to receive events about pull execution, object
// fetches, and lock contention.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This keeps pkg/pull and pkg/fetcher dependency-free from any specific
// observability backend (OpenTelemetry, Prometheus, DataDog, etc.) while
// still letting a CLI's main package wire one in.
//
// # Usage
//
//	func main() {
//	    observability.SetPullHooks(&myPullHooks{})
//	    // ... run application
//	}
//
//	observability.Pull().OnPullStart(ctx, remote, roots)
//	// ... run the pull ...
//	observability.Pull().OnPullComplete(ctx, remote, nFetchedMeta, nFetchedContent, bytesFetched, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Pull Hooks
// =============================================================================

// PullHooks receives events from one Orchestrator.Run invocation.
type PullHooks interface {
	OnPullStart(ctx context.Context, remote string, roots []string)
	OnPullComplete(ctx context.Context, remote string, nFetchedMeta, nFetchedContent int, bytesFetched int64, duration time.Duration, err error)
}

// =============================================================================
// Fetch Hooks
// =============================================================================

// FetchHooks receives events from individual object downloads.
type FetchHooks interface {
	OnFetchStart(ctx context.Context, uri string)
	OnFetchRetry(ctx context.Context, uri string, attempt int, err error)
	OnFetchComplete(ctx context.Context, uri string, size int64, duration time.Duration, err error)
}

// =============================================================================
// Lock Hooks
// =============================================================================

// LockHooks receives events from Pull Lock acquisition.
type LockHooks interface {
	OnLockAcquired(ctx context.Context, key string)
	OnLockContended(ctx context.Context, key string)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPullHooks is a no-op implementation of PullHooks.
type NoopPullHooks struct{}

func (NoopPullHooks) OnPullStart(context.Context, string, []string) {}
func (NoopPullHooks) OnPullComplete(context.Context, string, int, int, int64, time.Duration, error) {
}

// NoopFetchHooks is a no-op implementation of FetchHooks.
type NoopFetchHooks struct{}

func (NoopFetchHooks) OnFetchStart(context.Context, string)                         {}
func (NoopFetchHooks) OnFetchRetry(context.Context, string, int, error)              {}
func (NoopFetchHooks) OnFetchComplete(context.Context, string, int64, time.Duration, error) {}

// NoopLockHooks is a no-op implementation of LockHooks.
type NoopLockHooks struct{}

func (NoopLockHooks) OnLockAcquired(context.Context, string)  {}
func (NoopLockHooks) OnLockContended(context.Context, string) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	pullHooks  PullHooks  = NoopPullHooks{}
	fetchHooks FetchHooks = NoopFetchHooks{}
	lockHooks  LockHooks  = NoopLockHooks{}
	hooksMu    sync.RWMutex
)

// SetPullHooks registers custom pull hooks. Call once at startup before
// any pull runs.
func SetPullHooks(h PullHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		pullHooks = h
	}
}

// SetFetchHooks registers custom fetch hooks. Call once at startup
// before any pull runs.
func SetFetchHooks(h FetchHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		fetchHooks = h
	}
}

// SetLockHooks registers custom lock hooks. Call once at startup before
// any pull runs.
func SetLockHooks(h LockHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		lockHooks = h
	}
}

// Pull returns the registered pull hooks.
func Pull() PullHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return pullHooks
}

// Fetch returns the registered fetch hooks.
func Fetch() FetchHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return fetchHooks
}

// Lock returns the registered lock hooks.
func Lock() LockHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return lockHooks
}

// Reset restores all hooks to their no-op defaults. Primarily useful
// for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	pullHooks = NoopPullHooks{}
	fetchHooks = NoopFetchHooks{}
	lockHooks = NoopLockHooks{}
}
