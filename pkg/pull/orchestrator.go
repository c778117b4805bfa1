// Package pull implements the concurrent scan/fetch engine: the Scan
// Worker and Main Loop described by the object-store synchronizer design,
// connected by the to_scan/to_fetch queues and a two-round quiescence
// token, plus the Orchestrator that drives one pull invocation end to end.
package pull

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mirrorstore/objsync/pkg/fetcher"
	"github.com/mirrorstore/objsync/pkg/history"
	"github.com/mirrorstore/objsync/pkg/lock"
	"github.com/mirrorstore/objsync/pkg/objid"
	"github.com/mirrorstore/objsync/pkg/observability"
	"github.com/mirrorstore/objsync/pkg/remote"
	"github.com/mirrorstore/objsync/pkg/store"
)

// Options configures one pull invocation.
type Options struct {
	// Remote is the local config name this pull updates refs under
	// ("{Remote}/{branch}").
	Remote string

	// Roots is the CLI's positional argument list: branch names and/or
	// raw checksums.
	Roots []string

	// Related, when true, causes commits' "related" field to also be
	// walked during recursion.
	Related bool

	// ConfiguredBranches is the local config's "branches=" list for this
	// remote, used when Roots is empty (spec §4.6 step 3).
	ConfiguredBranches []string

	// FetchWorkers bounds fetcher concurrency; 0 selects fetcher's default.
	FetchWorkers int

	// Locker guards against two pulls racing the same remote. A nil
	// Locker means no mutual exclusion (the caller has its own, or runs
	// pulls serially).
	Locker lock.Locker

	// LockTTL overrides lock.DefaultTTL when Locker is set.
	LockTTL time.Duration

	// Recorder receives one PullRecord per invocation. A nil Recorder is
	// treated as history.NoopRecorder{}.
	Recorder history.Recorder

	// Status, if set, is updated live as the pull progresses so a Status
	// Server goroutine can poll it concurrently. Optional.
	Status *Status
}

// Result summarizes a completed pull for the CLI and for Pull History.
type Result struct {
	UpdatedRefs     map[string]objid.Checksum // branch -> new checksum
	UnchangedRefs   []string                  // branches already at the remote's head
	NScannedObjects int64
	NFetchedMeta    int
	NFetchedContent int
	BytesFetched    int64
}

// Run executes one pull: resolves roots, opens a store transaction, runs
// the Scan Worker and Main Loop to quiescence, and commits — following
// the ten-step sequence from spec §4.6. On any error, no transaction is
// committed and no local ref is updated.
func Run(ctx context.Context, s store.Store, rc *remote.Client, opts Options) (result *Result, retErr error) {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = history.NoopRecorder{}
	}
	startedAt := time.Now()
	observability.Pull().OnPullStart(ctx, opts.Remote, opts.Roots)
	defer func() {
		rec := history.PullRecord{Remote: opts.Remote, Roots: opts.Roots, StartedAt: startedAt, EndedAt: time.Now()}
		nMeta, nContent, bytes := 0, 0, int64(0)
		if result != nil {
			nMeta, nContent, bytes = result.NFetchedMeta, result.NFetchedContent, result.BytesFetched
			rec.NFetchedMeta, rec.NFetchedContent, rec.BytesFetched = nMeta, nContent, bytes
		}
		if retErr != nil {
			rec.Error = retErr.Error()
		}
		_ = recorder.Record(context.Background(), rec)
		observability.Pull().OnPullComplete(ctx, opts.Remote, nMeta, nContent, bytes, time.Since(startedAt), retErr)
	}()

	cfg, err := rc.FetchConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", opts.Remote, err)
	}
	if err := cfg.RequireArchived(); err != nil {
		return nil, fmt.Errorf("pull %s: %w", opts.Remote, err)
	}

	roots, refUpdates, unchanged, err := resolveRoots(ctx, s, rc, opts)
	if err != nil {
		return nil, fmt.Errorf("pull %s: resolve roots: %w", opts.Remote, err)
	}
	if len(roots) == 0 {
		return &Result{UnchangedRefs: unchanged}, nil
	}

	if opts.Locker != nil {
		ttl := opts.LockTTL
		if ttl == 0 {
			ttl = lock.DefaultTTL
		}
		release, ok, err := opts.Locker.Acquire(ctx, opts.Remote, ttl)
		if err != nil {
			return nil, fmt.Errorf("pull %s: acquire lock: %w", opts.Remote, err)
		}
		if !ok {
			observability.Lock().OnLockContended(ctx, opts.Remote)
			return nil, fmt.Errorf("pull %s: another pull is already running against this remote", opts.Remote)
		}
		observability.Lock().OnLockAcquired(ctx, opts.Remote)
		defer release()
	}

	txn, err := s.PrepareTransaction(ctx)
	if err != nil {
		return nil, fmt.Errorf("pull %s: prepare transaction: %w", opts.Remote, err)
	}

	tmpDir, err := os.MkdirTemp("", "objsync-fetch-*")
	if err != nil {
		_ = txn.Abort(ctx)
		return nil, fmt.Errorf("pull %s: create temp dir: %w", opts.Remote, err)
	}
	defer os.RemoveAll(tmpDir)

	f := fetcher.New(tmpDir, opts.FetchWorkers)

	toScan := make(chan scanMsg, queueDepth)
	toFetch := make(chan fetchMsg, queueDepth)

	worker := newScanWorker(s, opts.Related, toScan, toFetch, opts.Status)
	loop := newMainLoop(txn, f, func(id objid.ID) string {
		return rc.ObjectURI(s.ObjectPath(id))
	}, toScan, toFetch, opts.Status)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.run(ctx)
	}()

	for _, root := range roots {
		toScan <- scanMsg{kind: scanMsgScan, id: root, depth: 1}
	}
	loop.prime()

	runErr := loop.run(ctx)

	toScan <- scanMsg{kind: scanMsgQuit}
	wg.Wait()
	close(toScan)

	f.Close()
	for res := range f.Results() {
		if res.Path != "" {
			os.Remove(res.Path)
		}
	}

	if runErr != nil {
		_ = txn.Abort(ctx)
		return nil, fmt.Errorf("pull %s: %w", opts.Remote, runErr)
	}
	if worker.err != nil {
		_ = txn.Abort(ctx)
		return nil, fmt.Errorf("pull %s: %w", opts.Remote, worker.err)
	}

	if err := txn.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pull %s: commit: %w", opts.Remote, err)
	}

	for branch, csum := range refUpdates {
		if err := s.WriteRef(ctx, opts.Remote, branch, csum); err != nil {
			return nil, fmt.Errorf("pull %s: write ref %s: %w", opts.Remote, branch, err)
		}
	}

	return &Result{
		UpdatedRefs:     refUpdates,
		UnchangedRefs:   unchanged,
		NScannedObjects: worker.scannedCount.Load(),
		NFetchedMeta:    loop.nFetchedMeta,
		NFetchedContent: loop.nFetchedCont,
		BytesFetched:    f.BytesTransferred(),
	}, nil
}
