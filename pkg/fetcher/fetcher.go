// Package fetcher downloads object bodies from a remote over HTTP into
// unique local temp files, using a bounded worker pool so a pull never
// opens more than a handful of connections at once.
//
// Fetcher owns no dedup state — pkg/pull's Scan Worker decides what to
// enqueue and Fetcher only downloads it, following the worker-pool split
// used by pkg/core/deps's crawler: a jobs channel feeds a fixed number of
// goroutines, and a results channel carries outcomes back to a single
// consumer.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mirrorstore/objsync/pkg/httputil"
	"github.com/mirrorstore/objsync/pkg/objid"
	"github.com/mirrorstore/objsync/pkg/observability"
)

// defaultWorkers bounds concurrent downloads when the caller does not
// override it. This mirrors the teacher's crawler default of keeping
// parallelism modest rather than opening one connection per object.
const defaultWorkers = 8

const (
	retryAttempts = 3
	retryDelay    = 500 * time.Millisecond
)

// Request asks the Fetcher to download one object body.
type Request struct {
	ID  objid.ID
	URI string

	// Ctx is threaded through to the actual HTTP request and its retries,
	// so cancelling the pull's context stops in-flight downloads instead
	// of only refusing new Submits. Set by the caller at Submit time.
	Ctx context.Context

	// Depth is opaque to Fetcher: the caller stashes whatever bookkeeping
	// it needs to resume once the download completes (pkg/pull uses this
	// to carry the recursion depth ID was classified at) and reads it back
	// off the matching Result.
	Depth int
}

// Result is the outcome of a download. On success Err is nil, Path names
// a temp file containing the body, and Size is its length. On failure
// Path is empty and Err is set; the caller is responsible for deciding
// whether the pull as a whole should abort.
type Result struct {
	Request
	Path string
	Size int64
	Err  error
}

// Fetcher runs a bounded pool of download workers.
//
// Fetcher is safe for concurrent use: Submit may be called from the
// caller's main goroutine while workers run independently, and Results
// may be drained concurrently with further Submit calls.
type Fetcher struct {
	client *http.Client
	tmpDir string

	jobs    chan Request
	results chan Result
	wg      sync.WaitGroup

	bytesTransferred atomic.Int64
	pending          atomic.Int64
	closing          atomic.Bool
}

// New starts a Fetcher with the given number of worker goroutines,
// downloading into tmpDir. If workers <= 0, defaultWorkers is used.
func New(tmpDir string, workers int) *Fetcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	f := &Fetcher{
		client:  &http.Client{Timeout: 2 * time.Minute},
		tmpDir:  tmpDir,
		jobs:    make(chan Request, workers*2),
		results: make(chan Result, workers*2),
	}
	for range workers {
		f.wg.Add(1)
		go f.worker()
	}
	return f
}

// Submit enqueues req for download. It returns false if the Fetcher is
// closing and the request was dropped; callers must not rely on Submit
// blocking forever once Close has been called.
func (f *Fetcher) Submit(ctx context.Context, req Request) bool {
	if f.closing.Load() {
		return false
	}
	f.pending.Add(1)
	select {
	case f.jobs <- req:
		return true
	case <-ctx.Done():
		f.pending.Add(-1)
		return false
	}
}

// Results returns the channel of download outcomes. Exactly one Result is
// sent per successful Submit.
func (f *Fetcher) Results() <-chan Result { return f.results }

// Pending reports the number of downloads submitted but not yet resolved.
func (f *Fetcher) Pending() int64 { return f.pending.Load() }

// BytesTransferred reports the cumulative size of every object body
// downloaded so far, across all workers.
func (f *Fetcher) BytesTransferred() int64 { return f.bytesTransferred.Load() }

// Summary returns a short human-readable progress line: pending
// downloads and bytes transferred.
func (f *Fetcher) Summary() string {
	return fmt.Sprintf("%d pending, %d bytes transferred", f.Pending(), f.BytesTransferred())
}

// Close stops accepting new work, waits for in-flight downloads to
// finish, and closes the results channel. Submit after Close always
// returns false.
func (f *Fetcher) Close() {
	f.closing.Store(true)
	close(f.jobs)
	f.wg.Wait()
	close(f.results)
}

func (f *Fetcher) worker() {
	defer f.wg.Done()
	for req := range f.jobs {
		res := f.download(req)
		f.pending.Add(-1)
		f.results <- res
	}
}

func (f *Fetcher) download(req Request) Result {
	ctx := req.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	observability.Fetch().OnFetchStart(ctx, req.URI)
	start := time.Now()

	var path string
	var size int64
	attemptN := 0

	err := httputil.Retry(ctx, retryAttempts, retryDelay, func() error {
		attemptN++
		p, n, attemptErr := f.attempt(ctx, req)
		if attemptErr != nil {
			var retryable *httputil.RetryableError
			if attemptN < retryAttempts && errors.As(attemptErr, &retryable) {
				observability.Fetch().OnFetchRetry(ctx, req.URI, attemptN, attemptErr)
			}
			return attemptErr
		}
		path, size = p, n
		return nil
	})
	observability.Fetch().OnFetchComplete(ctx, req.URI, size, time.Since(start), err)
	if err != nil {
		return Result{Request: req, Err: fmt.Errorf("fetch %s: %w", req.URI, err)}
	}

	f.bytesTransferred.Add(size)
	return Result{Request: req, Path: path, Size: size}
}

// attempt performs a single download try. 5xx responses and transport
// errors are wrapped as retryable; 404 and other client errors are not.
func (f *Fetcher) attempt(ctx context.Context, req Request) (path string, size int64, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URI, nil)
	if err != nil {
		return "", 0, err
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", 0, httputil.Retryable(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return "", 0, httputil.Retryable(fmt.Errorf("server error: %d", resp.StatusCode))
	default:
		return "", 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmpPath := filepath.Join(f.tmpDir, req.ID.Type.String()+"-"+uuid.NewString())
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(tmpPath)
		return "", 0, httputil.Retryable(err)
	}
	return tmpPath, n, nil
}
