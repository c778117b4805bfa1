package pull

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mirrorstore/objsync/pkg/objects"
	"github.com/mirrorstore/objsync/pkg/objid"
	"github.com/mirrorstore/objsync/pkg/store"
)

// scanWorker is the single-threaded loop that owns the dedup tables and
// recursively classifies metadata objects already staged (or just
// fetched) into the local store, emitting FETCH requests for whatever is
// still missing.
//
// scanWorker owns scannedMetadata/requestedMetadata/requestedContent
// exclusively — nothing outside this goroutine ever touches them — which
// is what lets Classify run lock-free (spec §5).
type scanWorker struct {
	store   store.Store
	related bool

	toScan  <-chan scanMsg
	toFetch chan<- fetchMsg

	scannedMetadata   map[objid.ID]bool
	requestedMetadata map[objid.Checksum]bool
	requestedContent  map[objid.Checksum]bool

	// scannedCount mirrors len(scannedMetadata) as an atomic counter so the
	// Main Loop (or a status reader) can read progress without locking.
	scannedCount atomic.Int64

	status *Status // optional; nil-safe (see status.go)

	err error // first fatal error; also posted to the Main Loop over to_fetch (fetchMsgScanError)
}

func newScanWorker(s store.Store, related bool, toScan <-chan scanMsg, toFetch chan<- fetchMsg, status *Status) *scanWorker {
	return &scanWorker{
		store:             s,
		related:           related,
		toScan:            toScan,
		toFetch:           toFetch,
		scannedMetadata:   make(map[objid.ID]bool),
		requestedMetadata: make(map[objid.Checksum]bool),
		requestedContent:  make(map[objid.Checksum]bool),
		status:            status,
	}
}

// run drains to_scan until the channel closes or a QUIT message arrives,
// classifying SCAN requests and forwarding MAIN_IDLE tokens per the
// quiescence protocol (spec §4.2, §4.5).
//
// Each outer iteration is one "turn": it blocks for the first message,
// then non-blockingly drains whatever else is already queued, tracking
// only the *last* MAIN_IDLE token seen that turn. SCAN_IDLE is emitted
// exactly once per turn, after the drain completes.
func (w *scanWorker) run(ctx context.Context) error {
	for {
		msg, ok := <-w.toScan
		if !ok {
			return w.err
		}

		var idleToForward *uint32
		for {
			switch msg.kind {
			case scanMsgQuit:
				return w.err
			case scanMsgMainIdle:
				s := msg.serial
				idleToForward = &s
			case scanMsgScan:
				depth := msg.depth
				if depth == 0 {
					depth = 1
				}
				if err := w.classify(ctx, msg.id, depth); err != nil {
					return w.fail(ctx, err)
				}
			}

			select {
			case next, ok := <-w.toScan:
				if !ok {
					return w.err
				}
				msg = next
				continue
			default:
			}
			break
		}

		if err := w.sendFetch(ctx, fetchMsg{kind: fetchMsgScanIdle}); err != nil {
			w.err = err
			return w.err
		}
		if idleToForward != nil {
			if err := w.sendFetch(ctx, fetchMsg{kind: fetchMsgMainIdle, serial: *idleToForward}); err != nil {
				w.err = err
				return w.err
			}
		}
	}
}

// classify implements the Classify(name) algorithm (spec §4.2).
func (w *scanWorker) classify(ctx context.Context, id objid.ID, depth int) error {
	if depth > maxRecursion {
		return &RecursionError{Depth: depth, ID: id}
	}
	if w.scannedMetadata[id] {
		return nil
	}

	isRequested := w.requestedMetadata[id.Checksum]
	isStored, err := w.store.HasObject(ctx, id)
	if err != nil {
		return fmt.Errorf("has_object(%s): %w", id, err)
	}

	if !isStored && !isRequested {
		w.requestedMetadata[id.Checksum] = true
		return w.sendFetch(ctx, fetchMsg{kind: fetchMsgFetch, id: id, depth: depth})
	}
	if !isStored {
		// Already requested by an earlier sibling reference; its eventual
		// stage completion will emit SCAN(name), which re-enters Classify
		// once is_stored is true. Nothing to do yet.
		return nil
	}

	return w.recurse(ctx, id, depth)
}

// recurse parses an already-stored metadata object and classifies its
// children, per the per-type dispatch in Classify step 5.
func (w *scanWorker) recurse(ctx context.Context, id objid.ID, depth int) error {
	body, err := w.store.LoadVariant(ctx, id)
	if err != nil {
		return fmt.Errorf("load_variant(%s): %w", id, err)
	}

	switch id.Type {
	case objid.Commit:
		c, err := objects.ParseCommit(body)
		if err != nil {
			return fmt.Errorf("parse commit %s: %w", id, err)
		}
		if err := w.classify(ctx, objid.New(c.TreeContentsChecksum, objid.DirTree), depth+1); err != nil {
			return err
		}
		if err := w.classify(ctx, objid.New(c.TreeMetaChecksum, objid.DirMeta), depth+1); err != nil {
			return err
		}
		if w.related {
			for _, rel := range c.Related {
				if err := w.classify(ctx, objid.New(rel.Checksum, objid.Commit), depth+1); err != nil {
					return err
				}
			}
		}

	case objid.DirTree:
		tree, err := objects.ParseDirTree(body)
		if err != nil {
			return fmt.Errorf("parse dirtree %s: %w", id, err)
		}
		for _, file := range tree.Files {
			if err := w.classifyFile(ctx, file.Checksum, depth+1); err != nil {
				return err
			}
		}
		for _, dir := range tree.Dirs {
			if err := w.classify(ctx, objid.New(dir.TreeChecksum, objid.DirTree), depth+1); err != nil {
				return err
			}
			if err := w.classify(ctx, objid.New(dir.MetaChecksum, objid.DirMeta), depth+1); err != nil {
				return err
			}
		}

	case objid.DirMeta:
		// leaf: no outbound edges.

	case objid.File:
		return fmt.Errorf("classify: FILE object %s reached recurse (invariant violated)", id)
	}

	w.scannedMetadata[id] = true
	n := w.scannedCount.Add(1)
	w.status.setScannedMetadata(n)
	return nil
}

// classifyFile applies Classify's FILE handling from within a DIR_TREE
// scan: fetch if missing and not already requested, otherwise skip.
// FILE objects are never recursed.
func (w *scanWorker) classifyFile(ctx context.Context, csum objid.Checksum, depth int) error {
	id := objid.New(csum, objid.File)
	stored, err := w.store.HasObject(ctx, id)
	if err != nil {
		return fmt.Errorf("has_object(%s): %w", id, err)
	}
	if stored {
		return nil
	}
	if w.requestedContent[csum] {
		return nil
	}
	w.requestedContent[csum] = true
	return w.sendFetch(ctx, fetchMsg{kind: fetchMsgFetch, id: id, depth: depth})
}

// sendFetch posts to to_fetch, honoring context cancellation so a
// cancelled pull can never wedge the Scan Worker against a full channel.
func (w *scanWorker) sendFetch(ctx context.Context, msg fetchMsg) error {
	select {
	case w.toFetch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail records err as the worker's first fatal error and best-effort
// notifies the Main Loop over to_fetch. Without this, a scan-side error
// would make the worker exit silently: it would never emit another
// SCAN_IDLE/MAIN_IDLE token, and the Main Loop's select would block
// forever waiting on a reply this worker can no longer send.
func (w *scanWorker) fail(ctx context.Context, err error) error {
	w.err = err
	select {
	case w.toFetch <- fetchMsg{kind: fetchMsgScanError, err: err}:
	case <-ctx.Done():
	}
	return err
}
