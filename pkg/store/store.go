// Package store defines the contract the pull engine needs from the local
// content-addressed object store. The store itself — its on-disk format,
// its transaction durability guarantees — is an external collaborator; this
// package only names the operations the engine calls and ships one
// concrete, file-backed implementation for standalone use and tests.
package store

import (
	"context"
	"errors"
	"io"

	"github.com/mirrorstore/objsync/pkg/objid"
)

// ErrNotFound is returned by LoadVariant when the requested object does
// not exist locally. ResolveRev reports a missing ref with ok=false
// instead.
var ErrNotFound = errors.New("store: not found")

// Store is the local object store's contract, as seen by the pull engine.
// Implementations must be safe for concurrent use: HasObject and
// LoadVariant are called from the Scan Worker goroutine, while
// PrepareTransaction, WriteRef, and ResolveRev are called from the
// Orchestrator and Main Loop goroutines.
type Store interface {
	// HasObject reports whether the object identified by id is already
	// present locally.
	HasObject(ctx context.Context, id objid.ID) (bool, error)

	// LoadVariant loads the raw, already-staged body of a metadata object
	// (Commit, DirTree, or DirMeta). Callers must only invoke this for
	// objects HasObject has reported present.
	LoadVariant(ctx context.Context, id objid.ID) ([]byte, error)

	// PrepareTransaction opens a staging transaction. Objects staged into
	// the returned Transaction become visible to this same Store's
	// HasObject/LoadVariant immediately (so the Scan Worker can recurse
	// into them within the same pull), but remain invisible to any other
	// Store instance — and durably absent on disk outside the staging
	// directory — until the transaction commits.
	PrepareTransaction(ctx context.Context) (Transaction, error)

	// ResolveRev resolves a local ref of the form "{remote}/{branch}" to the
	// checksum it currently points at. ok is false if the ref does not exist.
	ResolveRev(ctx context.Context, remote, branch string) (csum objid.Checksum, ok bool, err error)

	// WriteRef durably updates a local ref. Called only after a successful
	// commit, once per updated branch.
	WriteRef(ctx context.Context, remote, branch string, csum objid.Checksum) error

	// ObjectPath returns the store's canonical relative layout path for id.
	// The remote HTTP layout is required to mirror this convention (spec
	// §6), so the pull engine's URI builder calls through this method
	// rather than hard-coding a layout of its own.
	ObjectPath(id objid.ID) string
}

// Transaction stages objects for a single pull invocation. Staged objects
// are visible to HasObject/LoadVariant of the Store that opened this
// Transaction right away; Commit makes them visible everywhere else, and
// Abort discards everything staged so far.
type Transaction interface {
	// StageMetadata transactionally imports a metadata object body and
	// returns the checksum the store computed for it. Callers must verify
	// the returned checksum equals the checksum they expected (spec's
	// integrity check) — StageMetadata itself does not know what was
	// expected.
	StageMetadata(ctx context.Context, id objid.ID, body []byte) (objid.Checksum, error)

	// StageContent transactionally imports a FILE object's content stream
	// of the given declared length, returning the computed checksum.
	StageContent(ctx context.Context, size int64, r io.Reader) (objid.Checksum, error)

	// Commit finalizes the transaction, making every staged object durably
	// visible. Must not be called more than once.
	Commit(ctx context.Context) error

	// Abort discards the transaction. Safe to call after Commit has failed;
	// a no-op if Commit already succeeded.
	Abort(ctx context.Context) error
}
