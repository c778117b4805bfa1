package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mirrorstore/objsync/pkg/objid"
)

// FileStore is a content-addressed object store backed by a directory tree,
// sharded two-hex-characters deep the same way pkg/cache shards its file
// cache: this keeps any single directory from accumulating more entries
// than the filesystem handles gracefully.
//
// Layout:
//
//	<dir>/objects/<type>/<csum[:2]>/<csum[2:]>   staged, committed objects
//	<dir>/refs/<remote>/<branch>                 local ref pointers
//	<dir>/staging/<txn>/...                      objects pending commit
type FileStore struct {
	dir string

	mu      sync.Mutex
	pending map[string][]byte // staged metadata bodies, keyed by relative object path, cleared on commit/abort
}

// NewFileStore opens (creating if necessary) a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"objects", "refs", "staging"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

// ObjectPath returns the store's canonical relative layout path for id.
func (s *FileStore) ObjectPath(id objid.ID) string {
	hexSum := id.Checksum.String()
	return filepath.Join("objects", id.Type.String(), hexSum[:2], hexSum[2:])
}

func (s *FileStore) absObjectPath(id objid.ID) string {
	return filepath.Join(s.dir, s.ObjectPath(id))
}

// HasObject reports whether id is visible to this Store: either already
// committed to the object tree, or staged (but not yet committed) by a
// Transaction this same Store opened. The latter is what lets the Scan
// Worker recurse into an object in the same pull that fetched it, before
// the pull's transaction commits.
func (s *FileStore) HasObject(_ context.Context, id objid.ID) (bool, error) {
	s.mu.Lock()
	_, staged := s.pending[s.ObjectPath(id)]
	s.mu.Unlock()
	if staged {
		return true, nil
	}

	_, err := os.Stat(s.absObjectPath(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// LoadVariant reads the raw body of a metadata object that is either
// committed or staged-but-uncommitted in this Store, per HasObject.
func (s *FileStore) LoadVariant(_ context.Context, id objid.ID) ([]byte, error) {
	s.mu.Lock()
	body, staged := s.pending[s.ObjectPath(id)]
	s.mu.Unlock()
	if staged {
		return body, nil
	}

	data, err := os.ReadFile(s.absObjectPath(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// PrepareTransaction opens a new staging transaction.
func (s *FileStore) PrepareTransaction(_ context.Context) (Transaction, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.dir, "staging", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare transaction: %w", err)
	}
	return &fileTransaction{store: s, dir: dir}, nil
}

// ResolveRev resolves "{remote}/{branch}" to its locally stored checksum.
func (s *FileStore) ResolveRev(_ context.Context, remote, branch string) (objid.Checksum, bool, error) {
	data, err := os.ReadFile(s.refPath(remote, branch))
	if os.IsNotExist(err) {
		return objid.Checksum{}, false, nil
	}
	if err != nil {
		return objid.Checksum{}, false, err
	}
	csum, err := objid.ParseChecksum(strings.TrimSpace(string(data)))
	if err != nil {
		return objid.Checksum{}, false, fmt.Errorf("corrupt ref %s/%s: %w", remote, branch, err)
	}
	return csum, true, nil
}

// WriteRef durably updates a local ref.
func (s *FileStore) WriteRef(_ context.Context, remote, branch string, csum objid.Checksum) error {
	path := s.refPath(remote, branch)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(csum.String()+"\n"), 0o644)
}

func (s *FileStore) refPath(remote, branch string) string {
	return filepath.Join(s.dir, "refs", remote, branch)
}

// markPending records id as staged-but-uncommitted so HasObject/LoadVariant
// see it before the owning transaction commits.
func (s *FileStore) markPending(id objid.ID, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = make(map[string][]byte)
	}
	s.pending[s.ObjectPath(id)] = body
}

// clearPending removes id's staged-but-uncommitted marker, once id has
// either been committed to the object tree or its transaction aborted.
func (s *FileStore) clearPending(id objid.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, s.ObjectPath(id))
}

// fileTransaction stages objects under a private directory and, on Commit,
// renames each into the object tree. This gives all-or-nothing visibility
// without needing a journal: until Commit runs, nothing outside the
// transaction's own staging directory changes.
type fileTransaction struct {
	store *FileStore
	dir   string

	mu     sync.Mutex
	staged []stagedEntry
	done   bool
}

type stagedEntry struct {
	id   objid.ID
	path string // absolute path within the staging dir
}

func (t *fileTransaction) StageMetadata(_ context.Context, id objid.ID, body []byte) (objid.Checksum, error) {
	csum := sha256.Sum256(body)
	path := filepath.Join(t.dir, id.Type.String()+"-"+hex.EncodeToString(csum[:]))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return objid.Checksum{}, fmt.Errorf("stage metadata: %w", err)
	}

	staged := objid.ID{Checksum: csum, Type: id.Type}
	t.mu.Lock()
	t.staged = append(t.staged, stagedEntry{id: staged, path: path})
	t.mu.Unlock()

	t.store.markPending(staged, body)
	return csum, nil
}

func (t *fileTransaction) StageContent(_ context.Context, size int64, r io.Reader) (objid.Checksum, error) {
	path := filepath.Join(t.dir, "content-"+uuid.NewString())
	f, err := os.Create(path)
	if err != nil {
		return objid.Checksum{}, fmt.Errorf("stage content: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(r, size))
	if err != nil {
		return objid.Checksum{}, fmt.Errorf("stage content: %w", err)
	}
	if n != size {
		return objid.Checksum{}, fmt.Errorf("stage content: declared length %d, read %d", size, n)
	}

	var csum objid.Checksum
	copy(csum[:], h.Sum(nil))

	staged := objid.ID{Checksum: csum, Type: objid.File}
	t.mu.Lock()
	t.staged = append(t.staged, stagedEntry{id: staged, path: path})
	t.mu.Unlock()

	// FILE bodies are never re-read through LoadVariant (recurse rejects
	// FILE objects), so the pending marker only needs to carry presence.
	t.store.markPending(staged, nil)
	return csum, nil
}

// Commit renames every staged file into the committed object tree and
// removes the transaction's staging directory.
func (t *fileTransaction) Commit(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return fmt.Errorf("transaction already finalized")
	}
	t.done = true

	for _, entry := range t.staged {
		dest := t.store.absObjectPath(entry.id)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		if err := os.Rename(entry.path, dest); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}

	for _, entry := range t.staged {
		t.store.clearPending(entry.id)
	}
	return os.RemoveAll(t.dir)
}

// Abort discards every staged object.
func (t *fileTransaction) Abort(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true

	for _, entry := range t.staged {
		t.store.clearPending(entry.id)
	}
	return os.RemoveAll(t.dir)
}

var _ Store = (*FileStore)(nil)
