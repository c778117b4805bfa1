package pull

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mirrorstore/objsync/pkg/objects"
	"github.com/mirrorstore/objsync/pkg/objid"
	"github.com/mirrorstore/objsync/pkg/store"
)

// memStore is a minimal in-memory store.Store for exercising the Scan
// Worker without the filesystem, grounded on the same interface
// pkg/store.FileStore implements.
type memStore struct {
	objects map[objid.ID][]byte
	refs    map[string]objid.Checksum
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[objid.ID][]byte), refs: make(map[string]objid.Checksum)}
}

func (m *memStore) put(id objid.ID, body []byte) { m.objects[id] = body }

func (m *memStore) HasObject(_ context.Context, id objid.ID) (bool, error) {
	_, ok := m.objects[id]
	return ok, nil
}

func (m *memStore) LoadVariant(_ context.Context, id objid.ID) ([]byte, error) {
	body, ok := m.objects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return body, nil
}

func (m *memStore) PrepareTransaction(_ context.Context) (store.Transaction, error) {
	panic("not used by scan_test")
}

func (m *memStore) ResolveRev(_ context.Context, remote, branch string) (objid.Checksum, bool, error) {
	csum, ok := m.refs[remote+"/"+branch]
	return csum, ok, nil
}

func (m *memStore) WriteRef(_ context.Context, remote, branch string, csum objid.Checksum) error {
	m.refs[remote+"/"+branch] = csum
	return nil
}

func (m *memStore) ObjectPath(id objid.ID) string { return id.Type.String() + "/" + id.Checksum.String() }

var _ store.Store = (*memStore)(nil)

func csumFor(t *testing.T, b byte) objid.Checksum {
	t.Helper()
	var c objid.Checksum
	for i := range c {
		c[i] = b
	}
	return c
}

// drive runs a scan worker against a fixed queue of roots and collects
// every FETCH emitted, without a Main Loop on the other end. Good enough
// for unit-testing Classify's dedup and recursion behavior in isolation.
func drive(t *testing.T, s store.Store, related bool, roots []objid.ID) ([]objid.ID, error) {
	t.Helper()
	toScan := make(chan scanMsg, queueDepth)
	toFetch := make(chan fetchMsg, queueDepth)
	w := newScanWorker(s, related, toScan, toFetch, nil)

	for _, r := range roots {
		toScan <- scanMsg{kind: scanMsgScan, id: r}
	}
	toScan <- scanMsg{kind: scanMsgQuit}

	done := make(chan error, 1)
	go func() { done <- w.run(context.Background()) }()

	var fetched []objid.ID
	for {
		select {
		case msg := <-toFetch:
			if msg.kind == fetchMsgFetch {
				fetched = append(fetched, msg.id)
			}
		case err := <-done:
			// Drain anything buffered before the worker exited.
			for {
				select {
				case msg := <-toFetch:
					if msg.kind == fetchMsgFetch {
						fetched = append(fetched, msg.id)
					}
					continue
				default:
				}
				return fetched, err
			}
		case <-time.After(2 * time.Second):
			t.Fatal("scan worker did not finish in time")
		}
	}
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := msgpack.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestClassifyEmitsFetchForMissingMetadata(t *testing.T) {
	s := newMemStore()
	root := objid.New(csumFor(t, 0x01), objid.Commit)

	fetched, err := drive(t, s, false, []objid.ID{root})
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	if len(fetched) != 1 || fetched[0] != root {
		t.Fatalf("fetched = %+v, want [%v]", fetched, root)
	}
}

func TestClassifyRecursesStoredCommit(t *testing.T) {
	s := newMemStore()
	tree := csumFor(t, 0x02)
	meta := csumFor(t, 0x03)
	file := csumFor(t, 0x04)

	root := objid.New(csumFor(t, 0x01), objid.Commit)
	s.put(root, marshal(t, objects.Commit{TreeContentsChecksum: tree, TreeMetaChecksum: meta}))
	s.put(objid.New(tree, objid.DirTree), marshal(t, objects.DirTree{
		Files: []objects.FileEntry{{Name: "a.txt", Checksum: file}},
	}))
	// meta and file are deliberately left unstored.

	fetched, err := drive(t, s, false, []objid.ID{root})
	if err != nil {
		t.Fatalf("drive: %v", err)
	}

	want := map[objid.ID]bool{
		objid.New(meta, objid.DirMeta): true,
		objid.New(file, objid.File):    true,
	}
	if len(fetched) != len(want) {
		t.Fatalf("fetched = %+v, want 2 entries", fetched)
	}
	for _, id := range fetched {
		if !want[id] {
			t.Errorf("unexpected fetch %v", id)
		}
	}
}

func TestClassifyDedupsSharedFileAcrossTwoTrees(t *testing.T) {
	s := newMemStore()
	file := csumFor(t, 0x10)

	tree1 := csumFor(t, 0x11)
	tree2 := csumFor(t, 0x12)
	meta := csumFor(t, 0x13)
	s.put(objid.New(meta, objid.DirMeta), []byte("leaf"))
	s.put(objid.New(tree1, objid.DirTree), marshal(t, objects.DirTree{Files: []objects.FileEntry{{Name: "shared", Checksum: file}}}))
	s.put(objid.New(tree2, objid.DirTree), marshal(t, objects.DirTree{Files: []objects.FileEntry{{Name: "shared", Checksum: file}}}))

	c1 := csumFor(t, 0x21)
	c2 := csumFor(t, 0x22)
	s.put(objid.New(c1, objid.Commit), marshal(t, objects.Commit{TreeContentsChecksum: tree1, TreeMetaChecksum: meta}))
	s.put(objid.New(c2, objid.Commit), marshal(t, objects.Commit{TreeContentsChecksum: tree2, TreeMetaChecksum: meta}))

	fetched, err := drive(t, s, false, []objid.ID{
		objid.New(c1, objid.Commit),
		objid.New(c2, objid.Commit),
	})
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	count := 0
	for _, id := range fetched {
		if id == objid.New(file, objid.File) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("file fetched %d times, want exactly 1", count)
	}
}

func TestClassifySkipsRelatedByDefault(t *testing.T) {
	s := newMemStore()
	tree := csumFor(t, 0x31)
	meta := csumFor(t, 0x32)
	related := csumFor(t, 0x33)
	s.put(objid.New(tree, objid.DirTree), marshal(t, objects.DirTree{}))
	s.put(objid.New(meta, objid.DirMeta), []byte("leaf"))

	root := csumFor(t, 0x30)
	s.put(objid.New(root, objid.Commit), marshal(t, objects.Commit{
		TreeContentsChecksum: tree,
		TreeMetaChecksum:     meta,
		Related:              []objects.RelatedCommit{{Name: "prev", Checksum: related}},
	}))

	fetched, err := drive(t, s, false, []objid.ID{objid.New(root, objid.Commit)})
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	for _, id := range fetched {
		if id.Checksum == related {
			t.Fatalf("related commit fetched without --related: %+v", fetched)
		}
	}
}

func TestClassifyWalksRelatedWhenEnabled(t *testing.T) {
	s := newMemStore()
	tree := csumFor(t, 0x41)
	meta := csumFor(t, 0x42)
	related := csumFor(t, 0x43)
	s.put(objid.New(tree, objid.DirTree), marshal(t, objects.DirTree{}))
	s.put(objid.New(meta, objid.DirMeta), []byte("leaf"))

	root := csumFor(t, 0x40)
	s.put(objid.New(root, objid.Commit), marshal(t, objects.Commit{
		TreeContentsChecksum: tree,
		TreeMetaChecksum:     meta,
		Related:              []objects.RelatedCommit{{Name: "prev", Checksum: related}},
	}))

	fetched, err := drive(t, s, true, []objid.ID{objid.New(root, objid.Commit)})
	if err != nil {
		t.Fatalf("drive: %v", err)
	}
	found := false
	for _, id := range fetched {
		if id == objid.New(related, objid.Commit) {
			found = true
		}
	}
	if !found {
		t.Fatalf("related commit not fetched with --related: %+v", fetched)
	}
}

func TestClassifyRejectsInvalidFilename(t *testing.T) {
	s := newMemStore()
	tree := csumFor(t, 0x51)
	meta := csumFor(t, 0x52)
	s.put(objid.New(meta, objid.DirMeta), []byte("leaf"))
	s.put(objid.New(tree, objid.DirTree), marshal(t, objects.DirTree{
		Files: []objects.FileEntry{{Name: "a/b", Checksum: csumFor(t, 0x53)}},
	}))

	root := csumFor(t, 0x50)
	s.put(objid.New(root, objid.Commit), marshal(t, objects.Commit{TreeContentsChecksum: tree, TreeMetaChecksum: meta}))

	_, err := drive(t, s, false, []objid.ID{objid.New(root, objid.Commit)})
	if err == nil {
		t.Fatal("want error for invalid filename in dirtree")
	}
}

func TestClassifyEnforcesRecursionDepth(t *testing.T) {
	s := newMemStore()

	// Build a chain of MAX_RECURSION+2 nested single-child directories so
	// the recursion cap must trip before reaching the bottom.
	const chainLen = maxRecursion + 2
	var prevTree objid.Checksum
	leafMeta := csumFor(t, 0xEE)
	s.put(objid.New(leafMeta, objid.DirMeta), []byte("leaf"))

	for i := chainLen; i >= 0; i-- {
		var csum objid.Checksum
		for j := range csum {
			csum[j] = 0x66
		}
		csum[0] = byte(i >> 8)
		csum[1] = byte(i)
		tree := objects.DirTree{}
		if i < chainLen {
			tree.Dirs = []objects.DirEntry{{Name: "d", TreeChecksum: prevTree, MetaChecksum: leafMeta}}
		}
		s.put(objid.New(csum, objid.DirTree), marshal(t, tree))
		prevTree = csum
	}

	meta := csumFor(t, 0xFE)
	s.put(objid.New(meta, objid.DirMeta), []byte("leaf"))
	root := csumFor(t, 0xFF)
	s.put(objid.New(root, objid.Commit), marshal(t, objects.Commit{TreeContentsChecksum: prevTree, TreeMetaChecksum: meta}))

	_, err := drive(t, s, false, []objid.ID{objid.New(root, objid.Commit)})
	if err == nil {
		t.Fatal("want recursion-exceeded error for an overly deep chain")
	}
	var recErr *RecursionError
	if !errors.As(err, &recErr) {
		t.Fatalf("err = %v, want *RecursionError", err)
	}
}
