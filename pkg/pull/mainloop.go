package pull

import (
	"context"
	"fmt"
	"os"

	"github.com/mirrorstore/objsync/pkg/fetcher"
	"github.com/mirrorstore/objsync/pkg/objects"
	"github.com/mirrorstore/objsync/pkg/objid"
	"github.com/mirrorstore/objsync/pkg/store"
)

// objectURIFunc builds the fetch URI for an object. The Orchestrator
// supplies one backed by a remote.Client and the store's canonical object
// layout; mainLoop itself has no notion of HTTP.
type objectURIFunc func(objid.ID) string

// mainLoop is the single-threaded loop that owns the fetcher, the
// staging transaction, and every outstanding counter. It never touches
// the dedup tables — those belong exclusively to scanWorker.
type mainLoop struct {
	txn       store.Transaction
	fetcher   *fetcher.Fetcher
	objectURI objectURIFunc

	toScan  chan<- scanMsg
	toFetch <-chan fetchMsg

	idleSerial        uint32
	metadataScanIdle  bool
	nOutstandingMeta  int
	nOutstandingCont  int
	nOutstandingMStag int
	nOutstandingCStag int
	nRequestedMeta    int
	nRequestedCont    int
	nFetchedMeta      int
	nFetchedCont      int

	status *Status // optional; nil-safe (see status.go)

	firstErr error
}

func newMainLoop(txn store.Transaction, f *fetcher.Fetcher, uriFn objectURIFunc, toScan chan<- scanMsg, toFetch <-chan fetchMsg, status *Status) *mainLoop {
	return &mainLoop{txn: txn, fetcher: f, objectURI: uriFn, toScan: toScan, toFetch: toFetch, status: status}
}

// prime sends the initial MAIN_IDLE token, per Orchestrator step 7.
func (m *mainLoop) prime() {
	m.idleSerial++
	m.toScan <- scanMsg{kind: scanMsgMainIdle, serial: m.idleSerial}
}

// run handles to_fetch readiness and fetch completions until the
// termination condition (spec §4.5) is reached or a fatal error occurs.
func (m *mainLoop) run(ctx context.Context) error {
	for {
		select {
		case msg, ok := <-m.toFetch:
			if !ok {
				return m.firstErr
			}
			if err := m.handleToFetch(ctx, msg); err != nil {
				m.capture(err)
			}
		case res, ok := <-m.fetcher.Results():
			if !ok {
				continue
			}
			if err := m.handleFetchResult(ctx, res); err != nil {
				m.capture(err)
			}
		}

		if m.firstErr != nil {
			return m.firstErr
		}
		if m.terminated() {
			return nil
		}
	}
}

func (m *mainLoop) capture(err error) {
	if m.firstErr == nil {
		m.firstErr = err
	}
}

func (m *mainLoop) terminated() bool {
	return m.metadataScanIdle &&
		m.nOutstandingMeta+m.nOutstandingCont == 0 &&
		m.nOutstandingMStag+m.nOutstandingCStag == 0
}

func (m *mainLoop) handleToFetch(ctx context.Context, msg fetchMsg) error {
	switch msg.kind {
	case fetchMsgFetch:
		return m.dispatchFetch(ctx, msg.id, msg.depth)
	case fetchMsgScanIdle:
		if !m.metadataScanIdle {
			m.idleSerial++
			m.toScan <- scanMsg{kind: scanMsgMainIdle, serial: m.idleSerial}
		}
	case fetchMsgMainIdle:
		if msg.serial == m.idleSerial {
			m.metadataScanIdle = true
			m.status.setIdle(true)
		}
	case fetchMsgScanError:
		return msg.err
	}
	return nil
}

func (m *mainLoop) dispatchFetch(ctx context.Context, id objid.ID, depth int) error {
	if id.Type.IsMeta() {
		m.nOutstandingMeta++
		m.nRequestedMeta++
	} else {
		m.nOutstandingCont++
		m.nRequestedCont++
	}
	m.status.setOutstanding(int64(m.nOutstandingMeta+m.nOutstandingCont), int64(m.nOutstandingMStag+m.nOutstandingCStag))

	uri := m.objectURI(id)
	if !m.fetcher.Submit(ctx, fetcher.Request{ID: id, URI: uri, Ctx: ctx, Depth: depth}) {
		return fmt.Errorf("fetch dropped for %s: fetcher closing", id)
	}
	return nil
}

func (m *mainLoop) handleFetchResult(ctx context.Context, res fetcher.Result) error {
	if res.ID.Type.IsMeta() {
		m.nOutstandingMeta--
	} else {
		m.nOutstandingCont--
	}
	m.status.setOutstanding(int64(m.nOutstandingMeta+m.nOutstandingCont), int64(m.nOutstandingMStag+m.nOutstandingCStag))
	if res.Err != nil {
		return res.Err
	}

	if res.ID.Type.IsMeta() {
		return m.stageMetadata(ctx, res)
	}
	return m.stageContent(ctx, res)
}

// stageMetadata implements the metadata continuation (spec §4.3): parse
// to confirm the body decodes as the declared variant, stage it
// transactionally, verify the returned checksum, then hand the object
// back to the Scan Worker via SCAN so it can recurse into it.
func (m *mainLoop) stageMetadata(ctx context.Context, res fetcher.Result) error {
	defer os.Remove(res.Path)

	body, err := os.ReadFile(res.Path)
	if err != nil {
		return fmt.Errorf("read fetched metadata %s: %w", res.ID, err)
	}
	if err := validateMetadataBody(res.ID.Type, body); err != nil {
		return err
	}

	m.nOutstandingMStag++
	m.status.setOutstanding(int64(m.nOutstandingMeta+m.nOutstandingCont), int64(m.nOutstandingMStag+m.nOutstandingCStag))
	csum, err := m.txn.StageMetadata(ctx, res.ID, body)
	m.nOutstandingMStag--
	m.status.setOutstanding(int64(m.nOutstandingMeta+m.nOutstandingCont), int64(m.nOutstandingMStag+m.nOutstandingCStag))
	if err != nil {
		return fmt.Errorf("stage metadata %s: %w", res.ID, err)
	}
	if csum != res.ID.Checksum {
		return &IntegrityError{Expected: res.ID.Checksum, Got: csum, Type: res.ID.Type}
	}

	m.nFetchedMeta++
	m.status.setFetched(int64(m.nFetchedMeta), int64(m.nFetchedCont))
	m.metadataScanIdle = false
	m.status.setIdle(false)
	m.toScan <- scanMsg{kind: scanMsgScan, id: res.ID, depth: res.Depth}
	return nil
}

// stageContent implements the content continuation (spec §4.3). FILE
// objects are never recursed, so there is no SCAN emission here.
func (m *mainLoop) stageContent(ctx context.Context, res fetcher.Result) error {
	defer os.Remove(res.Path)

	f, err := os.Open(res.Path)
	if err != nil {
		return fmt.Errorf("open fetched content %s: %w", res.ID, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat fetched content %s: %w", res.ID, err)
	}

	m.nOutstandingCStag++
	m.status.setOutstanding(int64(m.nOutstandingMeta+m.nOutstandingCont), int64(m.nOutstandingMStag+m.nOutstandingCStag))
	csum, err := m.txn.StageContent(ctx, info.Size(), f)
	m.nOutstandingCStag--
	m.status.setOutstanding(int64(m.nOutstandingMeta+m.nOutstandingCont), int64(m.nOutstandingMStag+m.nOutstandingCStag))
	if err != nil {
		return fmt.Errorf("stage content %s: %w", res.ID, err)
	}
	if csum != res.ID.Checksum {
		return &IntegrityError{Expected: res.ID.Checksum, Got: csum, Type: res.ID.Type}
	}

	m.nFetchedCont++
	m.status.setFetched(int64(m.nFetchedMeta), int64(m.nFetchedCont))
	return nil
}

// validateMetadataBody confirms body decodes as the metadata variant id
// declares, so a corrupt fetch fails at staging time rather than later
// when the Scan Worker tries to recurse into unparsable bytes.
func validateMetadataBody(t objid.Type, body []byte) error {
	switch t {
	case objid.Commit:
		_, err := objects.ParseCommit(body)
		return err
	case objid.DirTree:
		_, err := objects.ParseDirTree(body)
		return err
	case objid.DirMeta:
		_, err := objects.ParseDirMeta(body)
		return err
	default:
		return fmt.Errorf("validateMetadataBody: unexpected type %s", t)
	}
}
