package pull

import "github.com/mirrorstore/objsync/pkg/objid"

// scanKind discriminates the variants carried on the to_scan queue
// (Main Loop → Scan Worker).
type scanKind int

const (
	scanMsgScan scanKind = iota
	scanMsgMainIdle
	scanMsgQuit
)

// scanMsg is one message on to_scan.
type scanMsg struct {
	kind   scanKind
	id     objid.ID // valid for scanMsgScan
	depth  int      // valid for scanMsgScan: recursion depth id was classified at
	serial uint32   // valid for scanMsgMainIdle
}

// fetchKind discriminates the variants carried on the to_fetch queue
// (Scan Worker → Main Loop).
type fetchKind int

const (
	fetchMsgFetch fetchKind = iota
	fetchMsgScanIdle
	fetchMsgMainIdle
	fetchMsgScanError
)

// fetchMsg is one message on to_fetch.
type fetchMsg struct {
	kind   fetchKind
	id     objid.ID // valid for fetchMsgFetch
	depth  int      // valid for fetchMsgFetch: recursion depth id was requested at
	serial uint32   // valid for fetchMsgMainIdle
	err    error    // valid for fetchMsgScanError: the Scan Worker's first fatal error
}

// queueDepth sizes the to_scan/to_fetch channel buffers. Dedup bounds the
// total working set, not this buffer, so a modest size just avoids
// needless blocking on bursts of sibling fetches within one Classify call.
const queueDepth = 256
