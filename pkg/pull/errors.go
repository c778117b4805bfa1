package pull

import (
	"fmt"

	"github.com/mirrorstore/objsync/pkg/objid"
)

// maxRecursion bounds Classify's recursion depth. The object store is a
// Merkle DAG by construction, but depth is untrusted input from the
// remote; this cap replaces any need for a per-call visited stack.
const maxRecursion = 256

// RecursionError reports that Classify exceeded maxRecursion while
// walking the object graph — either a malicious cycle or a pathologically
// deep tree.
type RecursionError struct {
	Depth int
	ID    objid.ID
}

func (e *RecursionError) Error() string {
	return fmt.Sprintf("recursion depth %d exceeds limit at %s", e.Depth, e.ID)
}

// IntegrityError reports that an object staged into the store computed a
// checksum different from the one it was requested under. This is always
// either a transport-level corruption or a malicious remote; the pull
// fails rather than silently accepting the mismatched bytes.
type IntegrityError struct {
	Expected objid.Checksum
	Got      objid.Checksum
	Type     objid.Type
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity mismatch for %s object: expected %s, got %s", e.Type, e.Expected, e.Got)
}
