// Package objid defines the object identifier used throughout the pull
// engine: a (checksum, type) pair addressing a single object in the
// content-addressed store.
package objid

import (
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Type distinguishes the four object kinds the pull engine knows about.
// Commit, DirTree, and DirMeta are metadata (recursively walked); File is
// an opaque content leaf.
type Type int

const (
	// Commit references a tree and tree-meta pair, plus optional related commits.
	Commit Type = iota
	// DirTree lists files and child directories.
	DirTree
	// DirMeta is an opaque leaf carrying filesystem metadata for a directory.
	DirMeta
	// File is an opaque content leaf, never recursed into.
	File
)

// String renders the type for logging and error messages.
func (t Type) String() string {
	switch t {
	case Commit:
		return "commit"
	case DirTree:
		return "dirtree"
	case DirMeta:
		return "dirmeta"
	case File:
		return "file"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// IsMeta reports whether t is recursively walked (everything but File).
func (t Type) IsMeta() bool { return t != File }

// ChecksumLen is the length in bytes of a raw checksum (SHA-256).
const ChecksumLen = 32

// HexLen is the length of a checksum's hex-rendered form.
const HexLen = ChecksumLen * 2

// Checksum is a fixed-length binary digest, conventionally rendered as a
// lowercase hex string of fixed width.
type Checksum [ChecksumLen]byte

// String renders the checksum as lowercase hex.
func (c Checksum) String() string { return hex.EncodeToString(c[:]) }

// IsZero reports whether c is the zero checksum.
func (c Checksum) IsZero() bool { return c == Checksum{} }

// ParseChecksum validates and decodes a hex-rendered checksum string.
// It returns an error for any string that is not exactly HexLen hex
// characters; upper- and lowercase digits are both accepted.
func ParseChecksum(s string) (Checksum, error) {
	var c Checksum
	if len(s) != HexLen {
		return c, fmt.Errorf("checksum must be %d hex characters, got %d", HexLen, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("invalid checksum %q: %w", s, err)
	}
	copy(c[:], raw)
	return c, nil
}

// EncodeMsgpack writes the checksum as a binary blob, so that commit and
// dir-tree records serialize it compactly instead of as a hex string.
func (c Checksum) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(c[:])
}

// DecodeMsgpack reads a checksum from its binary blob form.
func (c *Checksum) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	if len(raw) != ChecksumLen {
		return fmt.Errorf("checksum field must be %d bytes, got %d", ChecksumLen, len(raw))
	}
	copy(c[:], raw)
	return nil
}

// IsValid reports whether s is a syntactically valid checksum string,
// discarding the parsed value. Used by callers (e.g. the
// orchestrator's root-argument classifier) that only need a yes/no answer.
func IsValid(s string) bool {
	_, err := ParseChecksum(s)
	return err == nil
}

// ID is the (checksum, type) pair that uniquely names an object within a
// single remote. It is the key type of the pull engine's scannedMetadata
// dedup table.
type ID struct {
	Checksum Checksum
	Type     Type
}

// New constructs an ID from a checksum and type.
func New(csum Checksum, t Type) ID { return ID{Checksum: csum, Type: t} }

// String renders the ID as "type:checksum" for logs and map keys that need
// to be human-readable; the requestedMetadata and requestedContent dedup
// tables key on Checksum alone (see pkg/pull), since a checksum of one type is never also
// requested as another type in practice, but String disambiguates for
// diagnostics.
func (id ID) String() string { return fmt.Sprintf("%s:%s", id.Type, id.Checksum) }
