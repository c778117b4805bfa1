// Package objects parses the metadata object records the pull engine needs
// to understand: commits, directory trees, and directory metadata. Object
// bodies are tagged MessagePack maps; File objects are opaque content
// leaves and are never parsed here (the store's content-parse-then-stage
// pipeline owns that).
package objects

import (
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mirrorstore/objsync/pkg/objid"
)

// RelatedCommit is one entry of a commit's "related" sequence: a named
// pointer to another commit, only traversed when the --related option is set.
type RelatedCommit struct {
	Name     string         `msgpack:"name"`
	Checksum objid.Checksum `msgpack:"checksum"`
}

// Commit is the parsed, field-wise view of a commit record.
type Commit struct {
	TreeContentsChecksum objid.Checksum  `msgpack:"tree_contents_csum"`
	TreeMetaChecksum     objid.Checksum  `msgpack:"tree_meta_csum"`
	Related              []RelatedCommit `msgpack:"related"`
}

// FileEntry is one entry of a dir-tree's "files" sequence.
type FileEntry struct {
	Name     string         `msgpack:"filename"`
	Checksum objid.Checksum `msgpack:"checksum"`
}

// DirEntry is one entry of a dir-tree's "dirs" sequence: a child directory
// named by both its tree and its meta checksum.
type DirEntry struct {
	Name         string         `msgpack:"dirname"`
	TreeChecksum objid.Checksum `msgpack:"tree_csum"`
	MetaChecksum objid.Checksum `msgpack:"meta_csum"`
}

// DirTree is the parsed view of a directory tree record.
type DirTree struct {
	Files []FileEntry `msgpack:"files"`
	Dirs  []DirEntry  `msgpack:"dirs"`
}

// DirMeta is an opaque leaf; the pull engine never inspects its payload,
// so the parsed form carries nothing but the raw bytes for round-tripping
// by callers that need them.
type DirMeta struct {
	Raw []byte `msgpack:"-"`
}

// ParseCommit decodes a commit record from its tagged MessagePack body.
func ParseCommit(body []byte) (*Commit, error) {
	var c Commit
	if err := msgpack.Unmarshal(body, &c); err != nil {
		return nil, fmt.Errorf("parse commit: %w", err)
	}
	return &c, nil
}

// ParseDirTree decodes a dir-tree record and validates every filename and
// dirname it carries. A single invalid name fails the whole parse, matching
// the spec's "a violation fails the pull" policy for filename validation.
func ParseDirTree(body []byte) (*DirTree, error) {
	var t DirTree
	if err := msgpack.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("parse dirtree: %w", err)
	}
	for _, f := range t.Files {
		if err := ValidateName(f.Name); err != nil {
			return nil, fmt.Errorf("file entry: %w", err)
		}
	}
	for _, d := range t.Dirs {
		if err := ValidateName(d.Name); err != nil {
			return nil, fmt.Errorf("dir entry: %w", err)
		}
	}
	return &t, nil
}

// ParseDirMeta decodes a dir-meta record. DirMeta is an opaque leaf: there
// is no structure to validate beyond it being present.
func ParseDirMeta(body []byte) (*DirMeta, error) {
	return &DirMeta{Raw: body}, nil
}

// ValidateName enforces the pull engine's filename rules: non-empty, no
// path separator, no NUL byte, and not "." or "..". These rules guard the
// recursion against untrusted trees that try to escape the local tree
// layout via crafted names.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid name %q", name)
	}
	if strings.ContainsRune(name, '/') {
		return fmt.Errorf("name %q contains a path separator", name)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("name %q contains a NUL byte", name)
	}
	return nil
}
