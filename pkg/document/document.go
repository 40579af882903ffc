// Package document defines the persisted Document type and the ephemeral
// Change type that flows between the event aggregation, squashing, and
// merge subsystems. The types are plain structs validated by EnsureValid
// methods, mirroring the discriminated-union style mutagen uses for its
// Entry/Change types in pkg/synchronization/core, adapted from a
// generated-protobuf layout to hand-written Go since these types are not
// transmitted over a wire protocol in this core.
package document

import (
	"time"

	"github.com/pkg/errors"

	"github.com/cozy-labs/cozy-sync-core/pkg/pathid"
)

// Kind identifies whether a Document represents a file or a folder.
type Kind uint8

const (
	// KindFile indicates a regular file.
	KindFile Kind = iota
	// KindFolder indicates a directory.
	KindFolder
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// RemoteRef links a Document to the object it mirrors on the remote side.
type RemoteRef struct {
	// ID is the remote object's own identifier.
	ID string
	// Rev is the remote revision string observed for this object.
	Rev string
}

// Sides tracks the per-side revision counters. A nil counter means the
// side has never observed this document; the two counters may differ by
// at most one.
type Sides struct {
	// Local is the local-side revision counter, or nil if unset.
	Local *uint32
	// Remote is the remote-side revision counter, or nil if unset.
	Remote *uint32
}

// Document is the persisted record for one synchronized path, keyed in
// MetaStore by ID.
type Document struct {
	// ID is the canonical identity derived from Path; it is always equal to
	// pathid.Compute(flavor, Path) for whatever flavor the owning MetaStore
	// uses.
	ID pathid.ID
	// Path is the human-readable, normalized path (no leading separator, no
	// ".." segment, "." components collapsed).
	Path string
	// Kind distinguishes files from folders.
	Kind Kind

	// MD5Sum is the file's content digest. It is present whenever
	// Sides.Local or Sides.Remote is non-nil for a file document.
	MD5Sum []byte
	// Size is the file size in bytes.
	Size uint64
	// MIME is the file's detected MIME type.
	MIME string
	// Class is a coarse content classification (e.g. "image", "document").
	Class string
	// Executable indicates whether the file carries an executable bit.
	Executable bool

	// UpdatedAt is the last modification timestamp, stored at the precision
	// its source supplied; it is not truncated to seconds.
	UpdatedAt time.Time
	// CreatedAt is preserved across UpdateFile operations.
	CreatedAt time.Time

	// Tags are free-form labels attached to the document.
	Tags []string

	// Remote links this document to its counterpart object, if any.
	Remote *RemoteRef
	// Sides carries the per-side revision counters.
	Sides Sides

	// Ino is the inode (POSIX) or file ID (Windows) backing this document,
	// when known; used by MoveDetector and the lookupByInode secondary
	// index.
	Ino *uint64

	// MoveTo is set on a tombstoned document to record the ID it moved to.
	MoveTo *pathid.ID
	// Deleted marks the document as a tombstone.
	Deleted bool

	// Errors counts consecutive sync failures for this document, the
	// quarantine trigger; Sync sets it straight to its quarantine threshold
	// on a permanent failure.
	Errors uint16

	// Overwrite carries the victim document during an overwrite-on-move.
	Overwrite *Document
}

// EnsureValid checks the invariants that can be verified locally, without
// consulting MetaStore for parent existence.
func (d *Document) EnsureValid() error {
	if d == nil {
		return errors.New("nil document")
	}
	if d.ID == "" && d.Path != "" {
		return errors.New("document has empty id but non-empty path")
	}
	if d.Kind == KindFile {
		if (d.Sides.Local != nil || d.Sides.Remote != nil) && len(d.MD5Sum) == 0 && !d.Deleted {
			return errors.New("file document has been propagated on a side but carries no md5sum")
		}
	} else if d.Kind == KindFolder {
		if len(d.MD5Sum) != 0 {
			return errors.New("folder document carries an md5sum")
		}
	}
	if d.Sides.Local != nil && d.Sides.Remote != nil {
		local, remote := *d.Sides.Local, *d.Sides.Remote
		var diff uint32
		if local > remote {
			diff = local - remote
		} else {
			diff = remote - local
		}
		if diff > 1 {
			return errors.Errorf("sides counters diverge by more than one: local=%d remote=%d", local, remote)
		}
	}
	return nil
}

// Clone returns a deep-enough copy of the document for safe mutation by a
// caller, including a recursive copy of Overwrite. Tag and MD5Sum slices are
// copied so that mutating the clone never aliases the original's storage.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	clone := *d
	if d.MD5Sum != nil {
		clone.MD5Sum = append([]byte(nil), d.MD5Sum...)
	}
	if d.Tags != nil {
		clone.Tags = append([]string(nil), d.Tags...)
	}
	if d.Remote != nil {
		r := *d.Remote
		clone.Remote = &r
	}
	if d.Sides.Local != nil {
		v := *d.Sides.Local
		clone.Sides.Local = &v
	}
	if d.Sides.Remote != nil {
		v := *d.Sides.Remote
		clone.Sides.Remote = &v
	}
	if d.Ino != nil {
		v := *d.Ino
		clone.Ino = &v
	}
	if d.MoveTo != nil {
		v := *d.MoveTo
		clone.MoveTo = &v
	}
	if d.Overwrite != nil {
		clone.Overwrite = d.Overwrite.Clone()
	}
	return &clone
}
