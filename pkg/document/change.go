package document

import "github.com/pkg/errors"

// ChangeKind is a sealed discriminated union over the high-level operations
// the core can emit. Unlike a tagged `change.type` string, every arm here
// is a distinct constant. The switch statements over it in merge and sync
// end in a default arm that returns an error, so a kind they do not handle
// is reported at runtime rather than silently ignored.
type ChangeKind uint8

const (
	// FileAddition is a new file appearing on a side.
	FileAddition ChangeKind = iota
	// FileUpdate is a file's content or metadata changing in place.
	FileUpdate
	// FileMove is a file moving and/or being renamed.
	FileMove
	// FileTrashing is a file being moved to the trash.
	FileTrashing
	// FileDeletion is a file being permanently removed (remote side only).
	FileDeletion
	// DirAddition is a new folder appearing on a side.
	DirAddition
	// DirMove is a folder moving and/or being renamed.
	DirMove
	// DirTrashing is a folder being moved to the trash.
	DirTrashing
	// DirDeletion is a folder being permanently removed (remote side only).
	DirDeletion
	// DescendantChange is a change absorbed into an ancestor move; it is
	// carried for invariant-checking during replay but is never itself
	// issued as a prep call.
	DescendantChange
	// IgnoredChange is a change that carries no operation, with Detail
	// explaining why (duplicate identity, squashed-away trashing, etc).
	IgnoredChange
	// InvalidChange is a change whose path fails validation.
	InvalidChange
	// PlatformIncompatibleChange is a change whose path is valid but
	// unusable on the opposite side's platform.
	PlatformIncompatibleChange
)

// String returns a human-readable name for the change kind.
func (k ChangeKind) String() string {
	switch k {
	case FileAddition:
		return "FileAddition"
	case FileUpdate:
		return "FileUpdate"
	case FileMove:
		return "FileMove"
	case FileTrashing:
		return "FileTrashing"
	case FileDeletion:
		return "FileDeletion"
	case DirAddition:
		return "DirAddition"
	case DirMove:
		return "DirMove"
	case DirTrashing:
		return "DirTrashing"
	case DirDeletion:
		return "DirDeletion"
	case DescendantChange:
		return "DescendantChange"
	case IgnoredChange:
		return "IgnoredChange"
	case InvalidChange:
		return "InvalidChange"
	case PlatformIncompatibleChange:
		return "PlatformIncompatibleChange"
	default:
		return "Unknown"
	}
}

// IsMove reports whether the change kind represents a move operation.
func (k ChangeKind) IsMove() bool {
	return k == FileMove || k == DirMove
}

// IsTrashing reports whether the change kind represents a trashing
// operation.
func (k ChangeKind) IsTrashing() bool {
	return k == FileTrashing || k == DirTrashing
}

// IsDir reports whether the change kind operates on a folder.
func (k ChangeKind) IsDir() bool {
	switch k {
	case DirAddition, DirMove, DirTrashing, DirDeletion:
		return true
	default:
		return false
	}
}

// Incompatibility describes one platform-reserved-character violation found
// in a path segment.
type Incompatibility struct {
	// Segment is the offending path segment.
	Segment string
	// Reserved is the set of reserved characters/names that segment
	// violates.
	Reserved string
}

// Change is the ephemeral record passed between MoveDetector,
// Local/RemoteChangeBuilder, ChangeSquasher, and Merge.
type Change struct {
	// Kind identifies the operation this change represents.
	Kind ChangeKind
	// Side identifies which side produced this change.
	Side Side
	// Doc is the target state of the document after this change.
	Doc *Document
	// Was is the document's previous state, for moves, updates, and
	// deletions; nil for additions.
	Was *Document

	// AncestorPath is set on a DescendantChange to the path of the ancestor
	// move that absorbed it.
	AncestorPath string
	// Update is set on a FileMove to indicate the file's body also changed
	// as part of the move.
	Update bool
	// NeedRefetch is set when the squasher corrected Was.Path and the
	// document must be reloaded from its source before replay.
	NeedRefetch bool
	// Overwrite carries the victim document when this move overwrote a
	// pending trashing.
	Overwrite *Document
	// Incompatibilities lists the reserved-character violations for a
	// PlatformIncompatibleChange.
	Incompatibilities []Incompatibility
	// Detail explains an IgnoredChange.
	Detail string

	// includedDescendants tracks the DescendantChange entries a move has
	// absorbed, for ChangeSquasher's internal bookkeeping.
	includedDescendants []*Change
}

// IncludedDescendants returns the descendant changes this move has absorbed.
func (c *Change) IncludedDescendants() []*Change {
	return c.includedDescendants
}

// AbsorbDescendant records that child has been folded into this move.
func (c *Change) AbsorbDescendant(child *Change) {
	c.includedDescendants = append(c.includedDescendants, child)
}

// EnsureValid checks structural invariants on a Change that are cheap to
// verify without consulting MetaStore.
func (c *Change) EnsureValid() error {
	if c == nil {
		return errors.New("nil change")
	}
	if c.Doc == nil && c.Kind != FileDeletion && c.Kind != DirDeletion {
		return errors.Errorf("%s change has nil target document", c.Kind)
	}
	switch c.Kind {
	case FileMove, DirMove:
		if c.Was == nil {
			return errors.Errorf("%s change has no prior document", c.Kind)
		}
	case FileUpdate:
		if c.Was == nil {
			return errors.New("FileUpdate change has no prior document")
		}
	}
	return nil
}
