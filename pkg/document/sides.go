package document

// Side identifies one of the two synchronized endpoints.
type Side uint8

const (
	// SideLocal identifies the local filesystem side.
	SideLocal Side = iota
	// SideRemote identifies the remote object-store side.
	SideRemote
)

// String returns a human-readable representation of the side.
func (s Side) String() string {
	if s == SideLocal {
		return "local"
	}
	return "remote"
}

// maxSide returns the larger of two optional revision counters, treating a
// nil counter as zero.
func maxSide(a, b *uint32) uint32 {
	var av, bv uint32
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	if av > bv {
		return av
	}
	return bv
}

// MarkSide implements the "markside" bookkeeping step: it sets
// doc.Sides[side] to one more than the maximum revision counter observed on
// prev (either side), which is how every Merge write advances the
// invariant that sides.local and sides.remote differ by at most 1. prev
// may be nil for a brand new document, in which case the new counter is 1.
func MarkSide(side Side, doc *Document, prev *Document) {
	var next uint32
	if prev != nil {
		next = maxSide(prev.Sides.Local, prev.Sides.Remote) + 1
	} else {
		next = 1
	}

	switch side {
	case SideLocal:
		doc.Sides.Local = &next
	case SideRemote:
		doc.Sides.Remote = &next
	}
}

// FullyPropagated reports whether a document's two side counters agree,
// meaning the change that produced it has reached both sides.
func FullyPropagated(doc *Document) bool {
	if doc.Sides.Local == nil || doc.Sides.Remote == nil {
		return false
	}
	return *doc.Sides.Local == *doc.Sides.Remote
}

// PendingSide reports which side still needs to catch up, and whether any
// side is in fact pending. Sync uses this to decide which writer to invoke
// for a reconciled document.
func PendingSide(doc *Document) (side Side, pending bool) {
	local := uint32(0)
	if doc.Sides.Local != nil {
		local = *doc.Sides.Local
	}
	remote := uint32(0)
	if doc.Sides.Remote != nil {
		remote = *doc.Sides.Remote
	}
	if local == remote {
		return 0, false
	}
	if local > remote {
		return SideRemote, true
	}
	return SideLocal, true
}
