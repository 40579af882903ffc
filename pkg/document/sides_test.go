package document

import "testing"

// TestMarkSideFreshDocument verifies that a brand new document (no previous
// revision) is marked with counter 1.
func TestMarkSideFreshDocument(t *testing.T) {
	doc := &Document{}
	MarkSide(SideLocal, doc, nil)
	if doc.Sides.Local == nil || *doc.Sides.Local != 1 {
		t.Errorf("expected local counter 1, got %v", doc.Sides.Local)
	}
}

// TestMarkSideAdvancesFromMax verifies that marking a side advances past the
// maximum of both previous counters, not just the counter for that side.
func TestMarkSideAdvancesFromMax(t *testing.T) {
	local, remote := uint32(3), uint32(7)
	prev := &Document{Sides: Sides{Local: &local, Remote: &remote}}
	doc := &Document{}
	MarkSide(SideLocal, doc, prev)
	if *doc.Sides.Local != 8 {
		t.Errorf("expected local counter to advance to 8, got %d", *doc.Sides.Local)
	}
}

// TestFullyPropagated verifies the "fully propagated" definition.
func TestFullyPropagated(t *testing.T) {
	n := uint32(2)
	equal := &Document{Sides: Sides{Local: &n, Remote: &n}}
	if !FullyPropagated(equal) {
		t.Error("expected equal side counters to be fully propagated")
	}

	local, remote := uint32(2), uint32(1)
	unequal := &Document{Sides: Sides{Local: &local, Remote: &remote}}
	if FullyPropagated(unequal) {
		t.Error("expected unequal side counters to not be fully propagated")
	}

	nilSide := &Document{Sides: Sides{Local: &local}}
	if FullyPropagated(nilSide) {
		t.Error("expected a document missing a side counter to not be fully propagated")
	}
}

// TestPendingSide verifies that the lagging side is correctly identified.
func TestPendingSide(t *testing.T) {
	local, remote := uint32(3), uint32(2)
	doc := &Document{Sides: Sides{Local: &local, Remote: &remote}}
	side, pending := PendingSide(doc)
	if !pending || side != SideRemote {
		t.Errorf("expected remote side pending, got side=%v pending=%v", side, pending)
	}

	equal := uint32(1)
	doc2 := &Document{Sides: Sides{Local: &equal, Remote: &equal}}
	if _, pending := PendingSide(doc2); pending {
		t.Error("expected no pending side for fully propagated document")
	}
}
