package document

import "testing"

// TestEnsureValidNil verifies that a nil document is invalid.
func TestEnsureValidNil(t *testing.T) {
	var d *Document
	if d.EnsureValid() == nil {
		t.Error("nil document incorrectly classified as valid")
	}
}

// TestEnsureValidFileRequiresMD5OncePropagated verifies the invariant that a
// file document carries an md5sum once either side has seen it.
func TestEnsureValidFileRequiresMD5OncePropagated(t *testing.T) {
	one := uint32(1)
	d := &Document{
		ID:    "a",
		Path:  "a",
		Kind:  KindFile,
		Sides: Sides{Local: &one},
	}
	if err := d.EnsureValid(); err == nil {
		t.Error("expected validation error for propagated file document without md5sum")
	}
	d.MD5Sum = []byte{1, 2, 3}
	if err := d.EnsureValid(); err != nil {
		t.Errorf("document with md5sum unexpectedly invalid: %v", err)
	}
}

// TestEnsureValidSidesDivergence verifies that side counters differing by
// more than one are rejected.
func TestEnsureValidSidesDivergence(t *testing.T) {
	local := uint32(5)
	remote := uint32(3)
	d := &Document{
		ID:    "a",
		Path:  "a",
		Kind:  KindFolder,
		Sides: Sides{Local: &local, Remote: &remote},
	}
	if err := d.EnsureValid(); err == nil {
		t.Error("expected validation error for divergent side counters")
	}
}

// TestCloneIndependence verifies Clone does not alias mutable fields.
func TestCloneIndependence(t *testing.T) {
	original := &Document{
		ID:     "a",
		Path:   "a",
		Kind:   KindFile,
		MD5Sum: []byte{1, 2, 3},
		Tags:   []string{"x"},
	}
	clone := original.Clone()
	clone.MD5Sum[0] = 9
	clone.Tags[0] = "y"

	if original.MD5Sum[0] == 9 {
		t.Error("clone aliases original MD5Sum slice")
	}
	if original.Tags[0] == "y" {
		t.Error("clone aliases original Tags slice")
	}
}

// TestCloneOverwriteRecursion verifies that cloning a document with an
// overwritten victim deep-copies the victim too.
func TestCloneOverwriteRecursion(t *testing.T) {
	victim := &Document{ID: "victim", Path: "victim", Kind: KindFile, MD5Sum: []byte{1}}
	original := &Document{ID: "a", Path: "a", Kind: KindFile, MD5Sum: []byte{2}, Overwrite: victim}
	clone := original.Clone()
	clone.Overwrite.MD5Sum[0] = 99
	if victim.MD5Sum[0] == 99 {
		t.Error("clone aliases the original overwrite victim")
	}
}
