package merge

import (
	"testing"
	"time"

	"github.com/cozy-labs/cozy-sync-core/pkg/document"
	"github.com/cozy-labs/cozy-sync-core/pkg/metastore"
	"github.com/cozy-labs/cozy-sync-core/pkg/pathid"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newMerge(t *testing.T) (*Merge, metastore.MetaStore) {
	t.Helper()
	store := metastore.NewMemory()
	return New(store, pathid.FlavorPOSIX), store
}

func TestMergeAddFileCreatesSyntheticParents(t *testing.T) {
	m, store := newMerge(t)
	change := &document.Change{
		Kind: document.FileAddition,
		Doc:  &document.Document{ID: pathid.Compute(pathid.FlavorPOSIX, "a/b/c.txt"), Path: "a/b/c.txt", Kind: document.KindFile, MD5Sum: []byte{1}},
	}

	doc, err := m.Apply(fixedNow, document.SideLocal, change)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Sides.Local == nil || *doc.Sides.Local != 1 {
		t.Errorf("expected side counter 1, got %+v", doc.Sides)
	}

	parent, err := store.Get(pathid.Compute(pathid.FlavorPOSIX, "a/b"))
	if err != nil || parent == nil {
		t.Fatalf("expected synthetic parent 'a/b' to exist, got %v err=%v", parent, err)
	}
	grandparent, err := store.Get(pathid.Compute(pathid.FlavorPOSIX, "a"))
	if err != nil || grandparent == nil {
		t.Fatalf("expected synthetic parent 'a' to exist, got %v err=%v", grandparent, err)
	}
}

func TestMergeAddFileNameConflictRenames(t *testing.T) {
	m, store := newMerge(t)
	existing := &document.Document{ID: pathid.Compute(pathid.FlavorPOSIX, "doc.txt"), Path: "doc.txt", Kind: document.KindFile, MD5Sum: []byte{9}}
	document.MarkSide(document.SideRemote, existing, nil)
	if err := store.Put(existing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	incoming := &document.Change{
		Kind: document.FileAddition,
		Doc:  &document.Document{ID: pathid.Compute(pathid.FlavorPOSIX, "doc.txt"), Path: "doc.txt", Kind: document.KindFile, MD5Sum: []byte{1}},
	}
	doc, err := m.Apply(fixedNow, document.SideLocal, incoming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Path == "doc.txt" {
		t.Error("expected the new addition to be renamed onto a conflict path")
	}
	if doc.Sides.Remote != nil {
		t.Error("expected the conflict-renamed copy to only carry the applying side's counter")
	}
}

func TestMergeMoveDirReparentsDescendants(t *testing.T) {
	m, store := newMerge(t)

	dir := &document.Document{ID: pathid.Compute(pathid.FlavorPOSIX, "old"), Path: "old", Kind: document.KindFolder}
	document.MarkSide(document.SideLocal, dir, nil)
	child := &document.Document{ID: pathid.Compute(pathid.FlavorPOSIX, "old/file.txt"), Path: "old/file.txt", Kind: document.KindFile, MD5Sum: []byte{1}}
	document.MarkSide(document.SideLocal, child, nil)
	if err := store.BulkPut([]*document.Document{dir, child}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	change := &document.Change{
		Kind: document.DirMove,
		Doc:  &document.Document{ID: pathid.Compute(pathid.FlavorPOSIX, "new"), Path: "new", Kind: document.KindFolder},
		Was:  dir,
	}
	if _, err := m.Apply(fixedNow, document.SideRemote, change); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	moved, err := store.Get(pathid.Compute(pathid.FlavorPOSIX, "new/file.txt"))
	if err != nil || moved == nil {
		t.Fatalf("expected descendant to be reparented under 'new', got %v err=%v", moved, err)
	}
	oldChild, err := store.Get(pathid.Compute(pathid.FlavorPOSIX, "old/file.txt"))
	if err != nil || oldChild == nil || !oldChild.Deleted {
		t.Fatalf("expected old child entry to be tombstoned, got %+v err=%v", oldChild, err)
	}
}

func TestMergeTrashDirTombstonesDescendants(t *testing.T) {
	m, store := newMerge(t)

	dir := &document.Document{ID: pathid.Compute(pathid.FlavorPOSIX, "gone"), Path: "gone", Kind: document.KindFolder}
	child := &document.Document{ID: pathid.Compute(pathid.FlavorPOSIX, "gone/file.txt"), Path: "gone/file.txt", Kind: document.KindFile, MD5Sum: []byte{1}}
	if err := store.BulkPut([]*document.Document{dir, child}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	change := &document.Change{Kind: document.DirTrashing, Doc: dir, Was: dir}
	if _, err := m.Apply(fixedNow, document.SideLocal, change); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gotChild, err := store.Get(child.ID)
	if err != nil || gotChild == nil || !gotChild.Deleted {
		t.Fatalf("expected child to be tombstoned by the folder trashing, got %+v err=%v", gotChild, err)
	}
}

func TestMergeMoveOverwritesTrashedVictim(t *testing.T) {
	m, store := newMerge(t)

	source := &document.Document{ID: pathid.Compute(pathid.FlavorPOSIX, "foo.txt"), Path: "foo.txt", Kind: document.KindFile, MD5Sum: []byte{1}}
	victim := &document.Document{ID: pathid.Compute(pathid.FlavorPOSIX, "bar.txt"), Path: "bar.txt", Kind: document.KindFile, MD5Sum: []byte{2}}
	if err := store.BulkPut([]*document.Document{source, victim}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	change := &document.Change{
		Kind:      document.FileMove,
		Doc:       &document.Document{ID: pathid.Compute(pathid.FlavorPOSIX, "bar.txt"), Path: "bar.txt", Kind: document.KindFile, MD5Sum: []byte{1}},
		Was:       source,
		Overwrite: victim,
	}
	doc, err := m.Apply(fixedNow, document.SideLocal, change)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Path != "bar.txt" || doc.Deleted {
		t.Fatalf("expected the move to land live at 'bar.txt', got %+v", doc)
	}

	gotSource, err := store.Get(source.ID)
	if err != nil || gotSource == nil || !gotSource.Deleted {
		t.Fatalf("expected move source to be tombstoned, got %+v err=%v", gotSource, err)
	}

	landed, err := store.Get(pathid.Compute(pathid.FlavorPOSIX, "bar.txt"))
	if err != nil || landed == nil || landed.Deleted {
		t.Fatalf("expected exactly one live document at the destination, got %+v err=%v", landed, err)
	}
	if string(landed.MD5Sum) != string([]byte{1}) {
		t.Errorf("expected the destination to carry the mover's content, got %v", landed.MD5Sum)
	}
}
