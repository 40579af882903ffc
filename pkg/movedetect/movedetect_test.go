package movedetect

import (
	"testing"
	"time"

	"github.com/cozy-labs/cozy-sync-core/pkg/document"
	"github.com/cozy-labs/cozy-sync-core/pkg/events"
	"github.com/cozy-labs/cozy-sync-core/pkg/metastore"
	"github.com/cozy-labs/cozy-sync-core/pkg/pathid"
)

func u64(v uint64) *uint64 { return &v }

// TestFusesViaInodeLookup covers a Windows split rename: fusion when the
// deleted path resolves to a known inode via MetaStore (the common case on
// Windows, where the deleted document's inode is already recorded).
func TestFusesViaInodeLookup(t *testing.T) {
	store := metastore.NewMemory()
	if err := store.Put(docWithIno("foo.txt", 17)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := New(store, pathid.FlavorNTFS)
	now := time.Now()

	out, err := d.Feed(now, []events.FsEvent{
		{Action: events.ActionDeleted, Path: "foo.txt"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected deleted event to be queued pending fusion, got %+v", out)
	}

	out, err = d.Feed(now.Add(100*time.Millisecond), []events.FsEvent{
		{Action: events.ActionCreated, Path: "bar.txt", Stats: &events.Stats{Ino: u64(17)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one fused renamed event, got %d: %+v", len(out), out)
	}
	if out[0].Action != events.ActionRenamed || out[0].Path != "bar.txt" || out[0].OldPath != "foo.txt" {
		t.Errorf("unexpected fused event: %+v", out[0])
	}
}

// TestUnfusedEventFlushesAfterWindow verifies that an event with no
// counterpart is flushed as-is once its fusion window elapses.
func TestUnfusedEventFlushesAfterWindow(t *testing.T) {
	store := metastore.NewMemory()
	d := New(store, pathid.FlavorNTFS)
	now := time.Now()

	out, err := d.Feed(now, []events.FsEvent{
		{Action: events.ActionDeleted, Path: "lonely.txt"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected event to be queued, got %+v", out)
	}

	out, err = d.Feed(now.Add(FuseWindow+time.Millisecond), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Action != events.ActionDeleted || out[0].Path != "lonely.txt" {
		t.Fatalf("expected lonely deleted event flushed as-is, got %+v", out)
	}
}

// TestForgetRemovesFromHistory verifies Forget removes a synthesized rename
// from the recent-rename history so later deletions don't walk through it.
func TestForgetRemovesFromHistory(t *testing.T) {
	store := metastore.NewMemory()
	if err := store.Put(docWithIno("foo.txt", 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := New(store, pathid.FlavorNTFS)
	now := time.Now()

	d.Feed(now, []events.FsEvent{{Action: events.ActionDeleted, Path: "foo.txt"}})
	out, err := d.Feed(now, []events.FsEvent{{Action: events.ActionCreated, Path: "bar.txt", Stats: &events.Stats{Ino: u64(5)}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected fused rename, got %+v", out)
	}
	d.Forget(out[0])
	if len(d.unmergedRenamed) != 0 {
		t.Errorf("expected Forget to clear history, got %+v", d.unmergedRenamed)
	}
}

func docWithIno(path string, ino uint64) *document.Document {
	id := pathid.Compute(pathid.FlavorNTFS, path)
	return &document.Document{ID: id, Path: path, Kind: document.KindFile, Ino: u64(ino)}
}
