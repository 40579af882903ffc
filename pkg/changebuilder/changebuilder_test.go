package changebuilder

import (
	"testing"
	"time"

	"github.com/cozy-labs/cozy-sync-core/pkg/document"
	"github.com/cozy-labs/cozy-sync-core/pkg/events"
	"github.com/cozy-labs/cozy-sync-core/pkg/metastore"
	"github.com/cozy-labs/cozy-sync-core/pkg/pathid"
	"github.com/cozy-labs/cozy-sync-core/pkg/trash"
)

func newLocalBuilder(t *testing.T) (*Local, metastore.MetaStore) {
	t.Helper()
	store := metastore.NewMemory()
	return NewLocal(store, pathid.FlavorPOSIX, PlatformPOSIX, trash.NewMatcher(trash.DefaultSentinel)), store
}

func TestLocalBuildAddition(t *testing.T) {
	b, _ := newLocalBuilder(t)
	change, err := b.Build(events.FsEvent{Action: events.ActionCreated, Path: "new-file.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Kind != document.FileAddition {
		t.Errorf("expected FileAddition, got %v", change.Kind)
	}
}

func TestLocalBuildInvalidPathEscapingRoot(t *testing.T) {
	b, _ := newLocalBuilder(t)
	change, err := b.Build(events.FsEvent{Action: events.ActionCreated, Path: "../escape.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Kind != document.InvalidChange {
		t.Errorf("expected InvalidChange, got %v", change.Kind)
	}
}

func TestLocalBuildPlatformIncompatible(t *testing.T) {
	store := metastore.NewMemory()
	b := NewLocal(store, pathid.FlavorNTFS, PlatformWindows, trash.NewMatcher(trash.DefaultSentinel))
	change, err := b.Build(events.FsEvent{Action: events.ActionCreated, Path: `weird<name>.txt`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Kind != document.PlatformIncompatibleChange {
		t.Errorf("expected PlatformIncompatibleChange, got %v", change.Kind)
	}
}

func TestLocalBuildIncompatibilitySuppressedInTrash(t *testing.T) {
	store := metastore.NewMemory()
	b := NewLocal(store, pathid.FlavorNTFS, PlatformWindows, trash.NewMatcher(trash.DefaultSentinel))
	change, err := b.Build(events.FsEvent{Action: events.ActionCreated, Path: `.cozy_trash/weird<name>.txt`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Kind != document.FileTrashing {
		t.Errorf("expected incompatibility to be suppressed inside trash sentinel, got %v", change.Kind)
	}
}

func TestLocalBuildMove(t *testing.T) {
	b, store := newLocalBuilder(t)
	oldID := pathid.Compute(pathid.FlavorPOSIX, "src/file.txt")
	if err := store.Put(&document.Document{ID: oldID, Path: "src/file.txt", Kind: document.KindFile, MD5Sum: []byte{1, 2, 3}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	change, err := b.Build(events.FsEvent{Action: events.ActionRenamed, Path: "dst/file.txt", OldPath: "src/file.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Kind != document.FileMove {
		t.Errorf("expected FileMove, got %v", change.Kind)
	}
	if change.Was == nil || change.Was.Path != "src/file.txt" {
		t.Errorf("expected Was to be the source document, got %+v", change.Was)
	}
}

func TestLocalBuildTrashing(t *testing.T) {
	b, store := newLocalBuilder(t)
	id := pathid.Compute(pathid.FlavorPOSIX, "doomed.txt")
	if err := store.Put(&document.Document{ID: id, Path: "doomed.txt", Kind: document.KindFile}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	change, err := b.Build(events.FsEvent{Action: events.ActionDeleted, Path: "doomed.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Kind != document.FileTrashing {
		t.Errorf("expected FileTrashing, got %v", change.Kind)
	}
}

func TestRemoteBuildDeletion(t *testing.T) {
	store := metastore.NewMemory()
	was := &document.Document{ID: "a", Path: "a.txt", Kind: document.KindFile, Remote: &document.RemoteRef{ID: "remote-1"}}
	if err := store.Put(was); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rb := NewRemote(store, pathid.FlavorPOSIX, trash.NewMatcher(trash.DefaultSentinel))
	change, err := rb.Build(events.RemoteDoc{ID: "remote-1", Deleted: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Kind != document.FileDeletion {
		t.Errorf("expected FileDeletion, got %v", change.Kind)
	}
}

func TestRemoteBuildUpdate(t *testing.T) {
	store := metastore.NewMemory()
	was := &document.Document{
		ID: pathid.Compute(pathid.FlavorPOSIX, "a.txt"), Path: "a.txt", Kind: document.KindFile,
		MD5Sum: []byte{1}, Remote: &document.RemoteRef{ID: "remote-1"},
	}
	if err := store.Put(was); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rb := NewRemote(store, pathid.FlavorPOSIX, trash.NewMatcher(trash.DefaultSentinel))
	change, err := rb.Build(events.RemoteDoc{ID: "remote-1", Path: "a.txt", Kind: "file", MD5Sum: []byte{2}, UpdatedAt: time.Now()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change.Kind != document.FileUpdate {
		t.Errorf("expected FileUpdate, got %v", change.Kind)
	}
}
