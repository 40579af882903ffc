// Package changebuilder implements the Local- and RemoteChangeBuilder
// subsystems: classifying a raw local event or a remote feed document
// against the document already loaded from MetaStore for the same
// identity, and emitting the corresponding typed Change.
package changebuilder

import (
	"github.com/pkg/errors"

	"github.com/cozy-labs/cozy-sync-core/pkg/document"
	"github.com/cozy-labs/cozy-sync-core/pkg/events"
	"github.com/cozy-labs/cozy-sync-core/pkg/metastore"
	"github.com/cozy-labs/cozy-sync-core/pkg/pathid"
	"github.com/cozy-labs/cozy-sync-core/pkg/trash"
)

// Local turns aggregated local FsEvents into typed Changes, loading each
// event's "was" document from MetaStore.
type Local struct {
	store    metastore.MetaStore
	flavor   pathid.Flavor
	platform Platform
	trash    *trash.Matcher
}

// NewLocal builds a Local change builder.
func NewLocal(store metastore.MetaStore, flavor pathid.Flavor, platform Platform, trashMatcher *trash.Matcher) *Local {
	return &Local{store: store, flavor: flavor, platform: platform, trash: trashMatcher}
}

// Build classifies one aggregated FsEvent into a Change.
func (b *Local) Build(event events.FsEvent) (*document.Change, error) {
	path := event.Path

	if invalid, reason := invalidPath(path); invalid {
		return &document.Change{
			Kind:   document.InvalidChange,
			Side:   document.SideLocal,
			Doc:    &document.Document{Path: path},
			Detail: reason,
		}, nil
	}

	if !b.trash.Contains(path) {
		if incompatibilities := Validate(b.platform, path); len(incompatibilities) > 0 {
			return &document.Change{
				Kind:              document.PlatformIncompatibleChange,
				Side:              document.SideLocal,
				Doc:               &document.Document{Path: path},
				Incompatibilities: incompatibilities,
			}, nil
		}
	}

	id := pathid.Compute(b.flavor, path)
	was, err := b.store.Get(id)
	if err != nil {
		return nil, errors.Wrap(err, "changebuilder: unable to load prior document")
	}

	kind := document.KindFile
	if event.Stats != nil {
		if event.Stats.IsDir {
			kind = document.KindFolder
		}
	} else if was != nil {
		kind = was.Kind
	}

	doc := &document.Document{ID: id, Path: path, Kind: kind}
	if event.Stats != nil {
		if event.Stats.Ino != nil {
			doc.Ino = event.Stats.Ino
		}
		if event.Stats.Size != nil {
			doc.Size = *event.Stats.Size
		}
		if event.Stats.UpdatedAt != nil {
			doc.UpdatedAt = *event.Stats.UpdatedAt
		}
	}

	if b.trash.Contains(path) {
		kindChange := document.FileTrashing
		if doc.Kind == document.KindFolder {
			kindChange = document.DirTrashing
		}
		return &document.Change{Kind: kindChange, Side: document.SideLocal, Doc: doc, Was: was}, nil
	}

	switch event.Action {
	case events.ActionRenamed:
		oldID := pathid.Compute(b.flavor, event.OldPath)
		oldWas, err := b.store.Get(oldID)
		if err != nil {
			return nil, errors.Wrap(err, "changebuilder: unable to load move source document")
		}
		if oldWas == nil {
			oldWas = was
		}
		if oldWas != nil && doc.Kind == document.KindFile && len(doc.MD5Sum) == 0 {
			// Local events carry no digest: keep the source's, so the moved
			// document still has one and the move is not flagged as an update.
			doc.MD5Sum = oldWas.MD5Sum
		}
		kindChange := document.FileMove
		if doc.Kind == document.KindFolder {
			kindChange = document.DirMove
		}
		update := oldWas != nil && doc.Kind == document.KindFile && !bytesEqual(doc.MD5Sum, oldWas.MD5Sum)
		return &document.Change{Kind: kindChange, Side: document.SideLocal, Doc: doc, Was: oldWas, Update: update}, nil
	case events.ActionDeleted:
		if was == nil {
			return &document.Change{Kind: document.IgnoredChange, Side: document.SideLocal, Doc: doc, Detail: "deletion of unknown path"}, nil
		}
		kindChange := document.FileTrashing
		if was.Kind == document.KindFolder {
			kindChange = document.DirTrashing
		}
		return &document.Change{Kind: kindChange, Side: document.SideLocal, Doc: doc, Was: was}, nil
	default:
		if was == nil {
			kindChange := document.FileAddition
			if doc.Kind == document.KindFolder {
				kindChange = document.DirAddition
			}
			return &document.Change{Kind: kindChange, Side: document.SideLocal, Doc: doc}, nil
		}
		if was.ID == doc.ID && (!bytesEqual(was.MD5Sum, doc.MD5Sum) || !sameTags(was.Tags, doc.Tags) || !was.UpdatedAt.Equal(doc.UpdatedAt)) {
			return &document.Change{Kind: document.FileUpdate, Side: document.SideLocal, Doc: doc, Was: was}, nil
		}
		return &document.Change{Kind: document.IgnoredChange, Side: document.SideLocal, Doc: doc, Was: was, Detail: "no observable change"}, nil
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// invalidPath reports whether a path fails basic validation: empty,
// escaping the root, or containing an empty path segment.
func invalidPath(path string) (bool, string) {
	if path == "" {
		return true, "empty path"
	}
	if pathid.EscapesRoot(path) {
		return true, "path escapes synchronization root"
	}
	for _, segment := range splitPath(path) {
		if segment == "" {
			return true, "empty path segment"
		}
	}
	return false, ""
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	segments = append(segments, path[start:])
	return segments
}
