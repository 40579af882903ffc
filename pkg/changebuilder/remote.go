package changebuilder

import (
	"github.com/pkg/errors"

	"github.com/cozy-labs/cozy-sync-core/pkg/document"
	"github.com/cozy-labs/cozy-sync-core/pkg/events"
	"github.com/cozy-labs/cozy-sync-core/pkg/metastore"
	"github.com/cozy-labs/cozy-sync-core/pkg/pathid"
	"github.com/cozy-labs/cozy-sync-core/pkg/trash"
)

// Remote turns RemoteFeed documents into typed Changes, loading each
// document's "was" record from MetaStore by remote ID.
type Remote struct {
	store  metastore.MetaStore
	flavor pathid.Flavor
	trash  *trash.Matcher
}

// NewRemote builds a Remote change builder.
func NewRemote(store metastore.MetaStore, flavor pathid.Flavor, trashMatcher *trash.Matcher) *Remote {
	return &Remote{store: store, flavor: flavor, trash: trashMatcher}
}

// Build classifies one RemoteDoc into a Change.
func (b *Remote) Build(doc events.RemoteDoc) (*document.Change, error) {
	was, err := b.store.LookupByRemoteID(doc.ID)
	if err != nil {
		return nil, errors.Wrap(err, "changebuilder: unable to load prior document by remote id")
	}

	if doc.Deleted {
		if was == nil {
			return &document.Change{
				Kind:   document.IgnoredChange,
				Side:   document.SideRemote,
				Doc:    &document.Document{},
				Detail: "deletion of unknown remote document",
			}, nil
		}
		kind := document.FileDeletion
		if was.Kind == document.KindFolder {
			kind = document.DirDeletion
		}
		return &document.Change{Kind: kind, Side: document.SideRemote, Doc: was, Was: was}, nil
	}

	if invalid, reason := invalidPath(doc.Path); invalid {
		return &document.Change{
			Kind:   document.InvalidChange,
			Side:   document.SideRemote,
			Doc:    &document.Document{Path: doc.Path},
			Detail: reason,
		}, nil
	}

	kind := document.KindFile
	if doc.Kind == "folder" || doc.Kind == "directory" {
		kind = document.KindFolder
	}

	id := pathid.Compute(b.flavor, doc.Path)
	target := &document.Document{
		ID:        id,
		Path:      doc.Path,
		Kind:      kind,
		MD5Sum:    doc.MD5Sum,
		Tags:      doc.Tags,
		UpdatedAt: doc.UpdatedAt,
		MIME:      doc.MIME,
		Remote:    &document.RemoteRef{ID: doc.ID, Rev: doc.Rev},
	}
	if doc.Size != nil {
		target.Size = *doc.Size
	}

	if was == nil {
		kindChange := document.FileAddition
		if kind == document.KindFolder {
			kindChange = document.DirAddition
		}
		return &document.Change{Kind: kindChange, Side: document.SideRemote, Doc: target}, nil
	}

	if was.ID == target.ID {
		if !bytesEqual(was.MD5Sum, target.MD5Sum) || !sameTags(was.Tags, target.Tags) || !was.UpdatedAt.Equal(target.UpdatedAt) {
			return &document.Change{Kind: document.FileUpdate, Side: document.SideRemote, Doc: target, Was: was}, nil
		}
		return &document.Change{Kind: document.IgnoredChange, Side: document.SideRemote, Doc: target, Was: was, Detail: "no observable change"}, nil
	}

	if b.trash.Contains(target.Path) {
		kindChange := document.FileTrashing
		if kind == document.KindFolder {
			kindChange = document.DirTrashing
		}
		return &document.Change{Kind: kindChange, Side: document.SideRemote, Doc: target, Was: was}, nil
	}

	kindChange := document.FileMove
	if kind == document.KindFolder {
		kindChange = document.DirMove
	}
	update := kind == document.KindFile && !bytesEqual(was.MD5Sum, target.MD5Sum)
	return &document.Change{Kind: kindChange, Side: document.SideRemote, Doc: target, Was: was, Update: update}, nil
}
