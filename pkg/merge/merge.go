// Package merge folds one squashed Change from either side into MetaStore,
// creating synthetic parent folders as needed, reparenting a moved folder's
// descendants, and renaming onto a "-conflict-<timestamp>" path whenever two
// sides independently claim the same name.
package merge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cozy-labs/cozy-sync-core/pkg/document"
	"github.com/cozy-labs/cozy-sync-core/pkg/metastore"
	"github.com/cozy-labs/cozy-sync-core/pkg/pathid"
)

// conflictTimeFormat avoids ':' so a conflict-renamed path stays valid on
// every platform's reserved-character set (Windows disallows ':' in a
// filename).
const conflictTimeFormat = "2006-01-02T15-04-05Z"

// Merge folds changes from both sides into a single MetaStore.
type Merge struct {
	store  metastore.MetaStore
	flavor pathid.Flavor
}

// New builds a Merge bound to store, computing PathIds under flavor.
func New(store metastore.MetaStore, flavor pathid.Flavor) *Merge {
	return &Merge{store: store, flavor: flavor}
}

// Apply folds one change from side into MetaStore and returns the resulting
// document. now is supplied explicitly (rather than read from time.Now)
// so conflict-rename timestamps are deterministic to test, the same
// capability-injection pattern used throughout this core.
func (m *Merge) Apply(now time.Time, side document.Side, change *document.Change) (*document.Document, error) {
	switch change.Kind {
	case document.FileAddition:
		return m.addFile(now, side, change)
	case document.FileUpdate:
		return m.updateFile(now, side, change)
	case document.FileMove:
		return m.move(now, side, change, document.KindFile)
	case document.DirAddition:
		return m.addDir(now, side, change)
	case document.DirMove:
		return m.move(now, side, change, document.KindFolder)
	case document.FileTrashing, document.FileDeletion:
		return m.trash(now, side, change, document.KindFile)
	case document.DirTrashing, document.DirDeletion:
		return m.trash(now, side, change, document.KindFolder)
	case document.DescendantChange, document.IgnoredChange:
		return change.Doc, nil
	default:
		return nil, errors.Errorf("merge: %s change cannot be applied", change.Kind)
	}
}

// ensureParentExists creates synthetic parent folder documents up to the
// root for any ancestor of path that MetaStore doesn't already know about,
// so an addition or move never violates the parent-existence invariant.
func (m *Merge) ensureParentExists(now time.Time, side document.Side, path string) error {
	parent := pathid.Dir(path)
	if parent == "" {
		return nil
	}
	id := pathid.Compute(m.flavor, parent)
	existing, err := m.store.Get(id)
	if err != nil {
		return errors.Wrap(err, "merge: unable to load parent document")
	}
	if existing != nil && !existing.Deleted {
		return nil
	}

	if err := m.ensureParentExists(now, side, parent); err != nil {
		return err
	}

	synthetic := &document.Document{ID: id, Path: parent, Kind: document.KindFolder, CreatedAt: now, UpdatedAt: now}
	document.MarkSide(side, synthetic, nil)
	if err := m.store.Put(synthetic); err != nil {
		return errors.Wrap(err, "merge: unable to create synthetic parent folder")
	}
	return nil
}

// conflictName renames base onto a "-conflict-<timestamp>" variant,
// preserving a file extension if present.
func conflictName(path string, now time.Time) string {
	dir := pathid.Dir(path)
	base := pathid.Base(path)
	ext := ""
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		ext = base[i:]
		base = base[:i]
	}
	renamed := fmt.Sprintf("%s-conflict-%s%s", base, now.UTC().Format(conflictTimeFormat), ext)
	if dir == "" {
		return renamed
	}
	return pathid.Join(dir, renamed)
}

// resolveConflict renames incoming onto a conflict path and persists it as a
// brand new document, leaving existing untouched.
func (m *Merge) resolveConflict(now time.Time, side document.Side, incoming, existing *document.Document, reason string) (*document.Document, error) {
	renamedPath := conflictName(incoming.Path, now)
	incoming.Path = renamedPath
	incoming.ID = pathid.Compute(m.flavor, renamedPath)
	incoming.CreatedAt = now
	document.MarkSide(side, incoming, nil)
	if err := m.store.Put(incoming); err != nil {
		return nil, errors.Wrapf(err, "merge: unable to persist conflict-renamed document (%s)", reason)
	}
	return incoming, nil
}

// collides reports whether target's path is already claimed by a different,
// live document that sourceID (the move/add's own prior identity, if any)
// doesn't account for.
func collides(existing *document.Document, sourceID pathid.ID) bool {
	return existing != nil && !existing.Deleted && existing.ID != sourceID
}

func (m *Merge) addFile(now time.Time, side document.Side, change *document.Change) (*document.Document, error) {
	doc := change.Doc.Clone()
	if err := m.ensureParentExists(now, side, doc.Path); err != nil {
		return nil, err
	}

	existing, err := m.store.Get(doc.ID)
	if err != nil {
		return nil, errors.Wrap(err, "merge: unable to check for a name collision")
	}
	if collides(existing, "") {
		if existing.Kind != doc.Kind {
			return m.resolveConflict(now, side, doc, existing, "kind conflict on add")
		}
		if existing.Sides.Local == nil && existing.Sides.Remote == nil {
			// Both sides produced an addition at this path before either
			// propagated: there's no prior revision to compare against, so
			// fall through to a name conflict rather than silently picking a
			// side.
			return m.resolveConflict(now, side, doc, existing, "initial add observed independently on both sides")
		}
		if string(existing.MD5Sum) != string(doc.MD5Sum) {
			// Same name, different content: keep both by renaming the
			// incoming copy.
			return m.resolveConflict(now, side, doc, existing, "name conflict on add")
		}
	}

	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
	} else {
		doc.CreatedAt = now
	}
	document.MarkSide(side, doc, existing)
	if err := m.store.Put(doc); err != nil {
		return nil, errors.Wrap(err, "merge: unable to persist file addition")
	}
	return doc, nil
}

func (m *Merge) addDir(now time.Time, side document.Side, change *document.Change) (*document.Document, error) {
	doc := change.Doc.Clone()
	if err := m.ensureParentExists(now, side, doc.Path); err != nil {
		return nil, err
	}

	existing, err := m.store.Get(doc.ID)
	if err != nil {
		return nil, errors.Wrap(err, "merge: unable to check directory for a name collision")
	}
	if collides(existing, "") {
		if existing.Kind != document.KindFolder {
			return m.resolveConflict(now, side, doc, existing, "kind conflict on add")
		}
		if existing.Sides.Local == nil && existing.Sides.Remote == nil {
			return m.resolveConflict(now, side, doc, existing, "initial add observed independently on both sides")
		}
	}

	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
	} else {
		doc.CreatedAt = now
	}
	document.MarkSide(side, doc, existing)
	if err := m.store.Put(doc); err != nil {
		return nil, errors.Wrap(err, "merge: unable to persist directory addition")
	}
	return doc, nil
}

func (m *Merge) updateFile(now time.Time, side document.Side, change *document.Change) (*document.Document, error) {
	doc := change.Doc.Clone()
	existing, err := m.store.Get(doc.ID)
	if err != nil {
		return nil, errors.Wrap(err, "merge: unable to load prior document for update")
	}
	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
	}
	document.MarkSide(side, doc, existing)
	if err := m.store.Put(doc); err != nil {
		return nil, errors.Wrap(err, "merge: unable to persist file update")
	}
	return doc, nil
}

func (m *Merge) move(now time.Time, side document.Side, change *document.Change, kind document.Kind) (*document.Document, error) {
	if change.Was == nil {
		return nil, errors.New("merge: move change has no source document")
	}
	if err := m.ensureParentExists(now, side, change.Doc.Path); err != nil {
		return nil, err
	}

	target := change.Doc.Clone()
	existing, err := m.store.Get(target.ID)
	if err != nil {
		return nil, errors.Wrap(err, "merge: unable to check move destination for a name collision")
	}
	if collides(existing, change.Was.ID) {
		if change.Overwrite != nil {
			if err := m.trashVictim(side, existing); err != nil {
				return nil, err
			}
		} else if existing.Kind != kind {
			return m.resolveConflict(now, side, target, existing, "kind conflict on move")
		} else {
			return m.resolveConflict(now, side, target, existing, "name conflict on move")
		}
	}

	prev, err := m.store.Get(change.Was.ID)
	if err != nil {
		return nil, errors.Wrap(err, "merge: unable to load move source document")
	}
	if prev != nil {
		target.CreatedAt = prev.CreatedAt
	}
	document.MarkSide(side, target, prev)

	if err := m.persistMove(change.Was, target); err != nil {
		return nil, err
	}

	if kind == document.KindFolder {
		if err := m.reparentDescendants(change.Was.ID, change.Was.Path, target.Path); err != nil {
			return nil, err
		}
	}
	return target, nil
}

// persistMove writes target and, if the move changed the document's ID
// (i.e. its path actually changed under pathid.Compute), tombstones the
// source entry pointing at the new ID, atomically.
func (m *Merge) persistMove(source *document.Document, target *document.Document) error {
	if source.ID == target.ID {
		if err := m.store.Put(target); err != nil {
			return errors.Wrap(err, "merge: unable to persist move")
		}
		return nil
	}

	tombstone := source.Clone()
	tombstone.Deleted = true
	movedID := target.ID
	tombstone.MoveTo = &movedID
	if err := m.store.BulkPut([]*document.Document{tombstone, target}); err != nil {
		return errors.Wrap(err, "merge: unable to persist move atomically")
	}
	return nil
}

// reparentDescendants rewrites every document under a moved folder's old
// path onto the corresponding path under its new one, tombstoning the old
// entries. A folder move implies its descendants moved too, even when the
// squasher already absorbed the explicit per-child changes.
func (m *Merge) reparentDescendants(oldID pathid.ID, oldPath, newPath string) error {
	children, err := m.store.ScanPrefix(oldID)
	if err != nil {
		return errors.Wrap(err, "merge: unable to scan moved folder's descendants")
	}

	var writes []*document.Document
	for _, child := range children {
		if child.ID == oldID {
			continue
		}
		tail := strings.TrimPrefix(child.Path, oldPath+"/")
		newChildPath := pathid.Join(newPath, tail)
		newChildID := pathid.Compute(m.flavor, newChildPath)

		tombstone := child.Clone()
		tombstone.Deleted = true
		movedID := newChildID
		tombstone.MoveTo = &movedID
		writes = append(writes, tombstone)

		moved := child.Clone()
		moved.ID = newChildID
		moved.Path = newChildPath
		writes = append(writes, moved)
	}
	if len(writes) == 0 {
		return nil
	}
	if err := m.store.BulkPut(writes); err != nil {
		return errors.Wrap(err, "merge: unable to persist descendant reparenting")
	}
	return nil
}

func (m *Merge) trash(now time.Time, side document.Side, change *document.Change, kind document.Kind) (*document.Document, error) {
	var targetID pathid.ID
	switch {
	case change.Was != nil:
		targetID = change.Was.ID
	case change.Doc != nil:
		targetID = change.Doc.ID
	default:
		return nil, errors.New("merge: trashing change has no target document")
	}

	existing, err := m.store.Get(targetID)
	if err != nil {
		return nil, errors.Wrap(err, "merge: unable to load document for trashing")
	}
	if existing == nil {
		return nil, nil
	}

	writes, err := m.tombstoneTree(side, existing)
	if err != nil {
		return nil, errors.Wrap(err, "merge: unable to build trashing batch")
	}
	if err := m.store.BulkPut(writes); err != nil {
		return nil, errors.Wrap(err, "merge: unable to persist trashing")
	}
	return writes[len(writes)-1], nil
}

// trashVictim tombstones a document (and, if it's a folder, its whole
// subtree) that a move is overwriting, so the store ends up matching what
// Sync will replay: clear the victim, then write the mover to its spot.
func (m *Merge) trashVictim(side document.Side, victim *document.Document) error {
	writes, err := m.tombstoneTree(side, victim)
	if err != nil {
		return errors.Wrap(err, "merge: unable to build overwrite-victim trashing batch")
	}
	if err := m.store.BulkPut(writes); err != nil {
		return errors.Wrap(err, "merge: unable to trash a move's overwritten victim")
	}
	return nil
}

// tombstoneTree builds the write batch for trashing root: its descendants
// first, deepest first so a listener observes children disappear before
// their parent, then root itself last, carrying the side's revision bump.
func (m *Merge) tombstoneTree(side document.Side, root *document.Document) ([]*document.Document, error) {
	var descendants []*document.Document
	if root.Kind == document.KindFolder {
		children, err := m.store.ScanPrefix(root.ID)
		if err != nil {
			return nil, errors.Wrap(err, "merge: unable to scan folder for trashing")
		}
		for _, child := range children {
			if child.ID == root.ID {
				continue
			}
			descendants = append(descendants, child)
		}
		sort.SliceStable(descendants, func(i, j int) bool {
			return strings.Count(descendants[i].Path, "/") > strings.Count(descendants[j].Path, "/")
		})
	}

	writes := make([]*document.Document, 0, len(descendants)+1)
	for _, child := range descendants {
		tombstone := child.Clone()
		tombstone.Deleted = true
		writes = append(writes, tombstone)
	}

	tombstone := root.Clone()
	tombstone.Deleted = true
	document.MarkSide(side, tombstone, root)
	writes = append(writes, tombstone)
	return writes, nil
}
