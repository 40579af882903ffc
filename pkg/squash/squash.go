// Package squash implements the ChangeSquasher: it rewrites a batch of
// per-entry changes for a single side so that a directory move subsumes its
// descendants' implied changes, a trashing followed later in the batch by a
// move onto the same path becomes an explicit overwrite, and the final batch
// is sorted for safe sequential replay.
//
// The squasher maintains an "encounteredMoves" list and resolves the
// squashable-parent lookup with a "find first matching" policy (recorded in
// DESIGN.md): it returns the first ancestor move encountered in batch order
// whose source contains the candidate's source, not the most specific
// match.
package squash

import (
	"sort"
	"strings"

	"github.com/cozy-labs/cozy-sync-core/pkg/document"
	"github.com/cozy-labs/cozy-sync-core/pkg/pathid"
)

// squasher holds the state threaded through one batch.
type squasher struct {
	result           []*document.Change
	encounteredMoves []*document.Change
	// trashedAt maps a path with a still-live trashing change to that
	// change's index in result, for the overwrite-on-move rule.
	trashedAt map[string]int
}

// Squash rewrites a batch of changes and returns the squashed, sorted batch.
func Squash(changes []*document.Change) []*document.Change {
	s := &squasher{trashedAt: make(map[string]int)}
	for _, c := range changes {
		s.ingest(c)
	}
	return sortBatch(s.result)
}

// ingest places a single change, applying the overwrite-on-move and
// parent/descendant squashing rules as it goes.
func (s *squasher) ingest(c *document.Change) {
	if c.Kind.IsTrashing() {
		s.trashedAt[c.Doc.Path] = len(s.result)
		s.result = append(s.result, c)
		return
	}

	if !c.Kind.IsMove() {
		s.result = append(s.result, c)
		return
	}

	// Rule 1: trash-then-move-over becomes overwrite-on-move.
	if idx, ok := s.trashedAt[c.Doc.Path]; ok {
		victim := s.result[idx]
		s.result[idx] = &document.Change{
			Kind:   document.IgnoredChange,
			Side:   victim.Side,
			Doc:    victim.Doc,
			Was:    victim.Was,
			Detail: "trashing squashed: overwritten by a move onto the same path",
		}
		c.Overwrite = victim.Was
		delete(s.trashedAt, c.Doc.Path)
	}

	s.placeMove(c)
}

// placeMove applies rules 2 and 3 against the moves already encountered in
// this batch, then records c as a new top-level move and sweeps any
// previously placed moves that should now fold underneath it.
func (s *squasher) placeMove(c *document.Change) {
	for _, ancestor := range s.encounteredMoves {
		if c.Was == nil || ancestor.Was == nil {
			continue
		}
		if !isChildSource(ancestor, c) {
			continue
		}
		if tail, ok := isOnlyChildMove(ancestor, c); ok {
			absorb(ancestor, c, tail)
			s.result = append(s.result, c)
			return
		}
		// Rule 3: independently moved out from under the ancestor's
		// destination; correct Was.Path so replay starts from where the
		// ancestor left it, then fall through to treat c as a new
		// top-level move.
		tail := strings.TrimPrefix(c.Was.Path, ancestor.Was.Path+"/")
		corrected := ancestor.Doc.Path + "/" + tail
		correctedWas := c.Was.Clone()
		correctedWas.Path = corrected
		c.Was = correctedWas
		c.NeedRefetch = true
		break
	}

	s.encounteredMoves = append(s.encounteredMoves, c)
	s.result = append(s.result, c)
	s.sweepChildren(c)
}

// sweepChildren folds any previously placed move that is only now
// recognized as c's descendant (because c itself arrived after its
// children in the batch) into c.
func (s *squasher) sweepChildren(ancestor *document.Change) {
	for _, existing := range s.result {
		if existing == ancestor || !existing.Kind.IsMove() {
			continue
		}
		if existing.Was == nil || ancestor.Was == nil {
			continue
		}
		if !isChildSource(ancestor, existing) {
			continue
		}
		if tail, ok := isOnlyChildMove(ancestor, existing); ok {
			absorb(ancestor, existing, tail)
		}
	}
}

// absorb rewrites child in place as a DescendantChange of ancestor and
// records it on the ancestor's included-descendants list.
func absorb(ancestor, child *document.Change, _ string) {
	child.Kind = document.DescendantChange
	child.AncestorPath = ancestor.Doc.Path
	ancestor.AbsorbDescendant(child)
}

// isChildSource reports whether child's source path lies under ancestor's
// source path.
func isChildSource(ancestor, child *document.Change) bool {
	return strings.HasPrefix(child.Was.Path, ancestor.Was.Path+"/")
}

// isChildDestination reports whether child's destination path lies under
// ancestor's destination path.
func isChildDestination(ancestor, child *document.Change) bool {
	return strings.HasPrefix(child.Doc.Path, ancestor.Doc.Path+"/")
}

// isOnlyChildMove reports whether child is purely a descendant of ancestor's
// move: isChildSource(p, c) && isChildDestination(p, c) with the relative
// tail preserved between source and destination. It returns the shared
// relative tail when true.
func isOnlyChildMove(ancestor, child *document.Change) (string, bool) {
	if !isChildSource(ancestor, child) || !isChildDestination(ancestor, child) {
		return "", false
	}
	tailWas := strings.TrimPrefix(child.Was.Path, ancestor.Was.Path+"/")
	tailDoc := strings.TrimPrefix(child.Doc.Path, ancestor.Doc.Path+"/")
	if tailWas != tailDoc {
		return "", false
	}
	return tailWas, true
}

// effectivePath returns the path a change should be sorted and indexed by:
// the destination path for additions/moves, or the unchanged path for
// trashing/deletion/update changes.
func effectivePath(c *document.Change) string {
	if c.Doc != nil && c.Doc.Path != "" {
		return c.Doc.Path
	}
	if c.Was != nil {
		return c.Was.Path
	}
	return ""
}

// rank orders changes that share the same effective path: trashing and
// deletion sort first, so that a rename-to-occupied-name never collides.
func rank(c *document.Change) int {
	if c.Kind.IsTrashing() || c.Kind == document.FileDeletion || c.Kind == document.DirDeletion {
		return 0
	}
	return 1
}

// sortBatch orders the batch so parents precede children, trashing/deletion
// of P precedes addition/move to P, and DescendantChange entries are placed
// immediately after their ancestor. Comparisons use the raw (non-case-folded)
// path, so that on case-insensitive flavors an uppercase-form path naturally
// sorts before its lowercase twin (ASCII 'A'-'Z' precede 'a'-'z').
func sortBatch(changes []*document.Change) []*document.Change {
	var primary []*document.Change
	descendants := make(map[string][]*document.Change)
	for _, c := range changes {
		if c.Kind == document.DescendantChange {
			descendants[c.AncestorPath] = append(descendants[c.AncestorPath], c)
			continue
		}
		primary = append(primary, c)
	}

	sort.SliceStable(primary, func(i, j int) bool {
		a, b := primary[i], primary[j]
		pa, pb := effectivePath(a), effectivePath(b)
		if pa != pb {
			return pathid.Less(pa, pb)
		}
		return rank(a) < rank(b)
	})

	final := make([]*document.Change, 0, len(changes))
	var emit func(c *document.Change)
	emit = func(c *document.Change) {
		final = append(final, c)
		for _, kid := range descendants[effectivePath(c)] {
			emit(kid)
		}
	}
	for _, c := range primary {
		emit(c)
	}
	return final
}
