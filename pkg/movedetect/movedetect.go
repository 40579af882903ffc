// Package movedetect implements the MoveDetector: it reconstructs logical
// moves from the split deleted+created event pairs that Windows (and some
// non-recursive POSIX watchers) emit instead of a single rename
// notification.
//
// The detector is driven explicitly by a caller-supplied clock rather than
// real timers, the same capability-injection pattern Merge, Sync, and the
// change builders use for their own collaborators; here it lets tests
// assert the 1-second fusion window deterministically instead of racing
// real time, while production callers simply pass time.Now at each step.
package movedetect

import (
	"time"

	"github.com/cozy-labs/cozy-sync-core/pkg/events"
	"github.com/cozy-labs/cozy-sync-core/pkg/metastore"
	"github.com/cozy-labs/cozy-sync-core/pkg/pathid"
)

// FuseWindow is the time a deleted or created event waits for its
// counterpart before being flushed as-is: a compromise, since a full
// disk-cache flush on spinning media is typically under 800ms and longer
// risks user confusion.
const FuseWindow = 1000 * time.Millisecond

// pendingEntry is one event awaiting fusion.
type pendingEntry struct {
	event      events.FsEvent
	deletedIno *uint64
	deadline   time.Time
}

// Detector aggregates deleted+created event pairs into renamed events.
type Detector struct {
	flavor pathid.Flavor
	store  metastore.MetaStore

	pending         []pendingEntry
	unmergedRenamed []events.FsEvent
}

// New creates a Detector backed by store for historical-path and inode
// lookups, using flavor to compute PathIds.
func New(store metastore.MetaStore, flavor pathid.Flavor) *Detector {
	return &Detector{flavor: flavor, store: store}
}

// Forget removes event from the recent-rename history, as downstream
// components call once they've consumed the rename.
func (d *Detector) Forget(event events.FsEvent) {
	for i, e := range d.unmergedRenamed {
		if e.Path == event.Path && e.OldPath == event.OldPath {
			d.unmergedRenamed = append(d.unmergedRenamed[:i], d.unmergedRenamed[i+1:]...)
			return
		}
	}
}

// resolveDeletedIno computes the inode backing a deleted event: first look
// up the live document at the event's path; if absent, walk unmergedRenamed
// right-to-left reconstructing the event's historical path chain by
// back-substituting prior renames, looking up each historical path in
// turn. The MetaStore advisory lock is held for the whole walk so a
// concurrent writer can't observe half a move.
func (d *Detector) resolveDeletedIno(now time.Time, path string) (*uint64, error) {
	handle, err := d.store.Lock("moveDetector")
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	id := pathid.Compute(d.flavor, path)
	if doc, err := d.store.Get(id); err != nil {
		return nil, err
	} else if doc != nil && doc.Ino != nil {
		return doc.Ino, nil
	}

	historical := path
	for i := len(d.unmergedRenamed) - 1; i >= 0; i-- {
		rename := d.unmergedRenamed[i]
		if rename.Path == historical {
			historical = rename.OldPath
			id := pathid.Compute(d.flavor, historical)
			if doc, err := d.store.Get(id); err != nil {
				return nil, err
			} else if doc != nil && doc.Ino != nil {
				return doc.Ino, nil
			}
		}
	}
	return nil, nil
}

// Feed processes one incoming batch of raw events at time now, returning any
// events that can be emitted immediately (fused renames, and anything
// flushed because its fusion window elapsed). Events still awaiting fusion
// remain queued internally. Feed preserves arrival order: an event leaves
// the detector no earlier, relative to other emitted events, than it
// arrived, except that a deleted/created pair collapses into a single
// renamed event positioned where the second (fusing) half arrived.
func (d *Detector) Feed(now time.Time, batch []events.FsEvent) ([]events.FsEvent, error) {
	var out []events.FsEvent

	for _, event := range batch {
		fused, err := d.ingest(now, event)
		if err != nil {
			return out, err
		}
		if fused != nil {
			out = append(out, *fused)
		}
	}

	out = append(out, d.flushExpired(now)...)
	return out, nil
}

// ingest processes a single event: it attempts to fuse it against pending
// entries of the opposite action, falling back to enqueueing it if no
// counterpart is found.
func (d *Detector) ingest(now time.Time, event events.FsEvent) (*events.FsEvent, error) {
	switch event.Action {
	case events.ActionDeleted:
		deletedIno, err := d.resolveDeletedIno(now, event.Path)
		if err != nil {
			return nil, err
		}
		if deletedIno != nil {
			if idx := d.findPendingCreatedByIno(*deletedIno); idx != -1 {
				created := d.pending[idx]
				d.removePending(idx)
				renamed := events.FsEvent{
					Action:  events.ActionRenamed,
					Path:    created.event.Path,
					OldPath: event.Path,
					Stats:   created.event.Stats,
				}
				d.unmergedRenamed = append(d.unmergedRenamed, renamed)
				return &renamed, nil
			}
		}
		d.pending = append(d.pending, pendingEntry{
			event:      event,
			deletedIno: deletedIno,
			deadline:   now.Add(FuseWindow),
		})
		return nil, nil

	case events.ActionCreated:
		var ino *uint64
		if event.Stats != nil {
			ino = event.Stats.Ino
		}
		if ino != nil {
			if idx := d.findPendingDeletedByIno(*ino); idx != -1 {
				deleted := d.pending[idx]
				d.removePending(idx)
				renamed := events.FsEvent{
					Action:  events.ActionRenamed,
					Path:    event.Path,
					OldPath: deleted.event.Path,
					Stats:   event.Stats,
				}
				d.unmergedRenamed = append(d.unmergedRenamed, renamed)
				return &renamed, nil
			}
		}
		d.pending = append(d.pending, pendingEntry{
			event:    event,
			deadline: now.Add(FuseWindow),
		})
		return nil, nil

	default:
		return &event, nil
	}
}

func (d *Detector) findPendingCreatedByIno(ino uint64) int {
	for i, p := range d.pending {
		if p.event.Action != events.ActionCreated {
			continue
		}
		if p.event.Stats != nil && p.event.Stats.Ino != nil && *p.event.Stats.Ino == ino {
			return i
		}
	}
	return -1
}

func (d *Detector) findPendingDeletedByIno(ino uint64) int {
	for i, p := range d.pending {
		if p.event.Action != events.ActionDeleted {
			continue
		}
		if p.deletedIno != nil && *p.deletedIno == ino {
			return i
		}
	}
	return -1
}

func (d *Detector) removePending(idx int) {
	d.pending = append(d.pending[:idx], d.pending[idx+1:]...)
}

// flushExpired removes and returns every pending entry whose fusion window
// has elapsed as of now, emitted unfused.
func (d *Detector) flushExpired(now time.Time) []events.FsEvent {
	var flushed []events.FsEvent
	var remaining []pendingEntry
	for _, p := range d.pending {
		if !now.Before(p.deadline) {
			flushed = append(flushed, p.event)
		} else {
			remaining = append(remaining, p)
		}
	}
	d.pending = remaining
	return flushed
}
