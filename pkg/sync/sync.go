// Package sync implements the Sync replay loop: it walks documents
// reconciled by merge in sides-counter order and issues the matching prep
// call against the opposite side's Writer, retrying transient failures and
// quarantining a document once it has failed three times in a row.
package sync

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/cozy-labs/cozy-sync-core/pkg/document"
	"github.com/cozy-labs/cozy-sync-core/pkg/events"
	"github.com/cozy-labs/cozy-sync-core/pkg/logging"
	"github.com/cozy-labs/cozy-sync-core/pkg/metastore"
)

// QuarantineThreshold is the number of consecutive failures after which a
// document is pulled out of the replay queue and surfaced to the user
// instead of retried again.
const QuarantineThreshold = 3

// ActionKind identifies why a UserAction was recorded.
type ActionKind uint8

const (
	// ActionQuarantined marks a document pulled out of the replay queue
	// after QuarantineThreshold consecutive failures.
	ActionQuarantined ActionKind = iota
	// ActionPermanentError marks a failure the classifier judged
	// unrecoverable on the first attempt.
	ActionPermanentError
)

// UserAction is a record surfaced to the user once Sync can no longer make
// progress on a document by itself.
type UserAction struct {
	Kind   ActionKind
	Path   string
	Detail string
	At     time.Time
}

// ErrorClass buckets a Writer error for retry purposes.
type ErrorClass uint8

const (
	// ErrorTransient errors are retried on a later replay pass.
	ErrorTransient ErrorClass = iota
	// ErrorPermanent errors quarantine their document immediately, without
	// waiting for QuarantineThreshold attempts.
	ErrorPermanent
)

// Classifier decides whether a Writer error is transient or permanent.
type Classifier func(error) ErrorClass

// DefaultClassifier treats every error as transient, the conservative
// "retry until quarantined" policy. A real transport integration should
// supply a classifier that fast-tracks its own permanent failure modes
// (e.g. an HTTP 4xx response) straight to quarantine.
func DefaultClassifier(error) ErrorClass {
	return ErrorTransient
}

// ReadSourceFunc resolves the byte stream for an addition or update.
type ReadSourceFunc func(doc *document.Document) events.ReadSource

// Item pairs the change merge produced with the document it resolved to, the
// unit Sync replays.
type Item struct {
	Change *document.Change
	Doc    *document.Document
}

// Sync replays reconciled documents against the opposite side's Writer.
type Sync struct {
	store      metastore.MetaStore
	local      events.Writer
	remote     events.Writer
	classifier Classifier
	logger     *logging.Logger
	now        func() time.Time

	actions []UserAction
}

// New builds a Sync bound to store and the two side writers.
func New(store metastore.MetaStore, local, remote events.Writer, logger *logging.Logger) *Sync {
	return &Sync{
		store:      store,
		local:      local,
		remote:     remote,
		classifier: DefaultClassifier,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClassifier overrides the error classifier used to decide whether a
// failed write is retried or quarantined immediately.
func (s *Sync) WithClassifier(c Classifier) *Sync {
	s.classifier = c
	return s
}

// DrainActions returns and clears the UserActions accumulated since the last
// call.
func (s *Sync) DrainActions() []UserAction {
	out := s.actions
	s.actions = nil
	return out
}

// Replay sorts items by ascending side counter ("pull by sides-counter
// order") and issues the matching Writer call for each, skipping documents
// whose error count has reached QuarantineThreshold.
func (s *Sync) Replay(ctx context.Context, items []Item, source ReadSourceFunc) error {
	ordered := make([]Item, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return maxCounter(ordered[i].Doc) < maxCounter(ordered[j].Doc)
	})

	for _, item := range ordered {
		if item.Doc.Errors >= QuarantineThreshold {
			continue
		}
		if err := s.replayOne(ctx, item, source); err != nil {
			return err
		}
	}
	return nil
}

// catchUp sets whichever side counter is missing to match the other,
// marking the document fully propagated once a replay succeeds. This
// mirrors the side that just wrote the change catching up to the side that
// originated it, not a new revision the way document.MarkSide records.
func catchUp(doc *document.Document) {
	switch {
	case doc.Sides.Local == nil && doc.Sides.Remote != nil:
		v := *doc.Sides.Remote
		doc.Sides.Local = &v
	case doc.Sides.Remote == nil && doc.Sides.Local != nil:
		v := *doc.Sides.Local
		doc.Sides.Remote = &v
	}
}

func maxCounter(doc *document.Document) uint32 {
	var local, remote uint32
	if doc.Sides.Local != nil {
		local = *doc.Sides.Local
	}
	if doc.Sides.Remote != nil {
		remote = *doc.Sides.Remote
	}
	if local > remote {
		return local
	}
	return remote
}

func (s *Sync) replayOne(ctx context.Context, item Item, source ReadSourceFunc) error {
	side, pending := document.PendingSide(item.Doc)
	if !pending {
		return nil
	}
	writer := s.remote
	if side == document.SideLocal {
		writer = s.local
	}

	err := s.issue(ctx, writer, item.Change, item.Doc, source)
	if err == nil {
		item.Doc.Errors = 0
		catchUp(item.Doc)
		return errors.Wrap(s.store.Put(item.Doc), "sync: unable to persist propagated document")
	}

	item.Doc.Errors++
	class := s.classifier(err)
	if class == ErrorPermanent {
		item.Doc.Errors = QuarantineThreshold
		s.record(ActionPermanentError, item.Doc.Path, err)
	} else if item.Doc.Errors >= QuarantineThreshold {
		s.record(ActionQuarantined, item.Doc.Path, err)
	} else {
		s.logger.Printf("sync: retrying %s after failure %d/%d: %v", item.Doc.Path, item.Doc.Errors, QuarantineThreshold, err)
	}
	return errors.Wrap(s.store.Put(item.Doc), "sync: unable to persist failure count")
}

func (s *Sync) record(kind ActionKind, path string, cause error) {
	s.actions = append(s.actions, UserAction{Kind: kind, Path: path, Detail: cause.Error(), At: s.now()})
	s.logger.Error(errors.Wrapf(cause, "sync: %s", path))
}

// issue dispatches change against writer, implementing the overwrite-then-move
// sequencing the squasher's overwrite rule set up and skipping kinds that
// carry no write at all.
func (s *Sync) issue(ctx context.Context, writer events.Writer, change *document.Change, doc *document.Document, source ReadSourceFunc) error {
	if change.Overwrite != nil {
		if err := trashVictim(ctx, writer, change.Overwrite); err != nil {
			return errors.Wrap(err, "sync: unable to clear overwritten victim before move")
		}
	}

	switch change.Kind {
	case document.FileAddition:
		_, err := writer.AddFile(ctx, doc.Path, source(doc))
		return err
	case document.FileUpdate:
		_, err := writer.UpdateFile(ctx, doc.Path, source(doc))
		return err
	case document.FileMove:
		_, err := writer.MoveFile(ctx, change.Was.Path, doc.Path)
		return err
	case document.DirAddition:
		_, err := writer.AddDir(ctx, doc.Path)
		return err
	case document.DirMove:
		_, err := writer.MoveDir(ctx, change.Was.Path, doc.Path)
		return err
	case document.FileTrashing:
		_, err := writer.TrashFile(ctx, doc.Path)
		return err
	case document.DirTrashing:
		_, err := writer.TrashDir(ctx, doc.Path)
		return err
	case document.FileDeletion:
		return writer.DeleteFile(ctx, doc.Path)
	case document.DirDeletion:
		return writer.DeleteDir(ctx, doc.Path)
	case document.DescendantChange, document.IgnoredChange, document.InvalidChange, document.PlatformIncompatibleChange:
		// Carried for bookkeeping only; never issued as a prep call.
		return nil
	default:
		return errors.Errorf("sync: %s change cannot be replayed", change.Kind)
	}
}

func trashVictim(ctx context.Context, writer events.Writer, victim *document.Document) error {
	if victim.Kind == document.KindFolder {
		_, err := writer.TrashDir(ctx, victim.Path)
		return err
	}
	_, err := writer.TrashFile(ctx, victim.Path)
	return err
}
