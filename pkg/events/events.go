// Package events defines the external interfaces the core consumes:
// EventSource for the local filesystem watcher, RemoteFeed for the remote
// change feed, and the RemoteWriter/LocalWriter capabilities Sync replays
// prep calls against. None of these are implemented here; concrete OS
// watchers and transport clients are external collaborators.
package events

import (
	"context"
	"io"
	"time"
)

// Action identifies the kind of raw filesystem event delivered by an
// EventSource.
type Action uint8

const (
	// ActionCreated indicates a new path appeared.
	ActionCreated Action = iota
	// ActionModified indicates an existing path's content or metadata
	// changed.
	ActionModified
	// ActionDeleted indicates a path disappeared.
	ActionDeleted
	// ActionRenamed indicates a path was renamed or moved, already fused by
	// the watcher or by MoveDetector.
	ActionRenamed
	// ActionScan indicates a synthetic event produced by a full directory
	// scan rather than a live notification.
	ActionScan
)

// Stats carries the subset of filesystem metadata an FsEvent may include.
type Stats struct {
	// IsDir indicates whether the event concerns a directory rather than a
	// file, as reported by the underlying watcher's stat call.
	IsDir bool
	// Ino is the inode (POSIX) or file ID (Windows), when known.
	Ino *uint64
	// Size is the file size in bytes, when known.
	Size *uint64
	// UpdatedAt is the modification time, when known.
	UpdatedAt *time.Time
	// FileID is an alternate Windows file identifier, when Ino is
	// unavailable.
	FileID *uint64
}

// FsEvent is one raw local filesystem event.
type FsEvent struct {
	// Action identifies the kind of event.
	Action Action
	// Path is the path the event concerns.
	Path string
	// Stats carries available metadata, or nil if none was captured.
	Stats *Stats
	// OldPath is set for ActionRenamed events to the path's previous
	// location.
	OldPath string
}

// EventSource delivers batches of raw filesystem events. It is implemented
// by an OS-specific watcher acquisition layer, which is outside this
// core's scope.
type EventSource interface {
	// Next blocks until the next batch of events is available, the context
	// is cancelled, or an error occurs.
	Next(ctx context.Context) ([]FsEvent, error)
}

// RemoteDoc is one document delivered by RemoteFeed's change feed.
type RemoteDoc struct {
	ID        string
	Rev       string
	Kind      string
	DirID     string
	Name      string
	Path      string
	UpdatedAt time.Time
	MD5Sum    []byte
	Tags      []string
	Size      *uint64
	MIME      string
	Deleted   bool
}

// RemoteChanges is one page of results from RemoteFeed.Changes.
type RemoteChanges struct {
	// LastSeq is the cursor to resume from on the next call.
	LastSeq uint64
	// Docs is the page of remote documents and deletions.
	Docs []RemoteDoc
}

// RemoteFeed delivers the remote change feed. It is implemented by a
// transport client, which is outside this core's scope.
type RemoteFeed interface {
	// Changes returns all remote changes since the given sequence cursor.
	Changes(ctx context.Context, since uint64) (RemoteChanges, error)
}

// WriteResult carries the authoritative post-write metadata a writer
// returns for an applied operation.
type WriteResult struct {
	RemoteID  string
	Rev       string
	MD5Sum    []byte
	Size      uint64
	UpdatedAt time.Time
}

// Writer is the capability Sync replays prep calls against: either a
// RemoteWriter or a LocalWriter. Both share the same operation surface
// since both sides expose the same set of mutating calls.
type Writer interface {
	AddFile(ctx context.Context, path string, source ReadSource) (WriteResult, error)
	UpdateFile(ctx context.Context, path string, source ReadSource) (WriteResult, error)
	MoveFile(ctx context.Context, oldPath, newPath string) (WriteResult, error)
	TrashFile(ctx context.Context, path string) (WriteResult, error)
	DeleteFile(ctx context.Context, path string) error
	AddDir(ctx context.Context, path string) (WriteResult, error)
	MoveDir(ctx context.Context, oldPath, newPath string) (WriteResult, error)
	TrashDir(ctx context.Context, path string) (WriteResult, error)
	DeleteDir(ctx context.Context, path string) error
}

// ReadSource supplies file content for an add/update operation, mirroring
// the read side of the Writer interface (createReadStream(doc) -> byte
// sequence).
type ReadSource interface {
	CreateReadStream(ctx context.Context) (io.ReadCloser, error)
}
