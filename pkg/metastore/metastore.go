// Package metastore defines the MetaStore capability consumed by Merge and
// MoveDetector, along with an in-memory reference implementation used by
// this module's own tests and its demonstration driver. A real deployment
// would back MetaStore with a persisted document database; that
// implementation is an external collaborator and is not part of this core.
package metastore

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/cozy-labs/cozy-sync-core/pkg/document"
	"github.com/cozy-labs/cozy-sync-core/pkg/pathid"
)

// ErrIDCollision is returned by Put when a document write would collide with
// a different live document already holding the same ID.
var ErrIDCollision = errors.New("metastore: id collision with a different live document")

// ReleaseHandle releases an advisory lock acquired via Lock.
type ReleaseHandle interface {
	Release()
}

// MetaStore is the key-ordered document store capability. None of its
// methods are safe for concurrent invocation from outside the single
// cooperative message loop, except where explicitly noted; callers are
// expected to serialize access themselves (Merge, Sync, and MoveDetector
// are each the sole writer/reader of their own queue).
type MetaStore interface {
	// Get retrieves the document stored at id, or nil if none exists.
	Get(id pathid.ID) (*document.Document, error)
	// Put writes a single document. It fails with ErrIDCollision if id
	// already names a different live (non-tombstoned) document via a
	// distinct path.
	Put(doc *document.Document) error
	// BulkPut writes a batch of documents atomically: either all writes
	// succeed, or none are applied.
	BulkPut(docs []*document.Document) error
	// ScanPrefix returns the document whose ID equals prefix and every
	// document whose ID lies under it (prefix followed by the separator), in
	// key order. It is used for recursive moves and deletions.
	ScanPrefix(prefix pathid.ID) ([]*document.Document, error)
	// LookupByRemoteID resolves the secondary index on Document.Remote.ID.
	LookupByRemoteID(remoteID string) (*document.Document, error)
	// LookupByInode resolves the secondary index on Document.Ino.
	LookupByInode(ino uint64) (*document.Document, error)
	// Lock acquires the single named advisory lock MoveDetector uses to
	// keep Merge from mutating documents while history is being walked.
	Lock(name string) (ReleaseHandle, error)
	// RemoteSeqGet returns the persisted remote feed cursor.
	RemoteSeqGet() (uint64, error)
	// RemoteSeqSet persists the remote feed cursor.
	RemoteSeqSet(seq uint64) error
}

// memoryStore is an in-memory MetaStore used for testing and the
// demonstration driver. It is safe for concurrent use: a single mutex
// guards the whole map, which is adequate since callers are expected to
// serialize through the cooperative loop anyway and concurrent unit tests
// still need a thread-safe fake.
type memoryStore struct {
	mu        sync.Mutex
	documents map[pathid.ID]*document.Document
	byRemote  map[string]pathid.ID
	byInode   map[uint64]pathid.ID
	locks     map[string]*sync.Mutex
	remoteSeq uint64
}

// NewMemory creates an empty in-memory MetaStore.
func NewMemory() MetaStore {
	return &memoryStore{
		documents: make(map[pathid.ID]*document.Document),
		byRemote:  make(map[string]pathid.ID),
		byInode:   make(map[uint64]pathid.ID),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (m *memoryStore) Get(id pathid.ID) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

func (m *memoryStore) Put(doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLocked(doc)
}

// putLocked performs the actual write; callers must hold m.mu.
func (m *memoryStore) putLocked(doc *document.Document) error {
	if existing, ok := m.documents[doc.ID]; ok {
		if existing.Path != doc.Path && !existing.Deleted && !doc.Deleted {
			return ErrIDCollision
		}
	}
	stored := doc.Clone()
	m.documents[doc.ID] = stored
	if stored.Remote != nil && stored.Remote.ID != "" {
		m.byRemote[stored.Remote.ID] = stored.ID
	}
	if stored.Ino != nil {
		m.byInode[*stored.Ino] = stored.ID
	}
	return nil
}

func (m *memoryStore) BulkPut(docs []*document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate the whole batch before applying any of it, so the write is
	// atomic.
	for _, doc := range docs {
		if existing, ok := m.documents[doc.ID]; ok {
			if existing.Path != doc.Path && !existing.Deleted && !doc.Deleted {
				return ErrIDCollision
			}
		}
	}
	for _, doc := range docs {
		if err := m.putLocked(doc); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryStore) ScanPrefix(prefix pathid.ID) ([]*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []*document.Document
	p := string(prefix)
	for id, doc := range m.documents {
		s := string(id)
		if p == "" || s == p || strings.HasPrefix(s, p+pathid.Sep) {
			results = append(results, doc.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})
	return results, nil
}

func (m *memoryStore) LookupByRemoteID(remoteID string) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRemote[remoteID]
	if !ok {
		return nil, nil
	}
	return m.documents[id].Clone(), nil
}

func (m *memoryStore) LookupByInode(ino uint64) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byInode[ino]
	if !ok {
		return nil, nil
	}
	return m.documents[id].Clone(), nil
}

// release is the ReleaseHandle returned by memoryStore.Lock.
type release struct {
	mu *sync.Mutex
}

func (r *release) Release() {
	r.mu.Unlock()
}

func (m *memoryStore) Lock(name string) (ReleaseHandle, error) {
	m.mu.Lock()
	lk, ok := m.locks[name]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[name] = lk
	}
	m.mu.Unlock()

	lk.Lock()
	return &release{mu: lk}, nil
}

func (m *memoryStore) RemoteSeqGet() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteSeq, nil
}

func (m *memoryStore) RemoteSeqSet(seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteSeq = seq
	return nil
}
