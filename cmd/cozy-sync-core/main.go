// Command cozy-sync-core demonstrates one reconciliation pass of the core:
// it scans a local directory tree into synthetic FsEvents, classifies them
// with the Local change builder, squashes the batch, folds it into
// MetaStore with Merge, and replays the result against a logging Writer
// with Sync. It exists to exercise the pipeline end to end; a production
// deployment supplies a real EventSource, RemoteFeed, and pair of Writers
// instead of this driver's stand-ins.
package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/cozy-labs/cozy-sync-core/pkg/changebuilder"
	"github.com/cozy-labs/cozy-sync-core/pkg/checksum"
	"github.com/cozy-labs/cozy-sync-core/pkg/document"
	"github.com/cozy-labs/cozy-sync-core/pkg/events"
	"github.com/cozy-labs/cozy-sync-core/pkg/logging"
	"github.com/cozy-labs/cozy-sync-core/pkg/merge"
	"github.com/cozy-labs/cozy-sync-core/pkg/metastore"
	"github.com/cozy-labs/cozy-sync-core/pkg/pathid"
	"github.com/cozy-labs/cozy-sync-core/pkg/squash"
	syncer "github.com/cozy-labs/cozy-sync-core/pkg/sync"
	"github.com/cozy-labs/cozy-sync-core/pkg/trash"
)

func main() {
	root := flag.StringP("root", "r", ".", "local directory to scan and reconcile")
	sentinel := flag.StringP("trash", "t", trash.DefaultSentinel, "trash sentinel directory name")
	flavorName := flag.StringP("flavor", "f", "posix", "filesystem identity flavor: posix, hfs, or ntfs")
	flag.Parse()

	flavor := pathid.FlavorPOSIX
	switch *flavorName {
	case "hfs":
		flavor = pathid.FlavorHFS
	case "ntfs":
		flavor = pathid.FlavorNTFS
	}

	logger := logging.RootLogger.Sublogger("cozy-sync-core")
	if err := run(logger, *root, *sentinel, flavor); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func run(logger *logging.Logger, root, sentinel string, flavor pathid.Flavor) error {
	ctx := context.Background()

	platform := changebuilder.PlatformPOSIX
	if runtime.GOOS == "windows" {
		platform = changebuilder.PlatformWindows
	}

	store := metastore.NewMemory()
	matcher := trash.NewMatcher(sentinel)
	builder := changebuilder.NewLocal(store, flavor, platform, matcher)
	sums := checksum.New()
	defer sums.Stop()

	fsEvents, err := scanTree(root)
	if err != nil {
		return err
	}

	var changes []*document.Change
	for _, event := range fsEvents {
		change, err := builder.Build(event)
		if err != nil {
			return err
		}
		if change.Kind == document.FileAddition || change.Kind == document.FileUpdate {
			sum, err := sums.Checksum(ctx, filepath.Join(root, change.Doc.Path))
			if err != nil {
				logger.Warn(err)
				continue
			}
			change.Doc.MD5Sum = sum[:]
		}
		changes = append(changes, change)
	}

	squashed := squash.Squash(changes)

	merger := merge.New(store, flavor)
	now := time.Now()

	local := &loggingWriter{logger: logger.Sublogger("local")}
	remote := &loggingWriter{logger: logger.Sublogger("remote")}
	s := syncer.New(store, local, remote, logger.Sublogger("replay"))

	var items []syncer.Item
	for _, change := range squashed {
		switch change.Kind {
		case document.IgnoredChange, document.InvalidChange, document.PlatformIncompatibleChange, document.DescendantChange:
			logger.Debugf("skipping %s: %s", change.Kind, change.Detail)
			continue
		}

		doc, err := merger.Apply(now, document.SideLocal, change)
		if err != nil {
			logger.Warn(err)
			continue
		}
		if doc == nil {
			continue
		}
		items = append(items, syncer.Item{Change: change, Doc: doc})
	}

	source := func(doc *document.Document) events.ReadSource {
		return &fileSource{path: filepath.Join(root, doc.Path)}
	}
	if err := s.Replay(ctx, items, source); err != nil {
		return err
	}

	for _, action := range s.DrainActions() {
		logger.Printf("user action: %s %s (%s)", action.Path, actionKindString(action.Kind), action.Detail)
	}
	return nil
}

func actionKindString(kind syncer.ActionKind) string {
	switch kind {
	case syncer.ActionQuarantined:
		return "quarantined"
	case syncer.ActionPermanentError:
		return "failed"
	default:
		return "unknown"
	}
}

// scanTree synthesizes an initial-scan batch of FsEvents for every entry
// under root, the bootstrap a real EventSource performs before it starts
// delivering live notifications.
func scanTree(root string) ([]events.FsEvent, error) {
	var out []events.FsEvent
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		ino := inodeOf(info)
		size := uint64(info.Size())
		modTime := info.ModTime()
		out = append(out, events.FsEvent{
			Action: events.ActionScan,
			Path:   rel,
			Stats: &events.Stats{
				IsDir:     info.IsDir(),
				Ino:       ino,
				Size:      &size,
				UpdatedAt: &modTime,
			},
		})
		return nil
	})
	return out, err
}

// loggingWriter is a demonstration events.Writer that logs every prep call
// it receives and mints a synthetic write result, standing in for a real
// transport or filesystem writer.
type loggingWriter struct {
	logger *logging.Logger
}

func (w *loggingWriter) result(size uint64) events.WriteResult {
	return events.WriteResult{
		RemoteID:  uuid.NewString(),
		Rev:       uuid.NewString(),
		Size:      size,
		UpdatedAt: time.Now(),
	}
}

func (w *loggingWriter) AddFile(ctx context.Context, path string, source events.ReadSource) (events.WriteResult, error) {
	n, err := drain(ctx, source)
	if err != nil {
		return events.WriteResult{}, err
	}
	w.logger.Printf("add %s (%s)", path, humanize.Bytes(n))
	return w.result(n), nil
}

func (w *loggingWriter) UpdateFile(ctx context.Context, path string, source events.ReadSource) (events.WriteResult, error) {
	n, err := drain(ctx, source)
	if err != nil {
		return events.WriteResult{}, err
	}
	w.logger.Printf("update %s (%s)", path, humanize.Bytes(n))
	return w.result(n), nil
}

func (w *loggingWriter) MoveFile(ctx context.Context, oldPath, newPath string) (events.WriteResult, error) {
	w.logger.Printf("move %s -> %s", oldPath, newPath)
	return w.result(0), nil
}

func (w *loggingWriter) TrashFile(ctx context.Context, path string) (events.WriteResult, error) {
	w.logger.Printf("trash %s", path)
	return w.result(0), nil
}

func (w *loggingWriter) DeleteFile(ctx context.Context, path string) error {
	w.logger.Printf("delete %s", path)
	return nil
}

func (w *loggingWriter) AddDir(ctx context.Context, path string) (events.WriteResult, error) {
	w.logger.Printf("mkdir %s", path)
	return w.result(0), nil
}

func (w *loggingWriter) MoveDir(ctx context.Context, oldPath, newPath string) (events.WriteResult, error) {
	w.logger.Printf("move dir %s -> %s", oldPath, newPath)
	return w.result(0), nil
}

func (w *loggingWriter) TrashDir(ctx context.Context, path string) (events.WriteResult, error) {
	w.logger.Printf("trash dir %s", path)
	return w.result(0), nil
}

func (w *loggingWriter) DeleteDir(ctx context.Context, path string) error {
	w.logger.Printf("rmdir %s", path)
	return nil
}

func drain(ctx context.Context, source events.ReadSource) (uint64, error) {
	if source == nil {
		return 0, nil
	}
	stream, err := source.CreateReadStream(ctx)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	n, err := io.Copy(io.Discard, stream)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// fileSource opens a local path on demand to satisfy events.ReadSource.
type fileSource struct {
	path string
}

func (s *fileSource) CreateReadStream(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(s.path)
}

