// Package checksum implements a serial MD5 digest queue. A single worker
// goroutine drains a FIFO queue of path/responder pairs so that at most one
// digest is in flight at a time: hard-disk heads are seek-bound, and
// parallel digests regress throughput rather than improving it. The queue
// itself is coordinated with golang.org/x/sync's errgroup, the same
// worker-pool primitive onedrive-go's transfer manager uses.
package checksum

import (
	"context"
	"crypto/md5"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrBusy indicates the target file was transiently locked by another
// writer when the digest was attempted.
var ErrBusy = errors.New("checksum: file busy")

// ErrMissing indicates the target file does not exist.
var ErrMissing = errors.New("checksum: file missing")

// maxBackoff bounds the cumulative retry window for a busy file: retry
// with exponential backoff capped at ~30s total.
const maxBackoff = 30 * time.Second

// initialBackoff is the delay before the first retry.
const initialBackoff = 100 * time.Millisecond

// job is one pending checksum request.
type job struct {
	path     string
	response chan result
}

// result is the outcome of a single checksum job.
type result struct {
	sum [16]byte
	err error
}

// Checksumer serially computes MD5 digests of local files from its own
// worker goroutine, so callers never block the main reconciliation loop on
// disk I/O: it is one of the few pieces of state allowed to escape the
// cooperative message loop.
type Checksumer struct {
	jobs   chan job
	group  *errgroup.Group
	cancel context.CancelFunc
}

// New starts a Checksumer's worker goroutine. Call Stop to shut the worker
// down; jobs still queued at that point are dropped.
func New() *Checksumer {
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	c := &Checksumer{
		jobs:   make(chan job, 64),
		group:  group,
		cancel: cancel,
	}
	group.Go(func() error {
		c.run(ctx)
		return nil
	})
	return c
}

// run is the worker loop: it drains jobs one at a time, never starting a
// new digest until the previous one (including its retries) has completed.
func (c *Checksumer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-c.jobs:
			if !ok {
				return
			}
			sum, err := computeWithRetry(ctx, j.path)
			j.response <- result{sum: sum, err: err}
		}
	}
}

// Checksum queues a digest request for path and blocks until it completes or
// ctx is cancelled. It is safe to call concurrently; requests are served
// strictly FIFO by the single worker.
func (c *Checksumer) Checksum(ctx context.Context, path string) ([16]byte, error) {
	response := make(chan result, 1)
	select {
	case c.jobs <- job{path: path, response: response}:
	case <-ctx.Done():
		return [16]byte{}, ctx.Err()
	}

	select {
	case r := <-response:
		return r.sum, r.err
	case <-ctx.Done():
		return [16]byte{}, ctx.Err()
	}
}

// Stop closes the job queue and waits for the worker to exit. Any jobs still
// queued when Stop is called are dropped rather than drained, matching the
// cooperative loop's cancellation semantics at its suspension boundaries.
func (c *Checksumer) Stop() {
	c.cancel()
	close(c.jobs)
	_ = c.group.Wait()
}

// computeWithRetry implements the retry policy: busy errors retry with
// exponential backoff capped at ~30s total; missing-file errors surface
// immediately; any other I/O error is retried exactly once before
// surfacing.
func computeWithRetry(ctx context.Context, path string) ([16]byte, error) {
	var elapsed time.Duration
	backoff := initialBackoff
	otherRetried := false

	for {
		sum, err := computeOnce(path)
		if err == nil {
			return sum, nil
		}

		switch {
		case errors.Is(err, ErrMissing):
			return [16]byte{}, err
		case errors.Is(err, ErrBusy):
			if elapsed >= maxBackoff {
				return [16]byte{}, errors.Wrap(err, "checksum: exceeded busy-retry budget")
			}
			wait := backoff
			if remaining := maxBackoff - elapsed; wait > remaining {
				wait = remaining
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return [16]byte{}, ctx.Err()
			}
			elapsed += wait
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		default:
			if otherRetried {
				return [16]byte{}, err
			}
			otherRetried = true
			continue
		}
	}
}

// computeOnce opens path and computes its MD5 digest in one pass, classifying
// the error according to the taxonomy computeWithRetry expects.
func computeOnce(path string) ([16]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return [16]byte{}, ErrMissing
		}
		if errors.Is(err, os.ErrPermission) {
			return [16]byte{}, errors.Wrap(err, "checksum: permission denied")
		}
		if isBusy(err) {
			return [16]byte{}, ErrBusy
		}
		return [16]byte{}, errors.Wrap(err, "checksum: unable to open file")
	}
	defer file.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, file); err != nil {
		if isBusy(err) {
			return [16]byte{}, ErrBusy
		}
		return [16]byte{}, errors.Wrap(err, "checksum: unable to read file")
	}

	var sum [16]byte
	copy(sum[:], hasher.Sum(nil))
	return sum, nil
}
