// internal/state/persist.go
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/boxwatch/internal/types"
)

// persister writes device snapshots in the background. Each snapshot is
// tagged with the store revision it was taken at; a write older than the
// newest one already stored is dropped. A weighted semaphore bounds how many
// snapshots are encoding at once, and the final Set is serialized so the
// revision check and the write happen together.
type persister struct {
	blobs     types.BlobStore
	codec     types.Codec
	key       string
	semaphore *semaphore.Weighted
	recorder  Recorder
	active    atomic.Int64

	writeMu sync.Mutex
	written uint64

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func newPersister(blobs types.BlobStore, c types.Codec, key string, maxConcurrent int64, rec Recorder) *persister {
	ctx, cancel := context.WithCancel(context.Background())
	return &persister{
		blobs:     blobs,
		codec:     c,
		key:       key,
		semaphore: semaphore.NewWeighted(maxConcurrent),
		recorder:  rec,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// dispatch schedules a write of devices and returns immediately. Errors are
// logged and recorded, never returned.
func (p *persister) dispatch(rev uint64, devices types.Devices) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		slog.Debug("persister closed, dropping write", "revision", rev)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := p.semaphore.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.semaphore.Release(1)

		p.active.Add(1)
		defer p.active.Add(-1)

		start := time.Now()
		err := p.write(rev, devices)
		p.recorder.ObservePersist(time.Since(start), err)
		if err != nil {
			slog.Warn("persist state failed", "key", p.key, "revision", rev, "error", err)
		}
	}()
}

func (p *persister) write(rev uint64, devices types.Devices) error {
	data, err := p.codec.Encode(devices)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if rev <= p.written {
		return nil
	}
	if err := p.blobs.Set(p.ctx, p.key, data); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	p.written = rev
	return nil
}

// Active returns the number of writes currently in progress.
func (p *persister) Active() int64 {
	return p.active.Load()
}

// flush blocks until every dispatched write has finished or ctx is done.
func (p *persister) flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting writes, waits for in-flight ones, then cancels the
// context handed to the blob store.
func (p *persister) close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	err := p.flush(ctx)
	p.cancel()
	return err
}

// Flush waits for all persistence writes dispatched so far.
func (s *Store) Flush(ctx context.Context) error {
	return s.persist.flush(ctx)
}

// Close flushes pending writes and stops persisting. The store stays usable
// in memory. The blob store itself is owned by the caller and is not closed.
func (s *Store) Close(ctx context.Context) error {
	return s.persist.close(ctx)
}

// PendingWrites returns the number of persistence writes currently running.
func (s *Store) PendingWrites() int64 {
	return s.persist.Active()
}
