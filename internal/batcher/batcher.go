package batcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/usherlabs/logstore-archive/internal/bucket"
	"github.com/usherlabs/logstore-archive/internal/message"
	pebblestore "github.com/usherlabs/logstore-archive/internal/storage/pebble"
	logpkg "github.com/usherlabs/logstore-archive/pkg/log"
)

// ErrClosed reports an enqueue against a closed batcher.
var ErrClosed = errors.New("batcher: closed")

// Options configures a Batcher.
type Options struct {
	// MaxBatchLen triggers an immediate flush once this many writes are
	// pending.
	MaxBatchLen int
	// FlushInterval bounds how long a pending write waits for company.
	FlushInterval time.Duration
	Logger        logpkg.Logger
}

type entry struct {
	key  []byte
	val  []byte
	done chan error
}

// Batcher coalesces enqueued writes into atomic backend batches. A message
// handed to the batcher is either flushed or its failure is reported on the
// outcome channel; nothing is acknowledged before the backend commit
// returns.
type Batcher struct {
	db       *pebblestore.DB
	logger   logpkg.Logger
	maxLen   int
	interval time.Duration

	mu      sync.Mutex
	pending []entry
	closed  bool

	kick   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Batcher and starts its flush loop.
func New(db *pebblestore.DB, opts Options) *Batcher {
	if opts.MaxBatchLen <= 0 {
		opts.MaxBatchLen = 500
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 20 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	b := &Batcher{
		db:       db,
		logger:   opts.Logger.With(logpkg.Component("batcher")),
		maxLen:   opts.MaxBatchLen,
		interval: opts.FlushInterval,
		kick:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go b.flushLoop()
	return b
}

// Enqueue buffers a message row destined for the given bucket. The returned
// channel resolves exactly once: nil after the backend confirms the batch
// holding this write, or the flush error otherwise.
func (b *Batcher) Enqueue(ref bucket.Ref, msg *message.Message) <-chan error {
	done := make(chan error, 1)
	e := entry{
		key:  bucket.KeyRow(ref.StreamID, ref.Partition, ref.CreateMs, msg.Timestamp, msg.SequenceNo, msg.PublisherID, msg.MsgChainID),
		val:  message.EncodeRow(msg),
		done: done,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		done <- ErrClosed
		return done
	}
	b.pending = append(b.pending, e)
	full := len(b.pending) >= b.maxLen
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
	return done
}

func (b *Batcher) flushLoop() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			b.flush(context.Background())
			return
		case <-b.kick:
			b.flush(context.Background())
		case <-ticker.C:
			b.flush(context.Background())
		}
	}
}

// flush commits all pending writes as a single atomic batch and resolves
// every waiter with the commit outcome.
func (b *Batcher) flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	pb := b.db.NewBatch()
	defer pb.Close()
	var err error
	for _, e := range batch {
		if err = pb.Set(e.key, e.val, nil); err != nil {
			break
		}
	}
	if err == nil {
		err = b.db.CommitBatch(ctx, pb)
	}
	if err != nil {
		b.logger.Error("batch flush failed", logpkg.Int("writes", len(batch)), logpkg.Err(err))
	}
	for _, e := range batch {
		e.done <- err
	}
}

// Close flushes remaining writes and stops the loop. Writes enqueued after
// Close fail with ErrClosed. Idempotent.
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.doneCh
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.stopCh)
	<-b.doneCh
}
