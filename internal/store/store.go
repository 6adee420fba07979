package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/usherlabs/logstore-archive/internal/batcher"
	"github.com/usherlabs/logstore-archive/internal/bucket"
	"github.com/usherlabs/logstore-archive/internal/config"
	"github.com/usherlabs/logstore-archive/internal/message"
	"github.com/usherlabs/logstore-archive/internal/query"
	pebblestore "github.com/usherlabs/logstore-archive/internal/storage/pebble"
	logpkg "github.com/usherlabs/logstore-archive/pkg/log"
)

var (
	// ErrClosed reports an operation against a closed store. Parked writes
	// cancelled by Close resolve with it.
	ErrClosed = errors.New("store: closed")
	// ErrBackendUnavailable reports that the backend could not be opened
	// after exhausting bootstrap retries. Fatal to startup.
	ErrBackendUnavailable = errors.New("store: backend unavailable")
	// ErrInvalidArgument aliases the query package's synchronous
	// bad-range-combination error.
	ErrInvalidArgument = query.ErrInvalidArgument
)

// Options configures Open.
type Options struct {
	Config config.Config
	Logger logpkg.Logger
	// Metrics is an optional hook observing backend latencies/sizes.
	Metrics pebblestore.MetricsHook
	// DB substitutes a pre-opened backend; mainly for tests. When set, the
	// store does not own it and Close leaves it open.
	DB *pebblestore.DB
}

// Store is the time-partitioned append log and range-query engine.
type Store struct {
	db       *pebblestore.DB
	ownsDB   bool
	dir      *bucket.Directory
	batch    *batcher.Batcher
	streamer *query.Streamer
	logger   logpkg.Logger

	retryInterval time.Duration

	mu          sync.Mutex
	closed      bool
	nextPending uint64
	pending     map[uint64]*pendingWrite

	obsMu     sync.RWMutex
	observers map[uint64]Observer
	nextObs   uint64
}

// pendingWrite is a parked message waiting for its bucket to exist. Its
// lifetime ends with delivery or Close, never silently.
type pendingWrite struct {
	timer *time.Timer
	done  chan error
}

// Open wires the backend, bucket directory, batcher, and query streamer.
// Backend open is retried with fixed spacing per the config and fails with
// ErrBackendUnavailable once attempts are exhausted.
func Open(opts Options) (*Store, error) {
	cfg := opts.Config
	if cfg == (config.Config{}) {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}

	db := opts.DB
	ownsDB := false
	if db == nil {
		var err error
		db, err = openBackend(cfg, logger, opts.Metrics)
		if err != nil {
			return nil, err
		}
		ownsDB = true
	}

	s := &Store{
		db:            db,
		ownsDB:        ownsDB,
		logger:        logger.With(logpkg.Component("store")),
		retryInterval: time.Duration(cfg.RetryIntervalMs) * time.Millisecond,
		pending:       map[uint64]*pendingWrite{},
		observers:     map[uint64]Observer{},
	}
	if s.retryInterval <= 0 {
		s.retryInterval = 500 * time.Millisecond
	}

	s.dir = bucket.NewDirectory(db, bucket.Options{
		Limits: bucket.Limits{
			MaxSizeBytes: cfg.Bucket.MaxSizeBytes,
			MaxRecords:   cfg.Bucket.MaxRecords,
			MaxAgeMs:     cfg.Bucket.MaxAgeMs,
		},
		MaintainInterval: time.Duration(cfg.Bucket.MaintainIntervalMs) * time.Millisecond,
		Logger:           logger,
	})
	s.batch = batcher.New(db, batcher.Options{
		MaxBatchLen:   cfg.Batch.MaxLen,
		FlushInterval: time.Duration(cfg.Batch.FlushIntervalMs) * time.Millisecond,
		Logger:        logger,
	})
	s.streamer = query.NewStreamer(db, s.dir, query.Options{
		BufferLen:  cfg.Query.BufferLen,
		YieldAfter: time.Duration(cfg.Query.YieldMs) * time.Millisecond,
		Logger:     logger,
		OnRead:     s.notifyRead,
	})
	s.dir.Start()
	return s, nil
}

func openBackend(cfg config.Config, logger logpkg.Logger, metrics pebblestore.MetricsHook) (*pebblestore.DB, error) {
	mode := pebblestore.FsyncModeInterval
	switch cfg.Fsync {
	case "always":
		mode = pebblestore.FsyncModeAlways
	case "interval", "":
		mode = pebblestore.FsyncModeInterval
	case "never":
		mode = pebblestore.FsyncModeNever
	default:
		return nil, fmt.Errorf("store: invalid fsync mode %q; use always|interval|never", cfg.Fsync)
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 20
	}
	backoff := time.Duration(cfg.ConnectBackoffMs) * time.Millisecond
	if backoff <= 0 {
		backoff = 5 * time.Second
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir:       cfg.DataDir,
			Fsync:         mode,
			FsyncInterval: time.Duration(cfg.FsyncIntervalMs) * time.Millisecond,
			Logger:        logger,
			Metrics:       metrics,
		})
		if err == nil {
			return db, nil
		}
		lastErr = err
		logger.Warn("backend open failed, retrying",
			logpkg.Int("attempt", i+1), logpkg.Int("attempts", attempts), logpkg.Err(err))
		if i+1 < attempts {
			time.Sleep(backoff)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, lastErr)
}

// Store routes a message into its time bucket, batching the physical write.
// The returned channel resolves once: nil after the backend confirms the
// write, or the failure. When no bucket covers the message's timestamp yet,
// the write is parked and retried until a bucket appears or the store
// closes.
func (s *Store) Store(msg *message.Message) <-chan error {
	done := make(chan error, 1)
	s.storeAttempt(msg, done)
	return done
}

func (s *Store) storeAttempt(msg *message.Message, done chan error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		done <- ErrClosed
		return
	}

	if err := s.dir.Track(msg.StreamID, msg.Partition); err != nil {
		done <- err
		return
	}
	ref, err := s.dir.Resolve(msg.StreamID, msg.Partition, msg.Timestamp)
	if errors.Is(err, bucket.ErrNoBucket) {
		s.park(msg, done)
		return
	}
	if err != nil {
		done <- err
		return
	}
	if err := s.dir.RecordWrite(ref, int64(msg.Size())); err != nil {
		done <- err
		return
	}

	outcome := s.batch.Enqueue(ref, msg)
	go func() {
		err := <-outcome
		if err == nil {
			s.notifyWrite(msg.StreamID, msg.Size())
			done <- nil
			return
		}
		if errors.Is(err, batcher.ErrClosed) {
			err = ErrClosed
		}
		done <- err
	}()
}

// park schedules a full retry of the store attempt. The pending handle is
// addressable so Close can cancel it and release the timer.
func (s *Store) park(msg *message.Message, done chan error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		done <- ErrClosed
		return
	}
	id := s.nextPending
	s.nextPending++
	pw := &pendingWrite{done: done}
	pw.timer = time.AfterFunc(s.retryInterval, func() {
		s.mu.Lock()
		if _, ok := s.pending[id]; !ok {
			// cancelled by Close; Close resolves the waiter
			s.mu.Unlock()
			return
		}
		delete(s.pending, id)
		s.mu.Unlock()
		s.storeAttempt(msg, done)
	})
	s.pending[id] = pw
	s.mu.Unlock()
}

// Close cancels parked writes, stops the directory and batcher, and
// releases the backend when owned. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	parked := s.pending
	s.pending = map[uint64]*pendingWrite{}
	s.mu.Unlock()

	for _, pw := range parked {
		pw.timer.Stop()
		pw.done <- ErrClosed
	}
	if len(parked) > 0 {
		s.logger.Info("cancelled parked writes on close", logpkg.Int("count", len(parked)))
	}

	s.dir.Stop()
	s.batch.Close()
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// Directory exposes the bucket directory for advanced operations
// (internal use only).
func (s *Store) Directory() *bucket.Directory { return s.dir }
