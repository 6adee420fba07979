package query

import (
	"context"
	"errors"
	"time"

	"github.com/usherlabs/logstore-archive/internal/bucket"
	"github.com/usherlabs/logstore-archive/internal/message"
	pebblestore "github.com/usherlabs/logstore-archive/internal/storage/pebble"
	logpkg "github.com/usherlabs/logstore-archive/pkg/log"
)

// ErrInvalidArgument reports a range request with exactly one of publisherId
// and msgChainId. It is returned synchronously, before any backend I/O.
var ErrInvalidArgument = errors.New("query: publisherId and msgChainId must be both present or both absent")

// MaxLimit is the hard ceiling on requestLast.
const MaxLimit = 10_000

// Options configures a Streamer.
type Options struct {
	// BufferLen bounds the merged output channel.
	BufferLen int
	// YieldAfter bounds continuous synchronous scan work before a
	// scheduler yield.
	YieldAfter time.Duration
	Logger     logpkg.Logger
	// OnRead observes every emitted message (streamId, payload bytes).
	OnRead func(streamID string, sizeBytes int)
}

// Streamer plans and executes the three read patterns against the bucket
// directory and backend store.
type Streamer struct {
	db         *pebblestore.DB
	dir        *bucket.Directory
	logger     logpkg.Logger
	bufLen     int
	yieldAfter time.Duration
	onRead     func(streamID string, sizeBytes int)
}

// NewStreamer constructs a Streamer.
func NewStreamer(db *pebblestore.DB, dir *bucket.Directory, opts Options) *Streamer {
	if opts.BufferLen <= 0 {
		opts.BufferLen = 1024
	}
	if opts.YieldAfter <= 0 {
		opts.YieldAfter = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	return &Streamer{
		db:         db,
		dir:        dir,
		logger:     opts.Logger.With(logpkg.Component("query")),
		bufLen:     opts.BufferLen,
		yieldAfter: opts.YieldAfter,
		onRead:     opts.OnRead,
	}
}

func (s *Streamer) notifyRead(msg *message.Message) {
	if s.onRead != nil {
		s.onRead(msg.StreamID, msg.Size())
	}
}

// RequestLast streams the newest `limit` messages of a partition in
// ascending order. The limit is clamped to MaxLimit. Zero buckets yields an
// empty stream, not an error.
func (s *Streamer) RequestLast(ctx context.Context, stream string, partition uint32, limit int) *ResultStream {
	if limit <= 0 {
		return emptyStream(ctx)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	infos, err := s.dir.BucketsNewestFirst(stream, partition)
	if err != nil {
		return failedStream(ctx, err)
	}
	if len(infos) == 0 {
		return emptyStream(ctx)
	}

	// Walk buckets newest-first, accumulating stored record counts until
	// they cover the limit; the tail fetch then touches only those buckets.
	chosen := infos[:0:0]
	var total int64
	for _, info := range infos {
		chosen = append(chosen, info)
		total += info.Records
		if total >= int64(limit) {
			break
		}
	}

	st := newResultStream(ctx, s.bufLen)
	go func() {
		msgs, err := s.tailBuckets(st.ctx, chosen, limit)
		if err != nil {
			st.finish(err)
			return
		}
		// fetched newest-first; reverse so consumers receive chronological order
		for i := len(msgs) - 1; i >= 0; i-- {
			if !st.emit(msgs[i]) {
				st.finish(st.ctx.Err())
				return
			}
			s.notifyRead(msgs[i])
		}
		st.finish(nil)
	}()
	return st
}

// RequestFrom streams everything from (fromTs, fromSeq) forward, optionally
// narrowed to one publisher. The upper bound is pinned to the domain maximum.
func (s *Streamer) RequestFrom(ctx context.Context, stream string, partition uint32, fromTs int64, fromSeq uint32, publisherID string) *ResultStream {
	return s.rangeStream(ctx, stream, partition, fromTs, fromSeq, message.MaxTimestamp, message.MaxSequence, filter{publisherID: publisherID})
}

// RequestRange streams everything in the inclusive (timestamp, sequence)
// range. publisherID and msgChainID must be both present or both absent;
// any other combination fails with ErrInvalidArgument before any I/O.
func (s *Streamer) RequestRange(ctx context.Context, stream string, partition uint32, fromTs int64, fromSeq uint32, toTs int64, toSeq uint32, publisherID, msgChainID string) (*ResultStream, error) {
	if (publisherID == "") != (msgChainID == "") {
		return nil, ErrInvalidArgument
	}
	return s.rangeStream(ctx, stream, partition, fromTs, fromSeq, toTs, toSeq, filter{publisherID: publisherID, msgChainID: msgChainID}), nil
}

// scanSpec bounds one physical query.
type scanSpec struct {
	fromTs  int64
	fromSeq uint32
	toTs    int64
	toSeq   uint32
}

// planRange decomposes a logical range. Unbounded sequences take the fast
// path of a single timestamp-interval query; a single-timestamp range needs
// one sequence-bounded query; everything else splits three ways because the
// backend orders by (ts, seq) but only boundary timestamps need
// sequence-level bounds.
func planRange(fromTs int64, fromSeq uint32, toTs int64, toSeq uint32) []scanSpec {
	if fromSeq == message.MinSequence && toSeq == message.MaxSequence {
		return []scanSpec{{fromTs, fromSeq, toTs, toSeq}}
	}
	if fromTs == toTs {
		return []scanSpec{{fromTs, fromSeq, toTs, toSeq}}
	}
	specs := []scanSpec{
		{fromTs, fromSeq, fromTs, message.MaxSequence},
	}
	if fromTs+1 <= toTs-1 {
		specs = append(specs, scanSpec{fromTs + 1, message.MinSequence, toTs - 1, message.MaxSequence})
	}
	specs = append(specs, scanSpec{toTs, message.MinSequence, toTs, toSeq})
	return specs
}

func (s *Streamer) rangeStream(ctx context.Context, stream string, partition uint32, fromTs int64, fromSeq uint32, toTs int64, toSeq uint32, f filter) *ResultStream {
	refs, err := s.dir.BucketsInRange(stream, partition, fromTs, toTs)
	if err != nil {
		return failedStream(ctx, err)
	}
	if len(refs) == 0 {
		return emptyStream(ctx)
	}

	specs := planRange(fromTs, fromSeq, toTs, toSeq)
	st := newResultStream(ctx, s.bufLen)
	sources := make([]<-chan item, len(specs))
	for i, spec := range specs {
		ch := make(chan item, 16)
		sources[i] = ch
		go s.scanBuckets(st.ctx, refs, spec.fromTs, spec.fromSeq, spec.toTs, spec.toSeq, f, ch)
	}
	go func() {
		st.finish(s.merge(st.ctx, sources, st))
	}()
	return st
}
