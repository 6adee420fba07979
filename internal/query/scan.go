package query

import (
	"context"
	"runtime"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/usherlabs/logstore-archive/internal/bucket"
	"github.com/usherlabs/logstore-archive/internal/message"
	logpkg "github.com/usherlabs/logstore-archive/pkg/log"
)

// filter narrows a scan to one publisher/chain pair. Empty fields match all.
type filter struct {
	publisherID string
	msgChainID  string
}

func (f filter) match(row message.DecodedRow) bool {
	if f.publisherID != "" && row.PublisherID != f.publisherID {
		return false
	}
	if f.msgChainID != "" && row.MsgChainID != f.msgChainID {
		return false
	}
	return true
}

// item is one element of a physical scan's output. A terminal error is
// delivered in-band before the channel closes.
type item struct {
	msg *message.Message
	err error
}

// yieldTracker enforces the cooperative-yield discipline: after roughly
// 100ms of continuous synchronous scan work, hand the scheduler a turn.
type yieldTracker struct {
	every time.Duration
	last  time.Time
}

func newYieldTracker(every time.Duration) *yieldTracker {
	return &yieldTracker{every: every, last: time.Now()}
}

func (y *yieldTracker) tick() {
	if time.Since(y.last) >= y.every {
		runtime.Gosched()
		y.last = time.Now()
	}
}

// scanBuckets runs one physical query: an ascending scan of the given
// buckets bounded by (fromTs, fromSeq)..(toTs, toSeq) inclusive. Bucket
// windows partition the time axis, so scanning the refs in creation order
// yields rows in ascending (timestamp, sequence) order overall. Rows that
// fail to decode are logged and dropped.
func (s *Streamer) scanBuckets(ctx context.Context, refs []bucket.Ref, fromTs int64, fromSeq uint32, toTs int64, toSeq uint32, f filter, out chan<- item) {
	defer close(out)
	yield := newYieldTracker(s.yieldAfter)
	for _, ref := range refs {
		if err := s.scanOne(ctx, ref, fromTs, fromSeq, toTs, toSeq, f, out, yield); err != nil {
			select {
			case out <- item{err: err}:
			case <-ctx.Done():
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Streamer) scanOne(ctx context.Context, ref bucket.Ref, fromTs int64, fromSeq uint32, toTs int64, toSeq uint32, f filter, out chan<- item, yield *yieldTracker) error {
	prefix := bucket.RowPrefix(ref.StreamID, ref.Partition, ref.CreateMs)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: bucket.RowLowerBound(prefix, fromTs, fromSeq),
		UpperBound: bucket.RowUpperBound(prefix, toTs, toSeq),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		if ctx.Err() != nil {
			return nil
		}
		msg, ok2 := s.decodeRow(ref, prefix, iter.Key(), iter.Value())
		if !ok2 {
			continue
		}
		if !f.match(message.DecodedRow{PublisherID: msg.PublisherID, MsgChainID: msg.MsgChainID}) {
			continue
		}
		select {
		case out <- item{msg: msg}:
		case <-ctx.Done():
			return nil
		}
		yield.tick()
	}
	return iter.Error()
}

// decodeRow rebuilds a Message from a stored row. Malformed rows (missing
// payload, truncation, checksum mismatch) are logged with stream context and
// skipped, never surfaced as stream errors.
func (s *Streamer) decodeRow(ref bucket.Ref, prefix, key, val []byte) (*message.Message, bool) {
	ts, seq, ok := bucket.ParseRowKey(key, len(prefix))
	if !ok {
		s.logger.Warn("skipping row with short key",
			logpkg.Str("stream", ref.StreamID), logpkg.Uint32("partition", ref.Partition))
		return nil, false
	}
	row, ok := message.DecodeRow(val)
	if !ok {
		s.logger.Warn("skipping malformed row",
			logpkg.Str("stream", ref.StreamID),
			logpkg.Uint32("partition", ref.Partition),
			logpkg.Int64("ts", ts),
			logpkg.Str("bucket", ref.ID.String()))
		return nil, false
	}
	return &message.Message{
		StreamID:    ref.StreamID,
		Partition:   ref.Partition,
		Timestamp:   ts,
		SequenceNo:  seq,
		PublisherID: row.PublisherID,
		MsgChainID:  row.MsgChainID,
		Payload:     row.Payload,
	}, true
}

// tailBuckets collects the newest `limit` rows across the given buckets,
// scanning newest bucket first, each bucket in reverse. The result comes
// back newest-first; the caller reverses it before emission.
func (s *Streamer) tailBuckets(ctx context.Context, infos []bucket.Info, limit int) ([]*message.Message, error) {
	out := make([]*message.Message, 0, limit)
	yield := newYieldTracker(s.yieldAfter)
	fetched := 0
	for _, info := range infos {
		if fetched >= limit {
			break
		}
		n, err := s.tailOne(ctx, info.Ref, limit-fetched, &out, yield)
		if err != nil {
			return nil, err
		}
		fetched += n
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (s *Streamer) tailOne(ctx context.Context, ref bucket.Ref, remain int, out *[]*message.Message, yield *yieldTracker) (int, error) {
	prefix := bucket.RowPrefix(ref.StreamID, ref.Partition, ref.CreateMs)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: bucket.PrefixUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	taken := 0
	for ok := iter.Last(); ok && taken < remain; ok = iter.Prev() {
		if ctx.Err() != nil {
			return taken, nil
		}
		// fetched rows count toward the limit even when undecodable
		taken++
		msg, ok2 := s.decodeRow(ref, prefix, iter.Key(), iter.Value())
		if !ok2 {
			continue
		}
		*out = append(*out, msg)
		yield.tick()
	}
	return taken, iter.Error()
}
