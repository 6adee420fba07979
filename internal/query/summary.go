package query

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/usherlabs/logstore-archive/internal/bucket"
	"github.com/usherlabs/logstore-archive/internal/message"
)

// Scalar summary scans over bucket rows. These back the stream metadata
// queries; the fast paths live on the directory's aggregate counters and
// fall back here when an aggregate has overflowed.

// FirstTimestamp returns the timestamp of the oldest stored message, or 0
// when the partition holds no rows.
func (s *Streamer) FirstTimestamp(ctx context.Context, stream string, partition uint32) (int64, error) {
	refs, err := s.dir.BucketsInRange(stream, partition, message.MinTimestamp, message.MaxTimestamp)
	if err != nil {
		return 0, err
	}
	for _, ref := range refs {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		prefix := bucket.RowPrefix(ref.StreamID, ref.Partition, ref.CreateMs)
		iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: bucket.PrefixUpperBound(prefix)})
		if err != nil {
			return 0, err
		}
		if iter.First() {
			ts, _, ok := bucket.ParseRowKey(iter.Key(), len(prefix))
			iter.Close()
			if ok {
				return ts, nil
			}
			continue
		}
		err = iter.Error()
		iter.Close()
		if err != nil {
			return 0, err
		}
	}
	return 0, nil
}

// LastTimestamp returns the timestamp of the newest stored message, or 0
// when the partition holds no rows.
func (s *Streamer) LastTimestamp(ctx context.Context, stream string, partition uint32) (int64, error) {
	infos, err := s.dir.BucketsNewestFirst(stream, partition)
	if err != nil {
		return 0, err
	}
	for _, info := range infos {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		ref := info.Ref
		prefix := bucket.RowPrefix(ref.StreamID, ref.Partition, ref.CreateMs)
		iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: bucket.PrefixUpperBound(prefix)})
		if err != nil {
			return 0, err
		}
		if iter.Last() {
			ts, _, ok := bucket.ParseRowKey(iter.Key(), len(prefix))
			iter.Close()
			if ok {
				return ts, nil
			}
			continue
		}
		err = iter.Error()
		iter.Close()
		if err != nil {
			return 0, err
		}
	}
	return 0, nil
}

// CountRows walks every row of the partition and counts them. Slow path for
// an overflowed record aggregate.
func (s *Streamer) CountRows(ctx context.Context, stream string, partition uint32) (int64, error) {
	return s.walkRows(ctx, stream, partition, func(int) int64 { return 1 })
}

// SumPayloadBytes walks every row of the partition and sums payload sizes.
// Slow path for an overflowed byte aggregate.
func (s *Streamer) SumPayloadBytes(ctx context.Context, stream string, partition uint32) (int64, error) {
	return s.walkRows(ctx, stream, partition, func(payloadLen int) int64 { return int64(payloadLen) })
}

func (s *Streamer) walkRows(ctx context.Context, stream string, partition uint32, weigh func(payloadLen int) int64) (int64, error) {
	refs, err := s.dir.BucketsInRange(stream, partition, message.MinTimestamp, message.MaxTimestamp)
	if err != nil {
		return 0, err
	}
	var total int64
	yield := newYieldTracker(s.yieldAfter)
	for _, ref := range refs {
		prefix := bucket.RowPrefix(ref.StreamID, ref.Partition, ref.CreateMs)
		iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: bucket.PrefixUpperBound(prefix)})
		if err != nil {
			return 0, err
		}
		for ok := iter.First(); ok; ok = iter.Next() {
			if ctx.Err() != nil {
				iter.Close()
				return 0, ctx.Err()
			}
			row, ok2 := message.DecodeRow(iter.Value())
			if !ok2 {
				continue
			}
			total += weigh(len(row.Payload))
			yield.tick()
		}
		err = iter.Error()
		iter.Close()
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
