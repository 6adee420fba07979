package store

import (
	"context"

	"github.com/usherlabs/logstore-archive/internal/query"
)

// RequestLast streams the newest limit messages of a stream partition in
// ascending (timestamp, sequence) order. The limit is silently clamped to
// 10 000.
func (s *Store) RequestLast(ctx context.Context, stream string, partition uint32, limit int) *query.ResultStream {
	return s.streamer.RequestLast(ctx, stream, partition, limit)
}

// RequestFrom streams everything from (fromTs, fromSeq) forward, optionally
// narrowed to one publisher.
func (s *Store) RequestFrom(ctx context.Context, stream string, partition uint32, fromTs int64, fromSeq uint32, publisherID string) *query.ResultStream {
	return s.streamer.RequestFrom(ctx, stream, partition, fromTs, fromSeq, publisherID)
}

// RequestRange streams everything in the inclusive (timestamp, sequence)
// range. It fails synchronously with ErrInvalidArgument when exactly one of
// publisherID/msgChainID is supplied.
func (s *Store) RequestRange(ctx context.Context, stream string, partition uint32, fromTs int64, fromSeq uint32, toTs int64, toSeq uint32, publisherID, msgChainID string) (*query.ResultStream, error) {
	return s.streamer.RequestRange(ctx, stream, partition, fromTs, fromSeq, toTs, toSeq, publisherID, msgChainID)
}

// FirstMessageTimestamp returns the timestamp of the oldest stored message,
// or 0 when the partition holds no data.
func (s *Store) FirstMessageTimestamp(ctx context.Context, stream string, partition uint32) (int64, error) {
	return s.streamer.FirstTimestamp(ctx, stream, partition)
}

// LastMessageTimestamp returns the timestamp of the newest stored message,
// or 0 when the partition holds no data.
func (s *Store) LastMessageTimestamp(ctx context.Context, stream string, partition uint32) (int64, error) {
	return s.streamer.LastTimestamp(ctx, stream, partition)
}

// MessageCount returns the number of stored messages. The fast path sums
// the bucket record aggregates; a negative (overflowed) sum falls back to a
// row-by-row count.
func (s *Store) MessageCount(ctx context.Context, stream string, partition uint32) (int64, error) {
	_, records, err := s.dir.Totals(stream, partition)
	if err != nil {
		return 0, err
	}
	if records < 0 {
		return s.streamer.CountRows(ctx, stream, partition)
	}
	return records, nil
}

// TotalBytes returns the total stored payload bytes. The fast path sums the
// bucket byte aggregates; a negative (overflowed) sum falls back to
// row-by-row summation.
func (s *Store) TotalBytes(ctx context.Context, stream string, partition uint32) (int64, error) {
	bytes, _, err := s.dir.Totals(stream, partition)
	if err != nil {
		return 0, err
	}
	if bytes < 0 {
		return s.streamer.SumPayloadBytes(ctx, stream, partition)
	}
	return bytes, nil
}
