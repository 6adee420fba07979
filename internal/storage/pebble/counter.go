package pebblestore

import (
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/cockroachdb/pebble"
)

// Counter cells store a big-endian int64 and are updated through Pebble's
// merge operator. Concurrent MergeCounter calls for the same key are
// accumulated by the merger, never lost to read-modify-write races.

// counterMerger sums 8-byte big-endian int64 operands.
var counterMerger = &pebble.Merger{
	Name: "logstore.counter",
	Merge: func(key, value []byte) (pebble.ValueMerger, error) {
		m := &counterValueMerger{}
		m.add(value)
		return m, nil
	},
}

type counterValueMerger struct {
	sum int64
}

func (m *counterValueMerger) add(operand []byte) {
	if len(operand) >= 8 {
		m.sum += int64(binary.BigEndian.Uint64(operand[:8]))
	}
}

func (m *counterValueMerger) MergeNewer(value []byte) error {
	m.add(value)
	return nil
}

func (m *counterValueMerger) MergeOlder(value []byte) error {
	m.add(value)
	return nil
}

func (m *counterValueMerger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], uint64(m.sum))
	return out[:], nil, nil
}

func encodeCounter(delta int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(delta))
	return b[:]
}

// DecodeCounter interprets a counter cell value. Returns 0 for short values.
func DecodeCounter(val []byte) int64 {
	if len(val) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(val[:8]))
}

// MergeCounter applies an additive delta to a counter cell.
func (db *DB) MergeCounter(key []byte, delta int64) error {
	start := time.Now()
	err := db.inner.Merge(key, encodeCounter(delta), &pebble.WriteOptions{Sync: db.writeSync})
	db.metrics.ObserveWrite(time.Since(start), 8)
	return err
}

// MergeCounterBatch applies an additive delta to a counter cell inside an
// existing batch.
func (db *DB) MergeCounterBatch(b *pebble.Batch, key []byte, delta int64) error {
	return b.Merge(key, encodeCounter(delta), nil)
}

// Counter reads a counter cell, returning 0 when the cell does not exist.
func (db *DB) Counter(key []byte) (int64, error) {
	val, err := db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return DecodeCounter(val), nil
}
