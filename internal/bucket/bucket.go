package bucket

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Bucket is a time-windowed physical storage unit for one stream partition.
// Its window opens at CreateMs and closes when the next bucket of the same
// partition is created; the newest bucket is open-ended. Counters accumulate
// monotonically and feed rotation decisions.
type Bucket struct {
	ID        uuid.UUID
	StreamID  string
	Partition uint32
	CreateMs  int64

	size    atomic.Int64
	records atomic.Int64
}

// Size returns the accumulated stored bytes.
func (b *Bucket) Size() int64 { return b.size.Load() }

// Records returns the accumulated stored row count.
func (b *Bucket) Records() int64 { return b.records.Load() }

// Ref identifies a bucket for writers and query planning without exposing
// the directory's internal state.
type Ref struct {
	ID        uuid.UUID
	StreamID  string
	Partition uint32
	CreateMs  int64
}

// Ref returns the bucket's reference.
func (b *Bucket) Ref() Ref {
	return Ref{ID: b.ID, StreamID: b.StreamID, Partition: b.Partition, CreateMs: b.CreateMs}
}

// meta is the JSON persisted under the bucket meta key. Counters live in
// separate merge cells so they never round-trip through JSON.
type meta struct {
	ID       uuid.UUID `json:"id"`
	CreateMs int64     `json:"create_ms"`
}
