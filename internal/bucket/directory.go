package bucket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	pebblestore "github.com/usherlabs/logstore-archive/internal/storage/pebble"
	logpkg "github.com/usherlabs/logstore-archive/pkg/log"
)

// ErrNoBucket reports that the partition has no buckets yet, so no window
// covers the requested timestamp. Callers distinguish it from backend
// errors by kind, not by return shape.
var ErrNoBucket = errors.New("bucket: no bucket for timestamp")

// Limits are the rotation thresholds enforced by the directory's maintain
// loop. A bucket exceeding any of them stops receiving new-window writes
// once a successor is created.
type Limits struct {
	MaxSizeBytes int64
	MaxRecords   int64
	MaxAgeMs     int64
}

// DefaultLimits mirrors the deployment defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxSizeBytes: 64 << 20,
		MaxRecords:   100_000,
		MaxAgeMs:     int64(time.Hour / time.Millisecond),
	}
}

// Options configures a Directory.
type Options struct {
	Limits Limits
	// MaintainInterval is the cadence of the rotation/creation loop.
	MaintainInterval time.Duration
	Logger           logpkg.Logger
}

// Directory maps (stream, partition, timestamp) to buckets, creates buckets
// lazily for tracked partitions, and keeps per-bucket counters for rotation
// decisions.
type Directory struct {
	db       *pebblestore.DB
	logger   logpkg.Logger
	limits   Limits
	interval time.Duration

	mu    sync.Mutex
	parts map[string]*partitionState

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

type partitionState struct {
	stream  string
	part    uint32
	tracked bool

	mu      sync.RWMutex
	buckets []*Bucket // ascending by CreateMs
}

// NewDirectory constructs a Directory over the given store.
func NewDirectory(db *pebblestore.DB, opts Options) *Directory {
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.MaintainInterval <= 0 {
		opts.MaintainInterval = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	return &Directory{
		db:       db,
		logger:   opts.Logger.With(logpkg.Component("bucket-directory")),
		limits:   opts.Limits,
		interval: opts.MaintainInterval,
		parts:    map[string]*partitionState{},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the maintain loop. Safe to call once.
func (d *Directory) Start() {
	d.startOnce.Do(func() {
		go d.maintainLoop()
	})
}

// Stop halts the maintain loop. Idempotent.
func (d *Directory) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	select {
	case <-d.doneCh:
	case <-time.After(time.Second):
	}
}

func partKey(stream string, part uint32) string {
	return fmt.Sprintf("%s|%d", stream, part)
}

func (d *Directory) state(stream string, part uint32, track bool) (*partitionState, error) {
	d.mu.Lock()
	st, ok := d.parts[partKey(stream, part)]
	if !ok {
		st = &partitionState{stream: stream, part: part}
		if err := d.loadPartition(st); err != nil {
			d.mu.Unlock()
			return nil, err
		}
		d.parts[partKey(stream, part)] = st
	}
	if track {
		st.tracked = true
	}
	d.mu.Unlock()
	return st, nil
}

// loadPartition warms the in-memory bucket list from stored metas and
// counter cells. Called with d.mu held before the state is published.
func (d *Directory) loadPartition(st *partitionState) error {
	prefix := BucketMetaPrefix(st.stream, st.part)
	iter, err := d.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("bucket: load partition: %w", err)
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		var m meta
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			d.logger.Warn("skipping undecodable bucket meta",
				logpkg.Str("stream", st.stream), logpkg.Uint32("partition", st.part), logpkg.Err(err))
			continue
		}
		b := &Bucket{ID: m.ID, StreamID: st.stream, Partition: st.part, CreateMs: m.CreateMs}
		sz, err := d.db.Counter(KeyBucketSize(st.stream, st.part, m.CreateMs))
		if err != nil {
			return err
		}
		rc, err := d.db.Counter(KeyBucketRecords(st.stream, st.part, m.CreateMs))
		if err != nil {
			return err
		}
		b.size.Store(sz)
		b.records.Store(rc)
		st.buckets = append(st.buckets, b)
	}
	return iter.Error()
}

// Track registers a (stream, partition) pair for bucket creation and
// rotation by the maintain loop. Writers call it before their first store
// attempt; until the loop has created a bucket, Resolve reports ErrNoBucket.
func (d *Directory) Track(stream string, part uint32) error {
	_, err := d.state(stream, part, true)
	return err
}

// Resolve returns the bucket whose time window contains tsMs. It is a pure
// lookup: buckets are only created by the maintain loop.
func (d *Directory) Resolve(stream string, part uint32, tsMs int64) (Ref, error) {
	st, err := d.state(stream, part, false)
	if err != nil {
		return Ref{}, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	b := findByTimestamp(st.buckets, tsMs)
	if b == nil {
		return Ref{}, ErrNoBucket
	}
	return b.Ref(), nil
}

// findByTimestamp returns the bucket whose window contains tsMs. Windows
// partition the whole time axis: the oldest bucket's window is open at the
// left, the newest is open at the right, interior windows run from a
// bucket's create time to its successor's.
func findByTimestamp(buckets []*Bucket, tsMs int64) *Bucket {
	if len(buckets) == 0 {
		return nil
	}
	i := sort.Search(len(buckets), func(i int) bool { return buckets[i].CreateMs > tsMs })
	if i == 0 {
		return buckets[0]
	}
	return buckets[i-1]
}

// RecordWrite increments the bucket's counters by one record of the given
// size. The durable cells are merge cells, so concurrent callers accumulate
// without lost updates.
func (d *Directory) RecordWrite(ref Ref, sizeBytes int64) error {
	st, err := d.state(ref.StreamID, ref.Partition, false)
	if err != nil {
		return err
	}
	if err := d.db.MergeCounter(KeyBucketSize(ref.StreamID, ref.Partition, ref.CreateMs), sizeBytes); err != nil {
		return err
	}
	if err := d.db.MergeCounter(KeyBucketRecords(ref.StreamID, ref.Partition, ref.CreateMs), 1); err != nil {
		return err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, b := range st.buckets {
		if b.CreateMs == ref.CreateMs {
			b.size.Add(sizeBytes)
			b.records.Add(1)
			break
		}
	}
	return nil
}

// BucketsInRange returns every bucket whose window intersects
// [fromMs, toMs], ordered by creation time ascending.
func (d *Directory) BucketsInRange(stream string, part uint32, fromMs, toMs int64) ([]Ref, error) {
	st, err := d.state(stream, part, false)
	if err != nil {
		return nil, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []Ref
	for i, b := range st.buckets {
		// the oldest bucket's window is open at the left
		if i > 0 && b.CreateMs > toMs {
			break
		}
		if i+1 < len(st.buckets) && st.buckets[i+1].CreateMs <= fromMs {
			continue
		}
		out = append(out, b.Ref())
	}
	return out, nil
}

// Info pairs a bucket reference with its current record count, used by the
// newest-first scan of requestLast.
type Info struct {
	Ref     Ref
	Records int64
	Size    int64
}

// BucketsNewestFirst returns all buckets of a partition ordered by creation
// time descending, with their current counters.
func (d *Directory) BucketsNewestFirst(stream string, part uint32) ([]Info, error) {
	st, err := d.state(stream, part, false)
	if err != nil {
		return nil, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Info, 0, len(st.buckets))
	for i := len(st.buckets) - 1; i >= 0; i-- {
		b := st.buckets[i]
		out = append(out, Info{Ref: b.Ref(), Records: b.Records(), Size: b.Size()})
	}
	return out, nil
}

// Totals sums the partition's bucket counters. The sums are surfaced as
// int64; a negative result indicates an overflowed aggregate and callers
// fall back to row-by-row summation.
func (d *Directory) Totals(stream string, part uint32) (bytes, records int64, err error) {
	st, err := d.state(stream, part, false)
	if err != nil {
		return 0, 0, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, b := range st.buckets {
		bytes += b.Size()
		records += b.Records()
	}
	return bytes, records, nil
}

// CreateBucket persists a bucket opening at createMs and publishes it to the
// in-memory index. createMs must be newer than the current newest bucket.
func (d *Directory) CreateBucket(stream string, part uint32, createMs int64) (Ref, error) {
	st, err := d.state(stream, part, false)
	if err != nil {
		return Ref{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if n := len(st.buckets); n > 0 && st.buckets[n-1].CreateMs >= createMs {
		return Ref{}, fmt.Errorf("bucket: create time %d not after newest bucket %d", createMs, st.buckets[n-1].CreateMs)
	}
	b := &Bucket{ID: uuid.New(), StreamID: stream, Partition: part, CreateMs: createMs}
	raw, err := json.Marshal(meta{ID: b.ID, CreateMs: b.CreateMs})
	if err != nil {
		return Ref{}, err
	}
	if err := d.db.Set(KeyBucketMeta(stream, part, createMs), raw); err != nil {
		return Ref{}, fmt.Errorf("bucket: persist meta: %w", err)
	}
	st.buckets = append(st.buckets, b)
	d.logger.Debug("bucket created",
		logpkg.Str("stream", stream),
		logpkg.Uint32("partition", part),
		logpkg.Str("bucket", b.ID.String()),
		logpkg.Int64("create_ms", createMs))
	return b.Ref(), nil
}

func (d *Directory) maintainLoop() {
	defer close(d.doneCh)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.maintainOnce(time.Now().UnixMilli())
		}
	}
}

// maintainOnce creates a fresh bucket for every tracked partition whose
// newest bucket is absent or has exceeded a rotation threshold.
func (d *Directory) maintainOnce(nowMs int64) {
	d.mu.Lock()
	states := make([]*partitionState, 0, len(d.parts))
	for _, st := range d.parts {
		if st.tracked {
			states = append(states, st)
		}
	}
	d.mu.Unlock()

	for _, st := range states {
		st.mu.RLock()
		var cur *Bucket
		if n := len(st.buckets); n > 0 {
			cur = st.buckets[n-1]
		}
		st.mu.RUnlock()

		if cur != nil && !d.full(cur, nowMs) {
			continue
		}
		if _, err := d.CreateBucket(st.stream, st.part, nowMs); err != nil {
			d.logger.Error("bucket rotation failed",
				logpkg.Str("stream", st.stream), logpkg.Uint32("partition", st.part), logpkg.Err(err))
		}
	}
}

func (d *Directory) full(b *Bucket, nowMs int64) bool {
	if d.limits.MaxSizeBytes > 0 && b.Size() >= d.limits.MaxSizeBytes {
		return true
	}
	if d.limits.MaxRecords > 0 && b.Records() >= d.limits.MaxRecords {
		return true
	}
	if d.limits.MaxAgeMs > 0 && nowMs-b.CreateMs >= d.limits.MaxAgeMs {
		return true
	}
	return false
}
