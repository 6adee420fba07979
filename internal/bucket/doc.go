// Package bucket implements the bucket directory: the mapping from
// (stream, partition, timestamp) to the time-windowed storage bucket holding
// that timestamp's rows.
//
// # Overview
//
// Buckets for one stream partition are totally ordered by creation time.
// Their windows partition the whole time axis: an interior window runs from
// the bucket's create time to its successor's, the newest bucket is open at
// the right, and the oldest is open at the left so late data older than the
// first bucket still has a home. Resolve is a pure lookup and returns
// ErrNoBucket when the partition has no buckets at all: bucket creation
// happens only in the maintain loop, which rotates a tracked partition's
// bucket once it exceeds a size, record-count, or age threshold.
//
// Per-bucket size and record counters are persisted as additive merge cells
// (see internal/storage/pebble), so concurrent writers never lose updates.
//
// API surface (internal)
//
//	d := bucket.NewDirectory(db, bucket.Options{})
//	d.Start()
//	defer d.Stop()
//
//	_ = d.Track("s1", 0)                    // partition becomes managed
//	ref, err := d.Resolve("s1", 0, tsMs)    // ErrNoBucket until the loop runs
//	_ = d.RecordWrite(ref, 512)
//	refs, _ := d.BucketsInRange("s1", 0, fromMs, toMs)
package bucket
