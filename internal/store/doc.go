// Package store is the front door of the logstore engine: it coordinates
// writes into time buckets and exposes the three read patterns plus scalar
// stream metadata queries.
//
// # Write path
//
// Store resolves the target bucket for a message's timestamp, records the
// write on the bucket's counters, and hands the row to the batcher. When no
// bucket covers the timestamp yet (a new partition, or a rotation boundary),
// the write is parked with a retry timer instead of failing; every parked
// write is tracked in an addressable arena so Close can cancel all of them
// deterministically. A parked message is either delivered once its bucket
// becomes resolvable or cancelled by Close, never silently dropped.
//
// # Read path
//
// RequestLast, RequestFrom, and RequestRange delegate to the query planner
// and return bounded, cancellable result streams in ascending
// (timestamp, sequence) order.
//
// # Observability
//
// Subscribe registers an Observer receiving "message written" and "message
// read" notifications (stream id and byte length). The store computes no
// metrics itself.
package store
