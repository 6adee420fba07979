// Package query implements the three read patterns over bucketed message
// rows: last-N, from-a-point, and timestamp/sequence range.
//
// # Execution model
//
// Every entry point produces a ResultStream: a bounded, cancellable channel
// of messages in ascending (timestamp, sequence) order. A logical range is
// decomposed into up to three physical scans (boundary timestamps need
// sequence-level bounds, interior ones do not), the scans run concurrently,
// and a k-way heap merge reassembles global order. Any scan failure cancels
// the siblings and surfaces on ResultStream.Err; no partial range is
// delivered silently.
//
// Scans yield the scheduler after ~100ms of continuous synchronous work so
// long historical reads cannot starve concurrent operations.
package query
