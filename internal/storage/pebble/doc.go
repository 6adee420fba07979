// Package pebblestore provides a thin wrapper around Pebble with fsync
// policy, batches, additive counter cells, and minimal metrics hooks.
//
// Counter cells are the wrapper's one non-obvious feature: MergeCounter
// applies a commutative int64 delta through Pebble's merge operator, so
// concurrent writers incrementing the same cell never lose updates and never
// read-modify-write.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	// Atomic updates with batches
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(context.Background(), b)
//	b.Close()
//
//	// Additive counters
//	_ = db.MergeCounter([]byte("bytes"), 128)
//	total, _ := db.Counter([]byte("bytes"))
package pebblestore
