// Package batcher coalesces individual message writes into atomic backend
// batches to amortize commit cost.
//
// Enqueue returns a one-shot outcome channel per write. The flush loop
// drains the pending set when it grows past MaxBatchLen or when
// FlushInterval elapses, commits one batch, and then resolves every waiter.
// Waiters are never resolved before the backend confirms the commit.
package batcher
