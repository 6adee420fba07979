package query

import (
	"context"
	"sync"

	"github.com/usherlabs/logstore-archive/internal/message"
)

// ResultStream is a bounded, cancellable stream of messages in ascending
// (timestamp, sequence) order. The channel closes when the stream is
// exhausted, failed, or closed; Err reports the terminal error afterwards.
type ResultStream struct {
	ch     chan *message.Message
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func newResultStream(parent context.Context, buf int) *ResultStream {
	ctx, cancel := context.WithCancel(parent)
	return &ResultStream{ch: make(chan *message.Message, buf), ctx: ctx, cancel: cancel}
}

// C returns the receive side of the stream.
func (r *ResultStream) C() <-chan *message.Message { return r.ch }

// Err returns the terminal error, if any. Valid once C is closed.
func (r *ResultStream) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close cancels the stream. Every outstanding physical scan feeding it
// observes the cancellation and stops.
func (r *ResultStream) Close() { r.cancel() }

// finish records the terminal error and closes the channel. Called exactly
// once by the producing goroutine.
func (r *ResultStream) finish(err error) {
	r.mu.Lock()
	if err != nil && r.err == nil && r.ctx.Err() == nil {
		r.err = err
	}
	r.mu.Unlock()
	r.cancel()
	close(r.ch)
}

// emit sends one message, honoring backpressure and cancellation.
func (r *ResultStream) emit(msg *message.Message) bool {
	select {
	case r.ch <- msg:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// emptyStream returns an already-exhausted stream. Zero candidate buckets is
// a valid state, not an error.
func emptyStream(parent context.Context) *ResultStream {
	r := newResultStream(parent, 1)
	r.cancel()
	close(r.ch)
	return r
}

// failedStream returns an already-closed stream carrying err.
func failedStream(parent context.Context, err error) *ResultStream {
	r := newResultStream(parent, 1)
	r.err = err
	r.cancel()
	close(r.ch)
	return r
}
