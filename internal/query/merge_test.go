package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/usherlabs/logstore-archive/internal/message"
)

func TestMergeAbortsOnScanError(t *testing.T) {
	s, _, _ := newTestStreamer(t, Options{})
	st := newResultStream(context.Background(), 4)

	scanErr := errors.New("backend failure")
	a := make(chan item, 4)
	b := make(chan item)

	a <- item{msg: mkMsg(100, 0, "pub", "chain")}
	a <- item{err: scanErr}
	close(a)

	// sibling scan: first send satisfies the initial head pull, the second
	// blocks until the failure cancels the stream
	released := make(chan struct{})
	go func() {
		defer close(released)
		b <- item{msg: mkMsg(101, 0, "pub", "chain")}
		select {
		case b <- item{msg: mkMsg(102, 0, "pub", "chain")}:
			t.Error("sibling scan kept feeding after failure")
		case <-st.ctx.Done():
		}
		close(b)
	}()

	go func() {
		st.finish(s.merge(st.ctx, []<-chan item{a, b}, st))
	}()

	var got []*message.Message
	for msg := range st.C() {
		got = append(got, msg)
	}
	if err := st.Err(); !errors.Is(err, scanErr) {
		t.Fatalf("want scan error on the stream, got %v", err)
	}
	if len(got) != 1 || got[0].Timestamp != 100 {
		t.Fatalf("messages before the failure: %v", got)
	}
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("sibling scan not cancelled after failure")
	}
}
