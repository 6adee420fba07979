package query

import (
	"context"
	"errors"
	"testing"
)

func TestEmptyStreamReleasesContext(t *testing.T) {
	st := emptyStream(context.Background())
	if _, ok := <-st.C(); ok {
		t.Fatal("empty stream must start closed")
	}
	if err := st.Err(); err != nil {
		t.Fatalf("empty stream carries no error, got %v", err)
	}
	// the derived context must not stay registered on the parent
	if st.ctx.Err() == nil {
		t.Fatal("empty stream must release its context")
	}
}

func TestFailedStreamCarriesError(t *testing.T) {
	boom := errors.New("lookup failed")
	st := failedStream(context.Background(), boom)
	if _, ok := <-st.C(); ok {
		t.Fatal("failed stream must start closed")
	}
	if err := st.Err(); !errors.Is(err, boom) {
		t.Fatalf("want the lookup error, got %v", err)
	}
	if st.ctx.Err() == nil {
		t.Fatal("failed stream must release its context")
	}
}
