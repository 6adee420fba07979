package query

import (
	"context"
	"testing"
)

func TestSummaryEmptyPartition(t *testing.T) {
	s, _, _ := newTestStreamer(t, Options{})
	ctx := context.Background()

	if ts, err := s.FirstTimestamp(ctx, "s1", 0); err != nil || ts != 0 {
		t.Fatalf("first: got %d, %v", ts, err)
	}
	if ts, err := s.LastTimestamp(ctx, "s1", 0); err != nil || ts != 0 {
		t.Fatalf("last: got %d, %v", ts, err)
	}
	if n, err := s.CountRows(ctx, "s1", 0); err != nil || n != 0 {
		t.Fatalf("count: got %d, %v", n, err)
	}
	if b, err := s.SumPayloadBytes(ctx, "s1", 0); err != nil || b != 0 {
		t.Fatalf("bytes: got %d, %v", b, err)
	}
}

func TestSummaryAcrossBuckets(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{})
	ctx := context.Background()
	a, _ := dir.CreateBucket("s1", 0, 100)
	b, _ := dir.CreateBucket("s1", 0, 200)

	m1 := mkMsg(110, 0, "pub", "chain")
	m2 := mkMsg(120, 0, "pub", "chain")
	m3 := mkMsg(250, 0, "pub", "chain")
	putMsg(t, db, dir, a, m1)
	putMsg(t, db, dir, a, m2)
	putMsg(t, db, dir, b, m3)

	if ts, err := s.FirstTimestamp(ctx, "s1", 0); err != nil || ts != 110 {
		t.Fatalf("first: got %d, %v", ts, err)
	}
	if ts, err := s.LastTimestamp(ctx, "s1", 0); err != nil || ts != 250 {
		t.Fatalf("last: got %d, %v", ts, err)
	}
	if n, err := s.CountRows(ctx, "s1", 0); err != nil || n != 3 {
		t.Fatalf("count: got %d, %v", n, err)
	}
	wantBytes := int64(len(m1.Payload) + len(m2.Payload) + len(m3.Payload))
	if got, err := s.SumPayloadBytes(ctx, "s1", 0); err != nil || got != wantBytes {
		t.Fatalf("bytes: got %d, %v, want %d", got, err, wantBytes)
	}
}

func TestLastTimestampSkipsEmptyNewestBucket(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{})
	a, _ := dir.CreateBucket("s1", 0, 100)
	putMsg(t, db, dir, a, mkMsg(150, 0, "pub", "chain"))
	// freshly rotated bucket with no rows yet
	if _, err := dir.CreateBucket("s1", 0, 200); err != nil {
		t.Fatalf("create: %v", err)
	}

	if ts, err := s.LastTimestamp(context.Background(), "s1", 0); err != nil || ts != 150 {
		t.Fatalf("last: got %d, %v", ts, err)
	}
}
