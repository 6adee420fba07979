package query

import (
	"context"
	"testing"

	"github.com/usherlabs/logstore-archive/internal/bucket"
	"github.com/usherlabs/logstore-archive/internal/message"
	pebblestore "github.com/usherlabs/logstore-archive/internal/storage/pebble"
)

func newTestStreamer(t *testing.T, opts Options) (*Streamer, *bucket.Directory, *pebblestore.DB) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	dir := bucket.NewDirectory(db, bucket.Options{})
	return NewStreamer(db, dir, opts), dir, db
}

func putMsg(t *testing.T, db *pebblestore.DB, dir *bucket.Directory, ref bucket.Ref, msg *message.Message) {
	t.Helper()
	key := bucket.KeyRow(ref.StreamID, ref.Partition, ref.CreateMs, msg.Timestamp, msg.SequenceNo, msg.PublisherID, msg.MsgChainID)
	if err := db.Set(key, message.EncodeRow(msg)); err != nil {
		t.Fatalf("set row: %v", err)
	}
	if err := dir.RecordWrite(ref, int64(msg.Size())); err != nil {
		t.Fatalf("record write: %v", err)
	}
}

func mkMsg(ts int64, seq uint32, publisher, chain string) *message.Message {
	return &message.Message{
		StreamID:    "s1",
		Timestamp:   ts,
		SequenceNo:  seq,
		PublisherID: publisher,
		MsgChainID:  chain,
		Payload:     []byte("payload"),
	}
}

func collect(t *testing.T, st *ResultStream) []*message.Message {
	t.Helper()
	var out []*message.Message
	for msg := range st.C() {
		out = append(out, msg)
	}
	if err := st.Err(); err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	return out
}

func assertOrder(t *testing.T, msgs []*message.Message, want []*message.Message) {
	t.Helper()
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i := range want {
		got, exp := msgs[i], want[i]
		if got.Timestamp != exp.Timestamp || got.SequenceNo != exp.SequenceNo {
			t.Fatalf("message %d: got (%d,%d), want (%d,%d)",
				i, got.Timestamp, got.SequenceNo, exp.Timestamp, exp.SequenceNo)
		}
	}
}

func TestRequestFromOrdering(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{})
	ref, err := dir.CreateBucket("s1", 0, 100)
	if err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	var all []*message.Message
	for ts := int64(100); ts <= 104; ts++ {
		m := mkMsg(ts, 0, "pub", "chain")
		putMsg(t, db, dir, ref, m)
		all = append(all, m)
	}

	st := s.RequestFrom(context.Background(), "s1", 0, 102, 0, "")
	assertOrder(t, collect(t, st), all[2:])
}

func TestRequestFromPublisherFilter(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{})
	ref, _ := dir.CreateBucket("s1", 0, 100)
	putMsg(t, db, dir, ref, mkMsg(100, 0, "alice", "c1"))
	putMsg(t, db, dir, ref, mkMsg(101, 0, "bob", "c1"))
	putMsg(t, db, dir, ref, mkMsg(102, 0, "alice", "c1"))

	st := s.RequestFrom(context.Background(), "s1", 0, 100, 0, "alice")
	msgs := collect(t, st)
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages from alice, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.PublisherID != "alice" {
			t.Fatalf("filter leaked publisher %q", m.PublisherID)
		}
	}
}

func TestRequestRangeInvalidFilter(t *testing.T) {
	s, _, _ := newTestStreamer(t, Options{})
	_, err := s.RequestRange(context.Background(), "s1", 0,
		100, message.MinSequence, 200, message.MaxSequence, "alice", "")
	if err != ErrInvalidArgument {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
	_, err = s.RequestRange(context.Background(), "s1", 0,
		100, message.MinSequence, 200, message.MaxSequence, "", "c1")
	if err != ErrInvalidArgument {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestRequestRangeSequenceBounds(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{})
	ref, _ := dir.CreateBucket("s1", 0, 100)
	for seq := uint32(0); seq < 5; seq++ {
		putMsg(t, db, dir, ref, mkMsg(100, seq, "pub", "chain"))
	}

	st, err := s.RequestRange(context.Background(), "s1", 0, 100, 1, 100, 3, "", "")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	msgs := collect(t, st)
	want := []*message.Message{mkMsg(100, 1, "pub", "chain"), mkMsg(100, 2, "pub", "chain"), mkMsg(100, 3, "pub", "chain")}
	assertOrder(t, msgs, want)
}

func TestRequestRangeSplitExactlyOnce(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{})
	ref, _ := dir.CreateBucket("s1", 0, 100)
	var all []*message.Message
	for ts := int64(100); ts <= 104; ts++ {
		for seq := uint32(0); seq < 3; seq++ {
			m := mkMsg(ts, seq, "pub", "chain")
			putMsg(t, db, dir, ref, m)
			all = append(all, m)
		}
	}

	// bounded sequences on both edges force the three-way decomposition
	st, err := s.RequestRange(context.Background(), "s1", 0, 100, 1, 104, 1, "", "")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	msgs := collect(t, st)
	// drop (100,0) from the front and (104,2) from the back
	assertOrder(t, msgs, all[1:len(all)-1])
}

func TestRangeAcrossBuckets(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{})
	a, _ := dir.CreateBucket("s1", 0, 100)
	b, _ := dir.CreateBucket("s1", 0, 200)
	m1 := mkMsg(150, 0, "pub", "chain")
	m2 := mkMsg(250, 0, "pub", "chain")
	putMsg(t, db, dir, a, m1)
	putMsg(t, db, dir, b, m2)

	st, err := s.RequestRange(context.Background(), "s1", 0,
		0, message.MinSequence, 300, message.MaxSequence, "", "")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	assertOrder(t, collect(t, st), []*message.Message{m1, m2})
}

func TestRequestLastAscending(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{})
	ref, _ := dir.CreateBucket("s1", 0, 100)
	var all []*message.Message
	for ts := int64(100); ts <= 104; ts++ {
		m := mkMsg(ts, 0, "pub", "chain")
		putMsg(t, db, dir, ref, m)
		all = append(all, m)
	}

	st := s.RequestLast(context.Background(), "s1", 0, 3)
	assertOrder(t, collect(t, st), all[2:])
}

func TestRequestLastAcrossBuckets(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{})
	a, _ := dir.CreateBucket("s1", 0, 100)
	b, _ := dir.CreateBucket("s1", 0, 200)
	m1 := mkMsg(100, 0, "pub", "chain")
	m2 := mkMsg(101, 0, "pub", "chain")
	m3 := mkMsg(250, 0, "pub", "chain")
	putMsg(t, db, dir, a, m1)
	putMsg(t, db, dir, a, m2)
	putMsg(t, db, dir, b, m3)

	st := s.RequestLast(context.Background(), "s1", 0, 2)
	assertOrder(t, collect(t, st), []*message.Message{m2, m3})
}

func TestRequestLastSpansBucketsUntilCovered(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{})
	a, _ := dir.CreateBucket("s1", 0, 100)
	b, _ := dir.CreateBucket("s1", 0, 200)
	m1 := mkMsg(100, 0, "pub", "chain")
	m2 := mkMsg(101, 0, "pub", "chain")
	m3 := mkMsg(200, 0, "pub", "chain")
	m4 := mkMsg(201, 0, "pub", "chain")
	putMsg(t, db, dir, a, m1)
	putMsg(t, db, dir, a, m2)
	putMsg(t, db, dir, b, m3)
	putMsg(t, db, dir, b, m4)

	// the newest bucket holds 2 records, short of 3, so the fetch must span
	// both buckets
	st := s.RequestLast(context.Background(), "s1", 0, 3)
	assertOrder(t, collect(t, st), []*message.Message{m2, m3, m4})
}

func TestRequestLastEmptyPartition(t *testing.T) {
	s, _, _ := newTestStreamer(t, Options{})
	st := s.RequestLast(context.Background(), "s1", 0, 5)
	if msgs := collect(t, st); len(msgs) != 0 {
		t.Fatalf("want empty stream, got %d messages", len(msgs))
	}
}

func TestMalformedRowSkipped(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{})
	ref, _ := dir.CreateBucket("s1", 0, 100)
	good := mkMsg(100, 0, "pub", "chain")
	putMsg(t, db, dir, ref, good)

	// a row whose value fails checksum verification is skipped, not fatal
	badKey := bucket.KeyRow(ref.StreamID, ref.Partition, ref.CreateMs, 101, 0, "pub", "chain")
	if err := db.Set(badKey, []byte("garbage")); err != nil {
		t.Fatalf("set: %v", err)
	}

	st := s.RequestFrom(context.Background(), "s1", 0, 100, 0, "")
	assertOrder(t, collect(t, st), []*message.Message{good})
}

func TestStreamClose(t *testing.T) {
	s, dir, db := newTestStreamer(t, Options{BufferLen: 1})
	ref, _ := dir.CreateBucket("s1", 0, 100)
	for ts := int64(100); ts < 200; ts++ {
		putMsg(t, db, dir, ref, mkMsg(ts, 0, "pub", "chain"))
	}

	st := s.RequestFrom(context.Background(), "s1", 0, 100, 0, "")
	<-st.C()
	st.Close()
	for range st.C() {
	}
	if err := st.Err(); err != nil {
		t.Fatalf("consumer cancellation is not a stream error, got %v", err)
	}
}

func TestReadObserver(t *testing.T) {
	var streams []string
	var bytes int
	s, dir, db := newTestStreamer(t, Options{OnRead: func(streamID string, sizeBytes int) {
		streams = append(streams, streamID)
		bytes += sizeBytes
	}})
	ref, _ := dir.CreateBucket("s1", 0, 100)
	m := mkMsg(100, 0, "pub", "chain")
	putMsg(t, db, dir, ref, m)

	collect(t, s.RequestFrom(context.Background(), "s1", 0, 100, 0, ""))
	if len(streams) != 1 || streams[0] != "s1" {
		t.Fatalf("observer calls: %v", streams)
	}
	if bytes != m.Size() {
		t.Fatalf("observer bytes: got %d, want %d", bytes, m.Size())
	}
}

func TestPlanRange(t *testing.T) {
	// unbounded sequences collapse to a single interval query
	specs := planRange(100, message.MinSequence, 200, message.MaxSequence)
	if len(specs) != 1 {
		t.Fatalf("fast path: want 1 spec, got %d", len(specs))
	}

	// a single-timestamp range must not split, or rows would surface twice
	specs = planRange(100, 1, 100, 3)
	if len(specs) != 1 {
		t.Fatalf("single timestamp: want 1 spec, got %d", len(specs))
	}

	specs = planRange(100, 1, 104, 1)
	if len(specs) != 3 {
		t.Fatalf("bounded edges: want 3 specs, got %d", len(specs))
	}
	if specs[0].toTs != 100 || specs[1].fromTs != 101 || specs[1].toTs != 103 || specs[2].fromTs != 104 {
		t.Fatalf("unexpected decomposition: %+v", specs)
	}

	// adjacent timestamps leave no interior interval
	specs = planRange(100, 1, 101, 1)
	if len(specs) != 2 {
		t.Fatalf("adjacent timestamps: want 2 specs, got %d", len(specs))
	}
}
