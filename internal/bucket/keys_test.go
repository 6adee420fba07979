package bucket

import (
	"bytes"
	"testing"
)

func TestRowKeyOrdering(t *testing.T) {
	// key bytes must sort the way the engine delivers: (ts, seq, publisher, chain)
	keys := [][]byte{
		KeyRow("s1", 0, 1000, 100, 0, "a", "c1"),
		KeyRow("s1", 0, 1000, 100, 0, "a", "c2"),
		KeyRow("s1", 0, 1000, 100, 0, "b", "c1"),
		KeyRow("s1", 0, 1000, 100, 1, "a", "c1"),
		KeyRow("s1", 0, 1000, 101, 0, "a", "c1"),
		KeyRow("s1", 0, 1000, 1<<40, 0, "a", "c1"),
	}
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1], keys[i]) >= 0 {
			t.Fatalf("key %d does not sort before key %d", i-1, i)
		}
	}
}

func TestRowBounds(t *testing.T) {
	prefix := RowPrefix("s1", 0, 1000)

	lo := RowLowerBound(prefix, 100, 5)
	hi := RowUpperBound(prefix, 200, 5)

	inside := [][]byte{
		KeyRow("s1", 0, 1000, 100, 5, "pub", "chain"),
		KeyRow("s1", 0, 1000, 150, 0, "pub", "chain"),
		KeyRow("s1", 0, 1000, 200, 5, "pub", "chain"),
		KeyRow("s1", 0, 1000, 200, 5, "zz", "zz"),
	}
	outside := [][]byte{
		KeyRow("s1", 0, 1000, 100, 4, "pub", "chain"),
		KeyRow("s1", 0, 1000, 99, 9, "pub", "chain"),
		KeyRow("s1", 0, 1000, 200, 6, "pub", "chain"),
		KeyRow("s1", 0, 1000, 201, 0, "pub", "chain"),
	}
	for i, k := range inside {
		if bytes.Compare(k, lo) < 0 || bytes.Compare(k, hi) >= 0 {
			t.Fatalf("inside key %d excluded by bounds", i)
		}
	}
	for i, k := range outside {
		if bytes.Compare(k, lo) >= 0 && bytes.Compare(k, hi) < 0 {
			t.Fatalf("outside key %d included by bounds", i)
		}
	}
}

func TestRowUpperBoundCarries(t *testing.T) {
	prefix := RowPrefix("s1", 0, 1000)

	// max sequence carries into the timestamp
	hi := RowUpperBound(prefix, 200, ^uint32(0))
	edge := KeyRow("s1", 0, 1000, 200, ^uint32(0), "zz", "zz")
	if bytes.Compare(edge, hi) >= 0 {
		t.Fatal("max-sequence boundary row excluded")
	}
	next := KeyRow("s1", 0, 1000, 201, 0, "a", "a")
	if bytes.Compare(next, hi) < 0 {
		t.Fatal("row past the boundary included")
	}

	// max timestamp and sequence carry out of the bucket prefix
	hi = RowUpperBound(prefix, -1, ^uint32(0)) // int64(-1) is all 0xff big-endian
	edge = KeyRow("s1", 0, 1000, -1, ^uint32(0), "zz", "zz")
	if bytes.Compare(edge, hi) >= 0 {
		t.Fatal("domain-max boundary row excluded")
	}
}

func TestParseRowKey(t *testing.T) {
	prefix := RowPrefix("s1", 3, 1000)
	key := KeyRow("s1", 3, 1000, 12345, 7, "pub", "chain")

	ts, seq, ok := ParseRowKey(key, len(prefix))
	if !ok || ts != 12345 || seq != 7 {
		t.Fatalf("parse: got (%d,%d,%v)", ts, seq, ok)
	}
	if _, _, ok := ParseRowKey(key[:len(prefix)+3], len(prefix)); ok {
		t.Fatal("truncated key must not parse")
	}
}

func TestParseBucketMetaKey(t *testing.T) {
	prefix := BucketMetaPrefix("s1", 0)
	key := KeyBucketMeta("s1", 0, 9999)
	createMs, ok := ParseBucketMetaKey(key, len(prefix))
	if !ok || createMs != 9999 {
		t.Fatalf("parse: got (%d,%v)", createMs, ok)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	cases := []struct {
		prefix []byte
		want   []byte
	}{
		{[]byte("abc"), []byte("abd")},
		{[]byte{0x01, 0xff}, []byte{0x02}},
		{[]byte{0xff, 0xff}, nil},
	}
	for _, tc := range cases {
		got := PrefixUpperBound(tc.prefix)
		if !bytes.Equal(got, tc.want) {
			t.Fatalf("PrefixUpperBound(%x): got %x, want %x", tc.prefix, got, tc.want)
		}
	}
}

func TestBucketKeyspacesDisjoint(t *testing.T) {
	metaPrefix := BucketMetaPrefix("s1", 0)
	rowPrefix := RowPrefix("s1", 0, 1000)
	if bytes.HasPrefix(rowPrefix, metaPrefix) {
		t.Fatal("row keys must not live under the meta prefix")
	}
	sz := KeyBucketSize("s1", 0, 1000)
	rc := KeyBucketRecords("s1", 0, 1000)
	if bytes.Equal(sz, rc) {
		t.Fatal("counter cells must be distinct")
	}
}
