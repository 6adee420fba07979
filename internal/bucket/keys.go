package bucket

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - st/{stream}/{part_be4}/bkt/{create_be8}                      (bucket meta)
// - st/{stream}/{part_be4}/cnt/{create_be8}/sz                   (bytes counter)
// - st/{stream}/{part_be4}/cnt/{create_be8}/rc                   (records counter)
// - st/{stream}/{part_be4}/msg/{create_be8}{ts_be8}{seq_be4}{pub}\x00{chain}
//
// Within one bucket, rows order by (ts, seq, publisher, chain) ascending,
// which is the engine's delivery order.

var (
	sep          = byte('/')
	streamPrefix = []byte("st/")
	bktSeg       = []byte("/bkt/")
	cntSeg       = []byte("/cnt/")
	msgSeg       = []byte("/msg/")
	szSuffix     = []byte("/sz")
	rcSuffix     = []byte("/rc")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func partPrefix(stream string, partition uint32) []byte {
	k := make([]byte, 0, len(stream)+16)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, sep)
	k = appendBE4(k, partition)
	return k
}

// KeyBucketMeta builds the bucket metadata key.
func KeyBucketMeta(stream string, partition uint32, createMs int64) []byte {
	k := partPrefix(stream, partition)
	k = append(k, bktSeg...)
	k = appendBE8(k, uint64(createMs))
	return k
}

// BucketMetaPrefix returns the scan prefix for all bucket metas of a
// stream partition.
func BucketMetaPrefix(stream string, partition uint32) []byte {
	k := partPrefix(stream, partition)
	k = append(k, bktSeg...)
	return k
}

// KeyBucketSize builds the bytes-counter cell key for a bucket.
func KeyBucketSize(stream string, partition uint32, createMs int64) []byte {
	k := partPrefix(stream, partition)
	k = append(k, cntSeg...)
	k = appendBE8(k, uint64(createMs))
	k = append(k, szSuffix...)
	return k
}

// KeyBucketRecords builds the record-counter cell key for a bucket.
func KeyBucketRecords(stream string, partition uint32, createMs int64) []byte {
	k := partPrefix(stream, partition)
	k = append(k, cntSeg...)
	k = appendBE8(k, uint64(createMs))
	k = append(k, rcSuffix...)
	return k
}

// RowPrefix returns the scan prefix for all rows of one bucket.
func RowPrefix(stream string, partition uint32, createMs int64) []byte {
	k := partPrefix(stream, partition)
	k = append(k, msgSeg...)
	k = appendBE8(k, uint64(createMs))
	return k
}

// KeyRow builds the full row key for a message stored in a bucket.
func KeyRow(stream string, partition uint32, createMs, ts int64, seq uint32, publisher, chain string) []byte {
	k := RowPrefix(stream, partition, createMs)
	k = appendBE8(k, uint64(ts))
	k = appendBE4(k, seq)
	k = append(k, publisher...)
	k = append(k, 0x00)
	k = append(k, chain...)
	return k
}

// RowLowerBound returns the inclusive lower iterator bound for rows of a
// bucket with (ts, seq) >= (fromTs, fromSeq).
func RowLowerBound(prefix []byte, fromTs int64, fromSeq uint32) []byte {
	k := append([]byte(nil), prefix...)
	k = appendBE8(k, uint64(fromTs))
	k = appendBE4(k, fromSeq)
	return k
}

// RowUpperBound returns the exclusive upper iterator bound for rows of a
// bucket with (ts, seq) <= (toTs, toSeq). It increments the (ts, seq) suffix
// with carry so every publisher/chain suffix at the boundary stays included.
func RowUpperBound(prefix []byte, toTs int64, toSeq uint32) []byte {
	k := append([]byte(nil), prefix...)
	if toSeq != ^uint32(0) {
		k = appendBE8(k, uint64(toTs))
		k = appendBE4(k, toSeq+1)
		return k
	}
	if uint64(toTs) != ^uint64(0) {
		k = appendBE8(k, uint64(toTs)+1)
		return k
	}
	return PrefixUpperBound(prefix)
}

// PrefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func PrefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff; no upper bound
}

// ParseRowKey extracts (ts, seq) from a row key given its bucket prefix
// length. The publisher/chain suffix is value-resident as well and decoded
// from there.
func ParseRowKey(key []byte, prefixLen int) (ts int64, seq uint32, ok bool) {
	if len(key) < prefixLen+12 {
		return 0, 0, false
	}
	ts = int64(binary.BigEndian.Uint64(key[prefixLen : prefixLen+8]))
	seq = binary.BigEndian.Uint32(key[prefixLen+8 : prefixLen+12])
	return ts, seq, true
}

// ParseBucketMetaKey extracts the bucket create time from a meta key given
// the meta prefix length.
func ParseBucketMetaKey(key []byte, prefixLen int) (createMs int64, ok bool) {
	if len(key) < prefixLen+8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(key[prefixLen : prefixLen+8])), true
}
