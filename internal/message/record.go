package message

import (
	"encoding/binary"
	"hash/crc32"
)

// Row encoding: varint publisherLen | publisher | varint chainLen | chain |
// payload | crc32c(publisher|chain|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeRow serializes the publisher/chain identity and payload of a message
// into a stored row value.
func EncodeRow(m *Message) []byte {
	out := make([]byte, 0, 20+len(m.PublisherID)+len(m.MsgChainID)+len(m.Payload))
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(m.PublisherID)))
	out = append(out, tmp[:n]...)
	out = append(out, m.PublisherID...)
	n = binary.PutUvarint(tmp[:], uint64(len(m.MsgChainID)))
	out = append(out, tmp[:n]...)
	out = append(out, m.MsgChainID...)
	out = append(out, m.Payload...)

	crc := crc32.Update(0, castagnoli, []byte(m.PublisherID))
	crc = crc32.Update(crc, castagnoli, []byte(m.MsgChainID))
	crc = crc32.Update(crc, castagnoli, m.Payload)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out
}

// DecodedRow carries the value-resident fields of a stored row.
type DecodedRow struct {
	PublisherID string
	MsgChainID  string
	Payload     []byte
}

// DecodeRow parses a stored row value. It returns ok=false for truncated
// rows, CRC mismatches, and rows with an empty payload; such rows are
// malformed and must be skipped by readers, never forwarded.
func DecodeRow(b []byte) (DecodedRow, bool) {
	if len(b) < 2+4 {
		return DecodedRow{}, false
	}
	// length varints are bounds-checked as uint64 before conversion: a
	// corrupt length >= 2^63 would turn negative as an int
	plen, n := binary.Uvarint(b)
	if n <= 0 || plen > uint64(len(b)-n) {
		return DecodedRow{}, false
	}
	pub := b[n : n+int(plen)]
	rest := b[n+int(plen):]
	clen, n2 := binary.Uvarint(rest)
	if n2 <= 0 || clen > uint64(len(rest)-n2) || n2+int(clen)+4 > len(rest) {
		return DecodedRow{}, false
	}
	chain := rest[n2 : n2+int(clen)]
	payload := rest[n2+int(clen) : len(rest)-4]
	if len(payload) == 0 {
		return DecodedRow{}, false
	}
	expect := binary.BigEndian.Uint32(rest[len(rest)-4:])
	crc := crc32.Update(0, castagnoli, pub)
	crc = crc32.Update(crc, castagnoli, chain)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return DecodedRow{}, false
	}
	return DecodedRow{
		PublisherID: string(pub),
		MsgChainID:  string(chain),
		Payload:     append([]byte(nil), payload...),
	}, true
}
