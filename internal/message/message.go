package message

// Message is an immutable, already-serialized stream message. Identity is
// (StreamID, Partition, PublisherID, MsgChainID, Timestamp, SequenceNo);
// ordering for storage and delivery is by (Timestamp, SequenceNo) ascending.
type Message struct {
	StreamID    string
	Partition   uint32
	Timestamp   int64 // milliseconds since epoch
	SequenceNo  uint32
	PublisherID string
	MsgChainID  string
	Payload     []byte
}

// Size returns the stored payload length in bytes.
func (m *Message) Size() int { return len(m.Payload) }

// Before reports whether m sorts strictly before other in delivery order.
func (m *Message) Before(other *Message) bool {
	if m.Timestamp != other.Timestamp {
		return m.Timestamp < other.Timestamp
	}
	if m.SequenceNo != other.SequenceNo {
		return m.SequenceNo < other.SequenceNo
	}
	if m.PublisherID != other.PublisherID {
		return m.PublisherID < other.PublisherID
	}
	return m.MsgChainID < other.MsgChainID
}

// Domain bounds for timestamps and sequence numbers, used when a range is
// pinned open at one end.
const (
	MinTimestamp int64  = 0
	MaxTimestamp int64  = 1<<63 - 1
	MinSequence  uint32 = 0
	MaxSequence  uint32 = 1<<32 - 1
)
