package wire

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
)

// AckRange is one {gap, range} entry of an ACK frame's range series,
// already decoded from the wire (byte-level framing is out of scope
// here). Gap is one less than the number of unacknowledged packet
// numbers strictly between this range and the next-higher one; Range is the number of
// packet numbers covered by this range beyond its single low endpoint.
type AckRange struct {
	Gap   uint64
	Range uint64
}

// AckFrame is a decoded ACK frame, the input to ACK ingest processing.
type AckFrame struct {
	Largest    protocol.PacketNumber
	FirstRange uint64
	// Delay is the ACK Delay field in wire units (2^AckDelayExponent
	// microseconds each); ACK ingest scales it to a duration.
	Delay time.Duration
	// Ranges holds the {gap, range} pairs below the top range, ordered
	// from highest to lowest packet number, exactly as they appear on
	// the wire.
	Ranges []AckRange
}

// LowestInTopRange returns the low edge of the ACK frame's top range,
// i.e. largest - first_range.
func (f *AckFrame) LowestInTopRange() protocol.PacketNumber {
	return f.Largest - protocol.PacketNumber(f.FirstRange)
}

// FrameType implements Frame, letting a sent ACK frame be tracked in the
// sent ledger like any other frame kind. ACK frames are discarded,
// never retransmitted, when declared lost.
func (*AckFrame) FrameType() protocol.FrameType { return protocol.FrameTypeAck }
