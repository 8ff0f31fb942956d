package wire

import "github.com/lucas-clemente/quic-recovery/internal/protocol"

// Frame is any frame kind the retransmission policy has an opinion
// about. Byte-level encoding/decoding is out of scope; these types only
// carry the fields the policy needs to decide drop vs. requeue vs.
// refresh-and-requeue.
type Frame interface {
	FrameType() protocol.FrameType
}

// PingFrame elicits an ACK and carries no payload.
type PingFrame struct{}

// FrameType implements Frame.
func (PingFrame) FrameType() protocol.FrameType { return protocol.FrameTypePing }

// PathChallengeFrame carries path validation data, discarded on loss
// rather than retransmitted.
type PathChallengeFrame struct {
	Data [8]byte
}

// FrameType implements Frame.
func (PathChallengeFrame) FrameType() protocol.FrameType { return protocol.FrameTypePathChallenge }

// PathResponseFrame answers a PathChallengeFrame.
type PathResponseFrame struct {
	Data [8]byte
}

// FrameType implements Frame.
func (PathResponseFrame) FrameType() protocol.FrameType { return protocol.FrameTypePathResponse }

// ConnectionCloseFrame signals connection teardown.
type ConnectionCloseFrame struct {
	ErrorCode    uint64
	ReasonPhrase string
}

// FrameType implements Frame.
func (ConnectionCloseFrame) FrameType() protocol.FrameType { return protocol.FrameTypeConnectionClose }

// MaxDataFrame raises the connection-level flow control limit. On loss,
// the retransmission policy refreshes MaximumData to the stream
// subsystem's current recv_max_data before requeuing.
type MaxDataFrame struct {
	MaximumData protocol.ByteCount
}

// FrameType implements Frame.
func (*MaxDataFrame) FrameType() protocol.FrameType { return protocol.FrameTypeMaxData }

// MaxStreamsFrame raises the stream-count limit for one direction.
type MaxStreamsFrame struct {
	Direction    protocol.StreamDirection
	MaximumCount int64
}

// FrameType implements Frame.
func (*MaxStreamsFrame) FrameType() protocol.FrameType { return protocol.FrameTypeMaxStreams }

// MaxStreamDataFrame raises one stream's flow control limit.
type MaxStreamDataFrame struct {
	StreamID    protocol.PacketNumber // reused as a generic 64-bit ID field
	MaximumData protocol.ByteCount
}

// FrameType implements Frame.
func (*MaxStreamDataFrame) FrameType() protocol.FrameType { return protocol.FrameTypeMaxStreamData }

// StreamFrame carries application stream data.
type StreamFrame struct {
	StreamID protocol.PacketNumber // reused as a generic 64-bit ID field
	Offset   protocol.ByteCount
	Data     []byte
	Fin      bool
}

// FrameType implements Frame.
func (*StreamFrame) FrameType() protocol.FrameType { return protocol.FrameTypeStream }

// DataLen returns the number of payload bytes carried.
func (f *StreamFrame) DataLen() protocol.ByteCount { return protocol.ByteCount(len(f.Data)) }

// ResetStreamFrame abandons a stream's send side.
type ResetStreamFrame struct {
	StreamID protocol.PacketNumber
}

// FrameType implements Frame.
func (*ResetStreamFrame) FrameType() protocol.FrameType { return protocol.FrameTypeResetStream }
