package ackhandler

import (
	"github.com/lucas-clemente/quic-recovery/internal/protocol"
	"github.com/lucas-clemente/quic-recovery/internal/wire"
)

// Transport is the set of callbacks the Engine uses to act on the
// connection: queue a frame for the next outgoing packet at a given
// level, emit an ACK immediately, retransmit the contents of a lost
// frame, or ask for a send opportunity. Kept as an explicit interface so
// the Engine stays decoupled from the rest of the connection.
type Transport interface {
	// EnqueueFrame schedules frame to be carried in the next packet sent
	// at level. Used for retransmission and for PING probes armed by
	// the PTO timer.
	EnqueueFrame(level protocol.EncryptionLevel, frame wire.Frame)

	// SendAck flushes the current receive-range state at level into an
	// ACK frame and sends it immediately, bypassing the normal send
	// schedule. Used both for eager ACKs (range-table overflow) and
	// for delayed ACKs once the coalescing window elapses.
	SendAck(level protocol.EncryptionLevel) error

	// SendAckRange sends a one-shot ACK frame covering exactly
	// [smallest, largest], used when a packet arrives too far outside
	// the tracked range set to be folded into it.
	SendAckRange(level protocol.EncryptionLevel, smallest, largest protocol.PacketNumber) error

	// CloseConnection tears the connection down with err. The Engine
	// itself never calls it: protocol violations it detects are returned
	// as *qerr.TransportError values from its inbound methods, and the
	// caller closes the connection.
	CloseConnection(err error)

	// RequestSend notifies the connection that new data may be sendable
	// at level right now: a sent frame was acknowledged and the
	// congestion window opened up, a settled ACK reset pto_count, or a
	// lost frame was just requeued. The caller decides whether and when
	// to actually wake its send loop.
	RequestSend(level protocol.EncryptionLevel)
}

// StreamAckHandler lets the Engine notify the stream layer when a
// STREAM or RESET_STREAM frame it was tracking gets acknowledged, so
// flow-control and retransmission state outside this module's scope
// can retire it. Declared here because the Engine must call it at the
// exact moment a frame record leaves the sent ledger; implemented by
// whatever owns stream state.
type StreamAckHandler interface {
	StreamFrameAcked(f *wire.StreamFrame)
	ResetStreamAcked(f *wire.ResetStreamFrame)
}

// PathMTUHandler receives notice of each acknowledged range so a path
// MTU probe can confirm the probed size landed.
type PathMTUHandler interface {
	OnRangeAcked(level protocol.EncryptionLevel, smallest, largest protocol.PacketNumber)
}

// StreamSendState is the minimal send-side stream state the
// retransmission policy needs to decide whether a lost STREAM frame is
// worth requeuing at all.
type StreamSendState int

const (
	StreamSendOpen StreamSendState = iota
	StreamSendResetSent
	StreamSendResetRecvd
)

// FlowControl is queried by the retransmission policy when a lost
// MAX_DATA, MAX_STREAMS, MAX_STREAM_DATA, or STREAM frame is about to
// be requeued: limits are refreshed to their current value rather than
// blindly resent stale, and an abandoned stream's data is dropped
// instead of requeued. This is the hook a stream/flow-control layer
// built on top plugs into.
type FlowControl interface {
	CurrentMaxData() protocol.ByteCount
	CurrentMaxStreams(dir protocol.StreamDirection) int64
	CurrentStreamMaxData(streamID protocol.PacketNumber) (protocol.ByteCount, bool)
	StreamSendState(streamID protocol.PacketNumber) (StreamSendState, bool)
}
