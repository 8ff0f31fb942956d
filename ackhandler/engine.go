// Package ackhandler implements the loss-recovery and congestion
// control engine: per-level ACK tracking (RFC 9000 §13), loss
// detection and probe timeouts (RFC 9002), and the NewReno-style
// congestion controller that sits underneath both. It is deliberately
// blind to byte-level packet framing, key derivation, and application
// semantics; those are supplied by the Transport, StreamAckHandler,
// PathMTUHandler, and FlowControl collaborators.
package ackhandler

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/congestion"
	"github.com/lucas-clemente/quic-recovery/internal/protocol"
	"github.com/lucas-clemente/quic-recovery/internal/utils"
	"github.com/lucas-clemente/quic-recovery/internal/wire"
)

// Engine is the top-level loss-recovery and congestion-control state
// for one QUIC connection: one sendContext per encryption level
// sharing a single congestion.State and congestion.RTTStats.
type Engine struct {
	contexts [protocol.NumEncryptionLevels]*sendContext

	congestion *congestion.State
	rtt        *congestion.RTTStats

	tp    protocol.TransportParameters
	clock utils.Clock

	transport   Transport
	streamAck   StreamAckHandler
	pathMTU     PathMTUHandler
	flowControl FlowControl

	// rstPnum is the packet number floor below which congestion
	// accounting is ignored, used to discard stale ack/loss signals
	// after a key-phase or path reset. It never advances in this
	// engine's current scope (no key update or path migration beyond
	// the MTU hook is implemented), so it stays at its zero value.
	rstPnum protocol.PacketNumber

	ptoCount           uint32
	handshakeConfirmed bool
	closing            bool

	timer ArmedTimer

	logger utils.Logger
}

// NewEngine constructs an Engine with a fresh congestion controller
// and RTT estimator, one sendContext per encryption level, and the
// given collaborators. streamAck, pathMTU, and flowControl may be nil
// if the caller has no use for the corresponding hook.
func NewEngine(tp protocol.TransportParameters, clock utils.Clock, transport Transport, streamAck StreamAckHandler, pathMTU PathMTUHandler, flowControl FlowControl) *Engine {
	e := &Engine{
		congestion:  congestion.NewState(tp, clock),
		rtt:         congestion.NewRTTStats(),
		tp:          tp,
		clock:       clock,
		transport:   transport,
		streamAck:   streamAck,
		pathMTU:     pathMTU,
		flowControl: flowControl,
		rstPnum:     0, // nothing excluded: no key-phase or path reset has occurred yet
		logger:      utils.NewLogger("ackhandler"),
	}
	for level := protocol.EncryptionInitial; level <= protocol.EncryptionApplication; level++ {
		e.contexts[level] = newSendContext(level)
	}
	return e
}

// Congestion exposes the shared congestion controller, e.g. for wiring
// into a MetricsCollector.
func (e *Engine) Congestion() *congestion.State { return e.congestion }

// RTTStats exposes the shared RTT estimator.
func (e *Engine) RTTStats() *congestion.RTTStats { return e.rtt }

// SetHandshakeConfirmed records that the TLS handshake has completed,
// which gates whether the application level's PTO includes
// max_ack_delay (RFC 9002 Appendix A.8). ACK-delay clamping (RFC 9002
// §5.3) is gated by OnAckFrame's own handshakeConfirmed argument, not by
// this setting.
func (e *Engine) SetHandshakeConfirmed(confirmed bool) { e.handshakeConfirmed = confirmed }

// PTOCount returns the number of consecutive probe timeouts that have
// fired without an intervening ACK, surfaced through MetricsCollector.
func (e *Engine) PTOCount() uint32 { return e.ptoCount }

// Close marks the connection as tearing down: requestSend becomes a
// no-op from this point on, since there is no point waking a send loop
// that is about to go away.
func (e *Engine) Close() { e.closing = true }

// requestSend asks the transport to consider sending at level, unless
// the connection is already closing.
func (e *Engine) requestSend(level protocol.EncryptionLevel) {
	if e.closing {
		return
	}
	e.transport.RequestSend(level)
}

// NextPacketNumber allocates the next packet number to send at level.
func (e *Engine) NextPacketNumber(level protocol.EncryptionLevel) protocol.PacketNumber {
	return e.contexts[level].AllocatePacketNumber()
}

// SentPacket records that frame was just sent at level under pnum,
// charging length against the congestion window unless
// ignoreCongestion is set (PING probes and other frames RFC 9002
// excludes from congestion accounting). Call once per frame in a
// packet; length should be nonzero for exactly one of those calls per
// packet so a multi-frame packet's cost is charged once, not once per
// frame.
func (e *Engine) SentPacket(level protocol.EncryptionLevel, pnum protocol.PacketNumber, frame wire.Frame, length protocol.ByteCount, ignoreCongestion bool, now time.Time) {
	ctx := e.contexts[level]

	// A record's Length is what OnAck/OnLost later credit back, so a
	// frame that was never charged is recorded with zero length.
	recLength := length
	if ignoreCongestion {
		recLength = 0
	}

	ctx.ledger.PushBack(FrameRecord{
		Pnum:             pnum,
		SendTime:         now,
		Length:           recLength,
		Level:            level,
		IgnoreCongestion: ignoreCongestion,
		Frame:            frame,
	})

	if !ignoreCongestion && length > 0 {
		e.congestion.OnPacketSent(length)
	}

	e.armLossTimer(now)
}

// OnPacketReceived admits a received packet number into level's
// receive-side range set. needAck reports whether the packet was
// ack-eliciting.
func (e *Engine) OnPacketReceived(level protocol.EncryptionLevel, pn protocol.PacketNumber, needAck bool, now time.Time) error {
	return e.contexts[level].ReceivePacket(e.transport, pn, needAck, now)
}

// FlushAck gives level's send context a chance to emit an outgoing ACK
// now, subject to the application-level coalescing window.
// hasQueuedFrames should report whether the connection already has
// other frames queued to piggyback the ACK on; armDelayedAck, if
// non-nil, is invoked with the remaining coalescing delay when the
// engine decides to wait rather than send immediately.
func (e *Engine) FlushAck(level protocol.EncryptionLevel, now time.Time, hasQueuedFrames bool, armDelayedAck func(time.Duration)) error {
	return e.contexts[level].GenerateAck(e.transport, e.tp.MaxAckDelay, now, hasQueuedFrames, armDelayedAck)
}

// OnTimerFired routes the single connection timer to whichever handler
// Engine.NextTimer last armed: the loss detector if a lost deadline
// was pending, otherwise the PTO handler. Calling it while
// NextTimer().Kind is TimerNone is a no-op.
func (e *Engine) OnTimerFired(now time.Time) error {
	switch e.timer.Kind {
	case TimerLossDetection:
		return e.DetectLost(now, nil)
	case TimerPTO:
		return e.OnPTOTimeout(now)
	default:
		return nil
	}
}
