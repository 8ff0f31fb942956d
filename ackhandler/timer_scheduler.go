package ackhandler

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
	"github.com/lucas-clemente/quic-recovery/internal/wire"
)

// TimerKind says which handler owns the next deadline Engine.NextTimer
// reports, so the caller (which owns the actual timer primitive; out
// of this engine's scope) knows whether to call DetectLost or
// OnPTOTimeout when it fires.
type TimerKind int

const (
	// TimerNone means no sent frame is outstanding at any level; no
	// timer needs to be armed.
	TimerNone TimerKind = iota
	// TimerLossDetection means the deadline is the earliest time a
	// currently-outstanding frame could be declared lost.
	TimerLossDetection
	// TimerPTO means no loss deadline applies and the deadline is the
	// probe timeout.
	TimerPTO
)

// ArmedTimer is the result of combining the loss-detection and PTO
// deadlines across every encryption level: the earliest loss-detection
// deadline wins whenever any level has one, regardless of how the PTO
// deadlines compare; the earliest PTO deadline is used only when no
// level has a loss-detection deadline.
type ArmedTimer struct {
	Kind     TimerKind
	Deadline time.Time
}

// armLossTimer recomputes the combined deadline and stores it so
// NextTimer can report it to the caller.
func (e *Engine) armLossTimer(now time.Time) {
	e.timer = e.computeTimer(now)
}

// NextTimer returns the most recently computed combined deadline. The
// caller is responsible for actually scheduling a wakeup and invoking
// DetectLost or OnPTOTimeout when it fires.
func (e *Engine) NextTimer() ArmedTimer {
	return e.timer
}

func (e *Engine) computeTimer(now time.Time) ArmedTimer {
	haveLost := false
	var lostDeadline time.Time

	havePTO := false
	var ptoDeadline time.Time

	for level := protocol.EncryptionInitial; level <= protocol.EncryptionApplication; level++ {
		ctx := e.contexts[level]
		if ctx.ledger.Len() == 0 {
			continue
		}

		if ctx.largestAck != protocol.InvalidPacketNumber {
			front := ctx.ledger.Front().Value
			deadline := front.SendTime.Add(e.rtt.LossThreshold())

			if front.Pnum <= ctx.largestAck {
				if deadline.Before(now) || ctx.largestAck-front.Pnum >= protocol.PacketThreshold {
					deadline = now
				}

				if !haveLost || deadline.Before(lostDeadline) {
					lostDeadline, haveLost = deadline, true
				}
			}
		}

		back := ctx.ledger.Back().Value
		backoff := e.ptoDuration(ctx.level)
		ptoDL := back.SendTime.Add(backoff << e.ptoCount)
		if ptoDL.Before(now) {
			ptoDL = now
		}

		if !havePTO || ptoDL.Before(ptoDeadline) {
			ptoDeadline, havePTO = ptoDL, true
		}
	}

	if haveLost {
		return ArmedTimer{Kind: TimerLossDetection, Deadline: lostDeadline}
	}
	if havePTO {
		return ArmedTimer{Kind: TimerPTO, Deadline: ptoDeadline}
	}
	return ArmedTimer{Kind: TimerNone}
}

// ptoDuration is RFC 9002 Appendix A.8's PTO formula, including
// max_ack_delay only for the application level once the handshake is
// confirmed.
func (e *Engine) ptoDuration(level protocol.EncryptionLevel) time.Duration {
	includeMaxAckDelay := level == protocol.EncryptionApplication && e.handshakeConfirmed
	return e.rtt.PTO(e.tp.MaxAckDelay, includeMaxAckDelay)
}

// OnPTOTimeout fires when the PTO deadline elapses with no intervening
// ACK: for every level with an outstanding frame not yet implicated by
// the peer's largest acknowledged packet number, two PING frames are
// queued to probe the path, pto_count is incremented, and the combined
// timer is recomputed with the new (doubled) backoff.
func (e *Engine) OnPTOTimeout(now time.Time) error {
	e.logger.Debugf("pto timer fired pto_count:%d", e.ptoCount)

	for level := protocol.EncryptionInitial; level <= protocol.EncryptionApplication; level++ {
		ctx := e.contexts[level]
		if ctx.ledger.Len() == 0 {
			continue
		}

		back := ctx.ledger.Back().Value
		deadline := back.SendTime.Add(e.ptoDuration(ctx.level) << e.ptoCount)

		if back.Pnum <= ctx.largestAck && ctx.largestAck != protocol.InvalidPacketNumber {
			continue
		}
		if deadline.After(now) {
			continue
		}

		e.transport.EnqueueFrame(ctx.level, wire.PingFrame{})
		e.transport.EnqueueFrame(ctx.level, wire.PingFrame{})
	}

	e.ptoCount++
	e.armLossTimer(now)

	return nil
}
