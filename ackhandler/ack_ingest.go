package ackhandler

import (
	"fmt"
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
	"github.com/lucas-clemente/quic-recovery/internal/wire"
	"github.com/lucas-clemente/quic-recovery/qerr"
)

// settlement is the per-ACK-frame accumulator threaded through every
// call to settleRange: the oldest and newest send times of every frame
// record settled by this ACK, used by persistent congestion detection.
// Whether the top range's upper edge was found is reported separately,
// per range, through rangeResult.
type settlement struct {
	haveOldest, haveNewest bool
	oldest, newest         time.Time
}

func (s *settlement) observe(sendTime time.Time) {
	if !s.haveOldest || sendTime.Before(s.oldest) {
		s.oldest, s.haveOldest = sendTime, true
	}
	if !s.haveNewest || sendTime.After(s.newest) {
		s.newest, s.haveNewest = sendTime, true
	}
}

// OnAckFrame processes a received ACK frame at level (RFC 9000 §13.2.4,
// RFC 9002 §5.1). It settles every sent frame record the ACK covers,
// draws an RTT sample when the largest
// acknowledged packet number is newly acknowledged and a frame record
// with that packet number was settled, and finally runs loss detection.
// ack.Delay is in wire units and is scaled by the AckDelayExponent
// transport parameter before use. now is the current
// time; handshakeConfirmed gates whether the ACK delay gets clamped to
// max_ack_delay (RFC 9002 §5.3).
func (e *Engine) OnAckFrame(level protocol.EncryptionLevel, ack *wire.AckFrame, now time.Time, handshakeConfirmed bool) error {
	if ack.FirstRange > uint64(ack.Largest) {
		return qerr.FrameEncodingError("invalid first range in ack frame")
	}

	ctx := e.contexts[level]

	min := ack.Largest - protocol.PacketNumber(ack.FirstRange)
	max := ack.Largest

	e.logger.WithLevel(level).Debugf("ack frame largest:%d fr:%d ranges:%d", ack.Largest, ack.FirstRange, len(ack.Ranges))

	total := &settlement{}

	top, err := e.settleRange(ctx, level, min, max, total)
	if err != nil {
		return err
	}
	settledAny := top.settled
	postPush := top.postPush

	if ctx.largestAck == protocol.InvalidPacketNumber || ctx.largestAck < max {
		ctx.largestAck = max

		if top.haveMaxPn {
			ackDelay := (ack.Delay << e.tp.AckDelayExponent / 1000) * time.Millisecond
			if handshakeConfirmed && ackDelay > e.tp.MaxAckDelay {
				ackDelay = e.tp.MaxAckDelay
			}
			e.rtt.UpdateRTT(now, top.maxPnSendTime, ackDelay)
			e.congestion.OnBandwidthSample(top.maxPnLength, now.Sub(top.maxPnSendTime))
		}
	}

	for i, r := range ack.Ranges {
		if r.Gap+2 > uint64(min) {
			return qerr.FrameEncodingError(fmt.Sprintf("invalid range:%d in ack frame", i))
		}
		max = min - protocol.PacketNumber(r.Gap) - 2

		if r.Range > uint64(max) {
			return qerr.FrameEncodingError(fmt.Sprintf("invalid range:%d in ack frame", i))
		}
		min = max - protocol.PacketNumber(r.Range)

		rr, err := e.settleRange(ctx, level, min, max, total)
		if err != nil {
			return err
		}
		settledAny = settledAny || rr.settled
		postPush = postPush || rr.postPush
	}

	// Only a frame that actually settled something may reset the probe
	// count or wake the send loop; an ACK covering nothing but
	// already-settled packet numbers is a benign duplicate.
	if settledAny {
		e.ptoCount = 0
	}
	if settledAny || postPush {
		e.requestSend(level)
	}

	return e.DetectLost(now, total)
}

// rangeResult carries settleRange's private signal back to OnAckFrame:
// whether the range's own upper edge (max) was actually a tracked
// frame record, and if so its send time, the RTT-sample trigger; plus
// whether any record in the range settled at all, and whether settling
// one unblocked the congestion controller.
type rangeResult struct {
	haveMaxPn     bool
	maxPnSendTime time.Time
	maxPnLength   protocol.ByteCount
	settled       bool
	postPush      bool
}

// settleRange retires every frame record in [min, max] from ctx's sent
// ledger: it runs the congestion controller's on-ack transition for
// each, confirms a path MTU probe at the application level, drops
// stale receive-range state for settled ACK frames, and notifies the
// stream layer for settled STREAM/RESET_STREAM frames.
func (e *Engine) settleRange(ctx *sendContext, level protocol.EncryptionLevel, min, max protocol.PacketNumber, total *settlement) (rangeResult, error) {
	if level == protocol.EncryptionApplication && e.pathMTU != nil {
		e.pathMTU.OnRangeAcked(level, min, max)
	}

	var result rangeResult

	elem := ctx.ledger.Front()
	for elem != nil {
		next := elem.Next()
		rec := elem.Value

		if rec.Pnum > max {
			break
		}

		if rec.Pnum >= min {
			if e.congestion.OnAck(rec.Length, rec.SendTime, rec.Pnum, e.rstPnum) {
				result.postPush = true
			}

			switch f := rec.Frame.(type) {
			case *wire.AckFrame:
				ctx.DropAckRanges(f.Largest)
			case *wire.StreamFrame:
				if e.streamAck != nil {
					e.streamAck.StreamFrameAcked(f)
				}
			case *wire.ResetStreamFrame:
				if e.streamAck != nil {
					e.streamAck.ResetStreamAcked(f)
				}
			}

			if rec.Pnum == max {
				result.haveMaxPn = true
				result.maxPnSendTime = rec.SendTime
				result.maxPnLength = rec.Length
			}

			total.observe(rec.SendTime)

			ctx.ledger.Remove(elem)
			result.settled = true
		}

		elem = next
	}

	if !result.settled && max >= ctx.nextPnum {
		return result, qerr.ProtocolViolation("ACK", "unknown packet number")
	}

	return result, nil
}
