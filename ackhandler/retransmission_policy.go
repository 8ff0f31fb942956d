package ackhandler

import (
	"github.com/lucas-clemente/quic-recovery/internal/protocol"
	"github.com/lucas-clemente/quic-recovery/internal/wire"
)

// resendFrames pops every frame record sharing the sent ledger's
// oldest packet number and disposes of each according to a
// per-frame-type policy: ACK frames are simply discarded (but force an
// immediate re-ACK at the application level, since the acknowledgment
// they carried is now stale), path validation and connection-close
// frames are discarded outright, STREAM frames are dropped if the stream
// has since been reset and otherwise requeued unchanged, RESET_STREAM
// frames are always requeued, and the flow-control frames are requeued
// with their limit
// refreshed to the current value rather than the stale one they were
// first sent with. Once the walk completes, it asks the transport to
// request a send, since requeued frames mean there is new data ready
// to go out.
func (e *Engine) resendFrames(ctx *sendContext) {
	elem := ctx.ledger.Front()
	if elem == nil {
		return
	}

	pnum := elem.Value.Pnum
	e.congestion.OnLost(elem.Value.Length, elem.Value.SendTime, elem.Value.Pnum, e.rstPnum)

	for elem != nil && elem.Value.Pnum == pnum {
		next := elem.Next()
		rec := ctx.ledger.Remove(elem)

		switch f := rec.Frame.(type) {
		case *wire.AckFrame:
			if ctx.level == protocol.EncryptionApplication {
				ctx.sendAck = protocol.MaxAckRangeGap
			}

		case *wire.PingFrame, *wire.PathChallengeFrame, *wire.PathResponseFrame, *wire.ConnectionCloseFrame:
			// Discarded: none of these carry state worth retransmitting.

		case *wire.MaxDataFrame:
			if e.flowControl != nil {
				f.MaximumData = e.flowControl.CurrentMaxData()
			}
			e.transport.EnqueueFrame(ctx.level, f)

		case *wire.MaxStreamsFrame:
			if e.flowControl != nil {
				f.MaximumCount = e.flowControl.CurrentMaxStreams(f.Direction)
			}
			e.transport.EnqueueFrame(ctx.level, f)

		case *wire.MaxStreamDataFrame:
			if e.flowControl != nil {
				if limit, ok := e.flowControl.CurrentStreamMaxData(f.StreamID); ok {
					f.MaximumData = limit
					e.transport.EnqueueFrame(ctx.level, f)
				}
				// Stream is gone: drop silently.
			} else {
				e.transport.EnqueueFrame(ctx.level, f)
			}

		case *wire.StreamFrame:
			if e.flowControl != nil {
				if state, ok := e.flowControl.StreamSendState(f.StreamID); ok &&
					(state == StreamSendResetSent || state == StreamSendResetRecvd) {
					break
				}
			}
			e.transport.EnqueueFrame(ctx.level, f)

		case *wire.ResetStreamFrame:
			e.transport.EnqueueFrame(ctx.level, f)

		default:
			e.transport.EnqueueFrame(ctx.level, rec.Frame)
		}

		elem = next
	}

	e.requestSend(ctx.level)
}
