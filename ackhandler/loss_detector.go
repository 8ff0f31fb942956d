package ackhandler

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
)

// DetectLost walks every encryption level's sent ledger from its
// oldest entry, declaring a frame record lost once it falls behind the
// peer's largest acknowledged packet number by either the packet
// threshold or the time threshold (RFC 9002 §6.1). ackStat, when
// non-nil, accumulates the send times of frames settled by the ACK
// frame that triggered this call and is used to evaluate persistent
// congestion once the walk completes; the loss timer handler calls
// DetectLost with a nil ackStat, skipping that check entirely.
func (e *Engine) DetectLost(now time.Time, ackStat *settlement) error {
	thr := e.rtt.LossThreshold()

	var lost settlement
	nlost := 0

	for level := protocol.EncryptionInitial; level <= protocol.EncryptionApplication; level++ {
		ctx := e.contexts[level]
		if ctx.largestAck == protocol.InvalidPacketNumber {
			continue
		}

		for {
			elem := ctx.ledger.Front()
			if elem == nil {
				break
			}
			start := elem.Value

			if start.Pnum > ctx.largestAck {
				break
			}

			wait := start.SendTime.Add(thr).Sub(now)

			if wait > 0 && ctx.largestAck-start.Pnum < protocol.PacketThreshold {
				break
			}

			if e.rtt.HasSample() && start.SendTime.After(e.rtt.FirstRTTSampleTime()) {
				lost.observe(start.SendTime)
				nlost++
			}

			e.logger.WithLevel(level).Debugf("detected lost pnum:%d", start.Pnum)
			e.resendFrames(ctx)
		}
	}

	if ackStat != nil && nlost >= 2 && lost.haveOldest && lost.haveNewest &&
		(!ackStat.haveNewest || !ackStat.haveOldest || ackStat.newest.Before(lost.oldest) || ackStat.oldest.After(lost.newest)) {

		if lost.newest.Sub(lost.oldest) > e.rtt.PersistentCongestionDuration(e.tp.MaxAckDelay) {
			e.logger.Debugf("persistent congestion declared")
			e.congestion.CollapsePersistentCongestion()
		}
	}

	e.armLossTimer(now)

	return nil
}
