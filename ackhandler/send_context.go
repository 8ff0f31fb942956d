package ackhandler

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
)

// ackRangeEntry is one {gap, range} pair below the top of a receive
// set: gap is one less than the number of unacknowledged packet
// numbers, range one less than the number of acknowledged ones below
// the gap, both expressed as deltas rather than absolute packet numbers.
type ackRangeEntry struct {
	Gap   uint64
	Range uint64
}

// sendContext holds everything the engine tracks per encryption level:
// the outgoing ledger of sent frame records, the next packet number to
// assign, the receive-side range set describing which peer packet
// numbers we've seen, and the bookkeeping that drives when an ACK gets
// flushed.
type sendContext struct {
	level protocol.EncryptionLevel

	ledger   *frameList
	nextPnum protocol.PacketNumber

	// largestAck is the largest packet number the peer has acknowledged
	// receiving from us at this level (RFC 9000 §13.2.4).
	largestAck protocol.PacketNumber

	// Receive-side range set: which of the peer's packet numbers we've
	// seen, compacted as largestRange/firstRange plus descending
	// {gap,range} entries.
	largestRange protocol.PacketNumber
	firstRange   uint64
	ranges       []ackRangeEntry

	// ACK flush bookkeeping.
	pendingAck    protocol.PacketNumber
	sendAck       int
	ackDelayStart time.Time
}

func newSendContext(level protocol.EncryptionLevel) *sendContext {
	return &sendContext{
		level:        level,
		ledger:       newFrameList(),
		largestAck:   protocol.InvalidPacketNumber,
		largestRange: protocol.InvalidPacketNumber,
		pendingAck:   protocol.InvalidPacketNumber,
		ranges:       make([]ackRangeEntry, 0, protocol.MaxAckRanges),
	}
}

// AllocatePacketNumber returns the next packet number to use at this
// level and advances the counter.
func (ctx *sendContext) AllocatePacketNumber() protocol.PacketNumber {
	pn := ctx.nextPnum
	ctx.nextPnum++
	return pn
}

// insertRange splices a new {gap,range} entry at index i, shifting
// everything at or after i one slot to the right. If the set is
// already at MaxAckRanges, the oldest (last) entry is silently dropped
// rather than growing the slice further.
func (ctx *sendContext) insertRange(i int, gap, rng uint64) {
	if len(ctx.ranges) < protocol.MaxAckRanges {
		ctx.ranges = append(ctx.ranges, ackRangeEntry{})
	}
	copy(ctx.ranges[i+1:], ctx.ranges[i:len(ctx.ranges)-1])
	ctx.ranges[i] = ackRangeEntry{Gap: gap, Range: rng}
}

// ReceivePacket admits packet number pn into the receive-side range
// set and updates the pending-ACK bookkeeping. When the range table is
// already full and the oldest range is about to be dropped, it issues
// an eager flush through t.SendAck before that happens.
func (ctx *sendContext) ReceivePacket(t Transport, pn protocol.PacketNumber, needAck bool, now time.Time) error {
	prevPending := ctx.pendingAck

	if needAck {
		if ctx.sendAck == 0 {
			ctx.ackDelayStart = now
		}
		ctx.sendAck++

		if ctx.pendingAck == protocol.InvalidPacketNumber || ctx.pendingAck < pn {
			ctx.pendingAck = pn
		}
	}

	base := ctx.largestRange
	if base == protocol.InvalidPacketNumber {
		ctx.largestRange = pn
		return nil
	}
	if base == pn {
		return nil
	}

	largest := base
	smallest := largest - protocol.PacketNumber(ctx.firstRange)

	if pn > base {
		if pn-base == 1 {
			ctx.firstRange++
			ctx.largestRange = pn
			return nil
		}

		// New gap in front of the current largest range.
		if len(ctx.ranges) == protocol.MaxAckRanges {
			if prevPending != protocol.InvalidPacketNumber {
				if err := t.SendAck(ctx.level); err != nil {
					return err
				}
			}
			if prevPending == ctx.pendingAck || !needAck {
				ctx.pendingAck = protocol.InvalidPacketNumber
			}
		}

		gap := uint64(pn-base) - 2
		rng := ctx.firstRange

		ctx.firstRange = 0
		ctx.largestRange = pn

		if needAck {
			ctx.sendAck = protocol.MaxAckRangeGap
		}

		ctx.insertRange(0, gap, rng)
		return nil
	}

	// pn < base: look the packet number up in the existing ranges.
	if needAck {
		ctx.sendAck = protocol.MaxAckRangeGap
	}

	if pn >= smallest && pn <= largest {
		return nil
	}

	i := 0
	for ; i < len(ctx.ranges); i++ {
		r := &ctx.ranges[i]

		ge := smallest - 1
		gs := ge - protocol.PacketNumber(r.Gap)

		if pn >= gs && pn <= ge {
			switch {
			case gs == ge:
				// Gap is exactly one packet, now filled: the two
				// neighboring ranges merge and this entry disappears.
				if i == 0 {
					ctx.firstRange += r.Range + 2
				} else {
					ctx.ranges[i-1].Range += r.Range + 2
				}
				ctx.ranges = append(ctx.ranges[:i], ctx.ranges[i+1:]...)

			case pn == gs:
				// Gap shrinks from its tail: current range grows.
				r.Gap--
				r.Range++

			case pn == ge:
				// Gap shrinks from its head: previous range grows.
				r.Gap--
				if i == 0 {
					ctx.firstRange++
				} else {
					ctx.ranges[i-1].Range++
				}

			default:
				// Gap splits into two parts around pn.
				newGap := uint64(ge - pn - 1)
				if len(ctx.ranges) == protocol.MaxAckRanges {
					if prevPending != protocol.InvalidPacketNumber {
						if err := t.SendAck(ctx.level); err != nil {
							return err
						}
					}
					if prevPending == ctx.pendingAck || !needAck {
						ctx.pendingAck = protocol.InvalidPacketNumber
					}
				}
				r.Gap = uint64(pn - gs - 1)
				ctx.insertRange(i, newGap, 0)
			}

			return nil
		}

		largest = smallest - protocol.PacketNumber(r.Gap) - 2
		smallest = largest - protocol.PacketNumber(r.Range)

		if pn >= smallest && pn <= largest {
			// Already known.
			return nil
		}
	}

	if pn == smallest-1 {
		if i == 0 {
			ctx.firstRange++
		} else {
			ctx.ranges[i-1].Range++
		}
		return nil
	}

	if len(ctx.ranges) == protocol.MaxAckRanges {
		// Too old to keep tracking; send a one-shot ACK for exactly
		// this packet number instead of growing the range set.
		if needAck {
			return t.SendAckRange(ctx.level, pn, pn)
		}
		return nil
	}

	gap := uint64(smallest - 2 - pn)
	ctx.insertRange(i, gap, 0)
	return nil
}

// DropAckRanges discards receive-side tracking state for everything at
// or below pn, the largest value carried by one of our own sent ACK
// frames once the peer has acknowledged that frame. There is no more
// reason to keep re-acknowledging packets the peer already knows we
// saw.
func (ctx *sendContext) DropAckRanges(pn protocol.PacketNumber) {
	base := ctx.largestRange
	if base == protocol.InvalidPacketNumber {
		return
	}

	if ctx.pendingAck != protocol.InvalidPacketNumber && pn >= ctx.pendingAck {
		ctx.pendingAck = protocol.InvalidPacketNumber
	}

	largest := base
	smallest := largest - protocol.PacketNumber(ctx.firstRange)

	if pn >= largest {
		ctx.largestRange = protocol.InvalidPacketNumber
		ctx.firstRange = 0
		ctx.ranges = ctx.ranges[:0]
		return
	}

	if pn >= smallest {
		ctx.firstRange = uint64(largest - pn - 1)
		ctx.ranges = ctx.ranges[:0]
		return
	}

	for i := range ctx.ranges {
		r := &ctx.ranges[i]
		largest = smallest - protocol.PacketNumber(r.Gap) - 2
		smallest = largest - protocol.PacketNumber(r.Range)

		if pn >= largest {
			ctx.ranges = ctx.ranges[:i]
			return
		}
		if pn >= smallest {
			r.Range = uint64(largest - pn - 1)
			ctx.ranges = ctx.ranges[:i+1]
			return
		}
	}
}

// GenerateAck flushes the pending receive-side state into an ACK
// frame, unless this is the application level and the coalescing
// conditions (no other frames queued, gap count still small, delay
// still under max_ack_delay) say to wait a bit longer. When it decides
// to wait, armDelayedAck (if non-nil) is called with the remaining
// delay so the caller can schedule a follow-up flush.
func (ctx *sendContext) GenerateAck(t Transport, maxAckDelay time.Duration, now time.Time, hasQueuedFrames bool, armDelayedAck func(time.Duration)) error {
	if ctx.sendAck == 0 {
		return nil
	}

	if ctx.level == protocol.EncryptionApplication {
		delay := now.Sub(ctx.ackDelayStart)

		if !hasQueuedFrames && ctx.sendAck < protocol.MaxAckRangeGap && delay < maxAckDelay {
			if armDelayedAck != nil {
				armDelayedAck(maxAckDelay - delay)
			}
			return nil
		}
	}

	if err := t.SendAck(ctx.level); err != nil {
		return err
	}
	ctx.sendAck = 0
	return nil
}
