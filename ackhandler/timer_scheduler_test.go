package ackhandler

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
	"github.com/lucas-clemente/quic-recovery/internal/wire"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Engine timer scheduling", func() {
	var (
		clock     mockClock
		tp        protocol.TransportParameters
		transport *mockTransport
		engine    *Engine
	)

	BeforeEach(func() {
		clock = mockClock(time.Now())
		tp = protocol.DefaultTransportParameters()
		transport = &mockTransport{}
		engine = NewEngine(tp, &clock, transport, nil, nil, nil)
	})

	sendPing := func(level protocol.EncryptionLevel) protocol.PacketNumber {
		pn := engine.NextPacketNumber(level)
		engine.SentPacket(level, pn, &wire.PingFrame{}, tp.MaxUDPPayloadSize, false, clock.Now())
		return pn
	}

	ackPn := func(level protocol.EncryptionLevel, pn protocol.PacketNumber) {
		ack := &wire.AckFrame{Largest: pn, FirstRange: 0}
		Expect(engine.OnAckFrame(level, ack, clock.Now(), true)).To(Succeed())
	}

	Describe("computeTimer", func() {
		It("arms no timer when nothing is outstanding at any level", func() {
			engine.armLossTimer(clock.Now())
			Expect(engine.NextTimer().Kind).To(Equal(TimerNone))
		})

		It("arms a PTO timer when a frame is outstanding but unacknowledged", func() {
			sendPing(protocol.EncryptionApplication)
			engine.armLossTimer(clock.Now())
			Expect(engine.NextTimer().Kind).To(Equal(TimerPTO))
		})

		It("arms the loss-detection timer once the peer has acked past the packet threshold", func() {
			victim := sendPing(protocol.EncryptionApplication)
			for i := 0; i < protocol.PacketThreshold; i++ {
				sendPing(protocol.EncryptionApplication)
			}
			last := engine.contexts[protocol.EncryptionApplication].ledger.Back().Value.Pnum

			ctx := engine.contexts[protocol.EncryptionApplication]
			ctx.largestAck = last
			_ = victim

			engine.armLossTimer(clock.Now())
			timer := engine.NextTimer()
			Expect(timer.Kind).To(Equal(TimerLossDetection))
			Expect(timer.Deadline).To(Equal(clock.Now()))
		})

		It("prefers a loss-detection deadline over a PTO deadline across levels", func() {
			sendPing(protocol.EncryptionInitial)
			sendPing(protocol.EncryptionApplication)

			ctx := engine.contexts[protocol.EncryptionApplication]
			ctx.largestAck = 0 // mark application's lone packet as implicated

			engine.armLossTimer(clock.Now())
			timer := engine.NextTimer()
			// With no RTT sample both the application level's loss deadline
			// and Initial's PTO deadline are now + TimeGranularity (1ms); the
			// loss deadline wins.
			Expect(timer.Kind).To(Equal(TimerLossDetection))
		})
	})

	Describe("ptoDuration", func() {
		It("excludes max_ack_delay before the handshake is confirmed", func() {
			withDelay := engine.rtt.PTO(tp.MaxAckDelay, true)
			withoutDelay := engine.rtt.PTO(tp.MaxAckDelay, false)
			Expect(withDelay).To(BeNumerically(">", withoutDelay))

			engine.SetHandshakeConfirmed(false)
			sendPing(protocol.EncryptionApplication)
			engine.armLossTimer(clock.Now())
			deadline := engine.NextTimer().Deadline
			Expect(deadline).To(Equal(clock.Now().Add(withoutDelay)))
		})

		It("includes max_ack_delay at the application level once the handshake is confirmed", func() {
			engine.SetHandshakeConfirmed(true)
			sendPing(protocol.EncryptionApplication)
			engine.armLossTimer(clock.Now())
			deadline := engine.NextTimer().Deadline

			withDelay := engine.rtt.PTO(tp.MaxAckDelay, true)
			Expect(deadline).To(Equal(clock.Now().Add(withDelay)))
		})

		It("never includes max_ack_delay at non-application levels, even post-handshake", func() {
			engine.SetHandshakeConfirmed(true)
			sendPing(protocol.EncryptionHandshake)
			engine.armLossTimer(clock.Now())
			deadline := engine.NextTimer().Deadline

			withoutDelay := engine.rtt.PTO(tp.MaxAckDelay, false)
			Expect(deadline).To(Equal(clock.Now().Add(withoutDelay)))
		})
	})

	Describe("OnPTOTimeout", func() {
		It("queues a PING probe pair for every level with an unimplicated outstanding frame", func() {
			sendPing(protocol.EncryptionInitial)
			sendPing(protocol.EncryptionApplication)

			clock.Advance(time.Hour) // guarantee every pto deadline has elapsed
			Expect(engine.OnPTOTimeout(clock.Now())).To(Succeed())

			var initialPings, appPings int
			for _, f := range transport.enqueued {
				if _, ok := f.frame.(wire.PingFrame); ok {
					switch f.level {
					case protocol.EncryptionInitial:
						initialPings++
					case protocol.EncryptionApplication:
						appPings++
					}
				}
			}
			Expect(initialPings).To(Equal(2))
			Expect(appPings).To(Equal(2))
		})

		It("increments pto_count on every firing", func() {
			sendPing(protocol.EncryptionApplication)
			clock.Advance(time.Hour)

			Expect(engine.PTOCount()).To(BeZero())
			Expect(engine.OnPTOTimeout(clock.Now())).To(Succeed())
			Expect(engine.PTOCount()).To(Equal(uint32(1)))
			Expect(engine.OnPTOTimeout(clock.Now())).To(Succeed())
			Expect(engine.PTOCount()).To(Equal(uint32(2)))
		})

		It("skips a level whose outstanding tail is already implicated by the largest ack", func() {
			sendPing(protocol.EncryptionApplication)
			pn := sendPing(protocol.EncryptionApplication)
			ackPn(protocol.EncryptionApplication, pn)

			// pn 1 is settled; pn 0 stays in the ledger as its tail, and since
			// it is at or below the largest acked (1), no probe is queued here.
			clock.Advance(time.Hour)
			Expect(engine.OnPTOTimeout(clock.Now())).To(Succeed())

			for _, f := range transport.enqueued {
				Expect(f.level).NotTo(Equal(protocol.EncryptionApplication))
			}
		})

		It("skips a level whose pto deadline has not yet elapsed", func() {
			sendPing(protocol.EncryptionInitial)
			// No time advance: the deadline is strictly in the future.
			Expect(engine.OnPTOTimeout(clock.Now())).To(Succeed())
			Expect(transport.enqueued).To(BeEmpty())
		})

		It("re-arms the combined timer with the doubled backoff after firing", func() {
			sent := clock.Now()
			sendPing(protocol.EncryptionApplication)

			// No time advance, so neither deadline is floored to now: the
			// PTO base (1ms with no RTT sample) is shifted by pto_count 1, then 2.
			Expect(engine.OnPTOTimeout(clock.Now())).To(Succeed())
			first := engine.NextTimer().Deadline

			Expect(engine.OnPTOTimeout(clock.Now())).To(Succeed())
			second := engine.NextTimer().Deadline

			Expect(second.Sub(sent)).To(Equal(2 * first.Sub(sent)))
		})
	})
})
