package ackhandler

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
	"github.com/lucas-clemente/quic-recovery/internal/wire"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Engine.resendFrames", func() {
	var (
		clock       mockClock
		tp          protocol.TransportParameters
		transport   *mockTransport
		flowControl *mockFlowControl
		engine      *Engine
	)

	BeforeEach(func() {
		clock = mockClock(time.Now())
		tp = protocol.DefaultTransportParameters()
		transport = &mockTransport{}
		flowControl = newMockFlowControl()
		engine = NewEngine(tp, &clock, transport, nil, nil, flowControl)
	})

	// send appends frame to the application-level ledger under a fresh
	// packet number; each test then calls resendFrames itself, mirroring
	// what DetectLost does once a frame record is declared lost.
	send := func(frame wire.Frame) {
		pn := engine.NextPacketNumber(protocol.EncryptionApplication)
		engine.SentPacket(protocol.EncryptionApplication, pn, frame, tp.MaxUDPPayloadSize, false, clock.Now())
	}

	It("does nothing when the ledger is empty", func() {
		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)
		Expect(transport.enqueued).To(BeEmpty())
	})

	It("discards a lost ACK frame but forces a re-ack at the application level", func() {
		send(&wire.AckFrame{Largest: 5})
		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		Expect(transport.enqueued).To(BeEmpty())
		Expect(c.sendAck).To(Equal(protocol.MaxAckRangeGap))
		Expect(c.ledger.Len()).To(BeZero())
	})

	It("discards PING, PATH_CHALLENGE, PATH_RESPONSE, and CONNECTION_CLOSE outright", func() {
		send(&wire.PingFrame{})
		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)
		Expect(transport.enqueued).To(BeEmpty())

		send(&wire.PathChallengeFrame{})
		engine.resendFrames(c)
		Expect(transport.enqueued).To(BeEmpty())

		send(&wire.PathResponseFrame{})
		engine.resendFrames(c)
		Expect(transport.enqueued).To(BeEmpty())

		send(&wire.ConnectionCloseFrame{ErrorCode: 1})
		engine.resendFrames(c)
		Expect(transport.enqueued).To(BeEmpty())
	})

	It("refreshes MAX_DATA to the current limit before requeuing", func() {
		flowControl.maxData = 9000
		send(&wire.MaxDataFrame{MaximumData: 100})

		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		Expect(transport.enqueued).To(HaveLen(1))
		refreshed := transport.enqueued[0].frame.(*wire.MaxDataFrame)
		Expect(refreshed.MaximumData).To(Equal(protocol.ByteCount(9000)))
	})

	It("refreshes MAX_STREAMS to the current limit before requeuing", func() {
		flowControl.maxStreams = 42
		send(&wire.MaxStreamsFrame{Direction: protocol.StreamDirectionBidi, MaximumCount: 1})

		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		Expect(transport.enqueued).To(HaveLen(1))
		refreshed := transport.enqueued[0].frame.(*wire.MaxStreamsFrame)
		Expect(refreshed.MaximumCount).To(Equal(int64(42)))
	})

	It("refreshes MAX_STREAM_DATA and requeues when the stream is still open", func() {
		flowControl.streamLimits[7] = 5000
		send(&wire.MaxStreamDataFrame{StreamID: 7, MaximumData: 10})

		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		Expect(transport.enqueued).To(HaveLen(1))
		refreshed := transport.enqueued[0].frame.(*wire.MaxStreamDataFrame)
		Expect(refreshed.MaximumData).To(Equal(protocol.ByteCount(5000)))
	})

	It("drops MAX_STREAM_DATA silently when the stream is gone", func() {
		send(&wire.MaxStreamDataFrame{StreamID: 99, MaximumData: 10})

		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		Expect(transport.enqueued).To(BeEmpty())
	})

	It("requeues a STREAM frame unchanged when the stream is still open", func() {
		frame := &wire.StreamFrame{StreamID: 3, Data: []byte("hello")}
		send(frame)

		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		Expect(transport.enqueued).To(HaveLen(1))
		Expect(transport.enqueued[0].frame).To(BeIdenticalTo(frame))
	})

	It("drops a STREAM frame for a stream whose reset has already been sent", func() {
		flowControl.streamStates[3] = StreamSendResetSent
		send(&wire.StreamFrame{StreamID: 3, Data: []byte("hello")})

		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		Expect(transport.enqueued).To(BeEmpty())
	})

	It("drops a STREAM frame for a stream whose reset has already been acknowledged", func() {
		flowControl.streamStates[3] = StreamSendResetRecvd
		send(&wire.StreamFrame{StreamID: 3, Data: []byte("hello")})

		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		Expect(transport.enqueued).To(BeEmpty())
	})

	It("always requeues a RESET_STREAM frame", func() {
		frame := &wire.ResetStreamFrame{StreamID: 3}
		send(frame)

		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		Expect(transport.enqueued).To(HaveLen(1))
		Expect(transport.enqueued[0].frame).To(BeIdenticalTo(frame))
	})

	It("requests a send at the context's level after the walk", func() {
		send(&wire.PingFrame{})

		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		Expect(transport.sendRequests).To(ContainElement(protocol.EncryptionApplication))
	})

	It("does not request a send once the engine is closing", func() {
		send(&wire.PingFrame{})
		engine.Close()

		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		Expect(transport.sendRequests).To(BeEmpty())
	})

	It("calls the congestion controller's OnLost exactly once per distinct packet number", func() {
		send(&wire.PingFrame{})
		before, beforeBytes := engine.Congestion().Stats()

		c := engine.contexts[protocol.EncryptionApplication]
		engine.resendFrames(c)

		after, afterBytes := engine.Congestion().Stats()
		Expect(after).To(Equal(before + 1))
		Expect(afterBytes).To(Equal(beforeBytes + tp.MaxUDPPayloadSize))
	})

	It("pops every frame record sharing the ledger's oldest packet number in one call", func() {
		pn := engine.NextPacketNumber(protocol.EncryptionApplication)
		engine.SentPacket(protocol.EncryptionApplication, pn, &wire.PingFrame{}, tp.MaxUDPPayloadSize, false, clock.Now())
		engine.SentPacket(protocol.EncryptionApplication, pn, &wire.ResetStreamFrame{StreamID: 1}, 0, true, clock.Now())

		// A second, later packet number stays untouched.
		send(&wire.PingFrame{})

		c := engine.contexts[protocol.EncryptionApplication]
		Expect(c.ledger.Len()).To(Equal(3))

		engine.resendFrames(c)

		Expect(c.ledger.Len()).To(Equal(1))
		Expect(transport.enqueued).To(HaveLen(1)) // only the RESET_STREAM requeues
	})
})
