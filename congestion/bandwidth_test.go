package congestion

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BandwidthSampler", func() {
	It("reports zero with no samples", func() {
		b := NewBandwidthSampler()
		Expect(b.Estimate()).To(BeZero())
	})

	It("ignores non-positive send delays", func() {
		b := NewBandwidthSampler()
		b.OnPacketAcked(1000, 0)
		b.OnPacketAcked(1000, -time.Millisecond)
		Expect(b.Estimate()).To(BeZero())
	})

	It("tracks the rolling maximum sample", func() {
		b := NewBandwidthSampler()
		b.OnPacketAcked(protocol.ByteCount(1000), 100*time.Millisecond)
		first := b.Estimate()
		Expect(first).To(BeNumerically(">", 0))

		// A slower sample doesn't lower the rolling-max estimate.
		b.OnPacketAcked(protocol.ByteCount(1000), 500*time.Millisecond)
		Expect(b.Estimate()).To(Equal(first))

		// A faster sample raises it.
		b.OnPacketAcked(protocol.ByteCount(2000), 10*time.Millisecond)
		Expect(b.Estimate()).To(BeNumerically(">", first))
	})
})
