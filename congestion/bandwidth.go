package congestion

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
)

// Bandwidth is a delivery-rate value. BandwidthSampler keeps its
// samples in bits per second; Estimate reports bytes per second.
type Bandwidth float64

// BytesPerSecond converts a byte count over a duration into a Bandwidth.
const BytesPerSecond = 8

// BandwidthSampler estimates delivery bandwidth as the rolling maximum
// of per-ACK (bytes acked / time since send) samples. This is a
// read-only diagnostic signal surfaced through MetricsCollector; it
// never feeds back into the congestion window, which is governed
// purely by window/ssthresh/in_flight.
type BandwidthSampler struct {
	estimate        Bandwidth
	compareWindow   [10]Bandwidth
	roundRobinIndex uint8
}

// NewBandwidthSampler returns a sampler with no history.
func NewBandwidthSampler() *BandwidthSampler {
	return &BandwidthSampler{}
}

// Estimate returns the current bandwidth estimate in bytes per second.
func (b *BandwidthSampler) Estimate() Bandwidth {
	return b.estimate / BytesPerSecond
}

// OnPacketAcked records a new sample: ackedBytes were acknowledged after
// sendDelay (the time between send and the ACK that settled them).
func (b *BandwidthSampler) OnPacketAcked(ackedBytes protocol.ByteCount, sendDelay time.Duration) {
	if sendDelay <= 0 {
		return
	}

	sample := Bandwidth(ackedBytes) * Bandwidth(time.Second) / Bandwidth(sendDelay) * BytesPerSecond

	size := uint8(len(b.compareWindow))
	b.compareWindow[b.roundRobinIndex%size] = sample
	b.roundRobinIndex = (b.roundRobinIndex + 1) % size

	var max Bandwidth
	for _, s := range b.compareWindow {
		if s > max {
			max = s
		}
	}
	b.estimate = max
}
