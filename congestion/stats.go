package congestion

import "github.com/lucas-clemente/quic-recovery/internal/protocol"

// connectionStats accumulates the congestion controller's loss counters,
// surfaced through MetricsCollector.
type connectionStats struct {
	slowstartPacketsLost protocol.PacketNumber
	slowstartBytesLost   protocol.ByteCount
}
