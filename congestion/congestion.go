package congestion

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
	"github.com/lucas-clemente/quic-recovery/internal/utils"
)

// State is the single NewReno-style congestion record shared across
// encryption levels: one shared window, slow start below ssthresh,
// additive increase above it, and a persistent-congestion collapse path.
type State struct {
	window        protocol.ByteCount
	ssthresh      protocol.ByteCount // 0 means "unset"
	inFlight      protocol.ByteCount
	recoveryStart time.Time

	tp    protocol.TransportParameters
	clock utils.Clock

	stats     connectionStats
	bandwidth *BandwidthSampler
}

// NewState returns a freshly initialized congestion State with the
// window at its RFC 9002 initial value.
func NewState(tp protocol.TransportParameters, clock utils.Clock) *State {
	return &State{
		window:    tp.InitialWindow(),
		tp:        tp,
		clock:     clock,
		bandwidth: NewBandwidthSampler(),
	}
}

// Window returns the current congestion window in bytes.
func (s *State) Window() protocol.ByteCount { return s.window }

// Ssthresh returns the current slow-start threshold, or 0 if unset.
func (s *State) Ssthresh() protocol.ByteCount { return s.ssthresh }

// InFlight returns the current number of congestion-controlled bytes
// in flight.
func (s *State) InFlight() protocol.ByteCount { return s.inFlight }

// OnPacketSent accounts for a newly sent congestion-controlled frame.
func (s *State) OnPacketSent(length protocol.ByteCount) {
	s.inFlight += length
}

// OnAck accounts for a newly acknowledged frame. plen==0 or a packet
// sent before the last key-phase reset is ignored; the bool result
// reports whether a push event should be posted (the controller was
// previously blocked on the window and now has room).
func (s *State) OnAck(plen protocol.ByteCount, sendTime time.Time, pnum, rstPnum protocol.PacketNumber) (postPush bool) {
	if plen == 0 || pnum < rstPnum {
		return false
	}

	now := s.clock.Now()
	blocked := s.inFlight >= s.window
	s.inFlight -= plen

	if !sendTime.After(s.recoveryStart) {
		// Still within the current recovery epoch: don't grow the window.
	} else if s.ssthresh == 0 || s.window < s.ssthresh {
		// Slow start.
		s.window += plen
	} else {
		// Congestion avoidance.
		s.window += s.tp.MaxUDPPayloadSize * plen / s.window
	}

	// Guard recovery_start against wrap.
	if s.recoveryStart.Sub(now)+2*s.tp.MaxIdleTimeout < 0 {
		s.recoveryStart = now.Add(-2 * s.tp.MaxIdleTimeout)
	}

	return blocked && s.inFlight < s.window
}

// OnLost accounts for a frame declared lost, halving the window and
// opening a new recovery epoch.
func (s *State) OnLost(plen protocol.ByteCount, sendTime time.Time, pnum, rstPnum protocol.PacketNumber) {
	if plen == 0 || pnum < rstPnum {
		return
	}
	s.inFlight -= plen

	if !sendTime.After(s.recoveryStart) {
		return
	}

	wasSlowStart := s.ssthresh == 0 || s.window < s.ssthresh

	now := s.clock.Now()
	s.recoveryStart = now
	s.window = utils.MaxByteCount(s.window/2, 2*s.tp.MaxUDPPayloadSize)
	s.ssthresh = s.window

	if wasSlowStart {
		s.stats.slowstartPacketsLost++
		s.stats.slowstartBytesLost += plen
	}
}

// CollapsePersistentCongestion drops the window to the RFC 9002 minimum
// and opens a fresh recovery epoch. ssthresh is left intact.
func (s *State) CollapsePersistentCongestion() {
	s.recoveryStart = s.clock.Now()
	s.window = 2 * s.tp.MaxUDPPayloadSize
}

// Stats returns the accumulated slow-start loss counters, exposed via
// the prometheus collector.
func (s *State) Stats() (packets protocol.PacketNumber, bytes protocol.ByteCount) {
	return s.stats.slowstartPacketsLost, s.stats.slowstartBytesLost
}

// OnBandwidthSample folds a new delivery-rate sample into the
// connection's bandwidth estimator: ackedBytes were acknowledged after
// sendDelay elapsed since they were sent. Purely a diagnostic signal;
// it never feeds back into window/ssthresh.
func (s *State) OnBandwidthSample(ackedBytes protocol.ByteCount, sendDelay time.Duration) {
	s.bandwidth.OnPacketAcked(ackedBytes, sendDelay)
}

// BandwidthEstimate returns the current delivery-rate estimate in bytes
// per second, exposed via the prometheus collector.
func (s *State) BandwidthEstimate() Bandwidth {
	return s.bandwidth.Estimate()
}
