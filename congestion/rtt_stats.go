package congestion

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
	"github.com/lucas-clemente/quic-recovery/internal/utils"
)

// RTTStats tracks latest/min/smoothed RTT and RTT variance, updated from
// ACK samples per RFC 9002 Appendix A. All durations are held as
// time.Duration; the integer right-shift arithmetic RFC 9002 specifies
// is reproduced exactly rather than approximated with floats.
type RTTStats struct {
	latestRTT    time.Duration
	minRTT       time.Duration
	smoothedRTT  time.Duration
	meanDeviation time.Duration
	firstRTT     time.Time

	hasSample bool
}

// NewRTTStats returns a fresh, sample-less RTTStats.
func NewRTTStats() *RTTStats { return &RTTStats{} }

// HasSample reports whether at least one RTT sample has been recorded,
// i.e. whether min_rtt and first_rtt_sample_time are set.
func (r *RTTStats) HasSample() bool { return r.hasSample }

// LatestRTT returns the most recent RTT sample.
func (r *RTTStats) LatestRTT() time.Duration { return r.latestRTT }

// MinRTT returns the minimum RTT observed so far, or 0 if no sample has
// been recorded yet.
func (r *RTTStats) MinRTT() time.Duration { return r.minRTT }

// SmoothedRTT returns the exponentially weighted moving average RTT.
func (r *RTTStats) SmoothedRTT() time.Duration { return r.smoothedRTT }

// MeanDeviation returns the current rttvar.
func (r *RTTStats) MeanDeviation() time.Duration { return r.meanDeviation }

// FirstRTTSampleTime returns the wall-clock time of the first recorded
// sample; lost packets with send times at or before it are still declared
// lost but never counted toward persistent congestion, since no RTT
// estimate existed yet to judge them by.
func (r *RTTStats) FirstRTTSampleTime() time.Time { return r.firstRTT }

// UpdateRTT records a new RTT sample drawn from an acknowledged packet's
// send time. ackDelay should already be clamped to max_ack_delay by the
// caller once the handshake has completed.
func (r *RTTStats) UpdateRTT(now, sendTime time.Time, ackDelay time.Duration) {
	latest := now.Sub(sendTime)
	if latest < 0 {
		latest = 0
	}
	r.latestRTT = latest

	if !r.hasSample {
		r.minRTT = latest
		r.smoothedRTT = latest
		r.meanDeviation = latest / 2
		r.firstRTT = now
		r.hasSample = true
		return
	}

	if latest < r.minRTT {
		r.minRTT = latest
	}

	adjusted := latest
	if r.minRTT+ackDelay < latest {
		adjusted = latest - ackDelay
	}

	diff := r.smoothedRTT - adjusted
	if diff < 0 {
		diff = -diff
	}
	r.meanDeviation += (diff - r.meanDeviation) >> protocol.RTTBetaShift
	r.smoothedRTT += (adjusted - r.smoothedRTT) >> protocol.RTTAlphaShift
}

// LossThreshold is the time-threshold loss delay: 9/8 * max(latest,
// smoothed), floored at TimeGranularity.
func (r *RTTStats) LossThreshold() time.Duration {
	maxRTT := utils.MaxDuration(r.latestRTT, r.smoothedRTT)
	thr := maxRTT * protocol.TimeThresholdNumerator / protocol.TimeThresholdDenominator
	return utils.MaxDuration(thr, protocol.TimeGranularity)
}

// PTO returns the probe timeout base duration (before the pto_count
// left-shift backoff): smoothed_rtt + max(4*rttvar, TimeGranularity),
// plus maxAckDelay only when includeMaxAckDelay is set (application
// level, post-handshake).
func (r *RTTStats) PTO(maxAckDelay time.Duration, includeMaxAckDelay bool) time.Duration {
	pto := r.smoothedRTT + utils.MaxDuration(4*r.meanDeviation, protocol.TimeGranularity)
	if includeMaxAckDelay {
		pto += maxAckDelay
	}
	return pto
}

// PersistentCongestionDuration is the window over which no packet may
// be acknowledged before the send path is declared persistently
// congested: (smoothed_rtt + max(4*rttvar, TimeGranularity) +
// max_ack_delay) * PersistentCongestionThreshold.
func (r *RTTStats) PersistentCongestionDuration(maxAckDelay time.Duration) time.Duration {
	base := r.smoothedRTT + utils.MaxDuration(4*r.meanDeviation, protocol.TimeGranularity) + maxAckDelay
	return base * protocol.PersistentCongestionThreshold
}
