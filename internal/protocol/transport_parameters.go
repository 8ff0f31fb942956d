package protocol

import "time"

// TimeGranularity is kGranularity, RFC 9002 6.1.2: the minimum loss
// delay and PTO duration the engine will ever compute.
const TimeGranularity = 1 * time.Millisecond

// TransportParameters centralizes the negotiated and locally configured
// values the engine needs, keeping connection parameters in one place
// rather than scattering magic numbers through the loss recovery code.
type TransportParameters struct {
	// MaxUDPPayloadSize bounds datagram size; the initial and minimum
	// congestion window are both 2x this value.
	MaxUDPPayloadSize ByteCount
	// MaxAckDelay is the peer-asserted bound on how long a received
	// packet may go unacknowledged, used both to clamp RTT samples and
	// to size the application-level ACK coalescing window.
	MaxAckDelay time.Duration
	// AckDelayExponent scales the wire-encoded ACK delay back to
	// microseconds.
	AckDelayExponent uint8
	// MaxIdleTimeout is used only to guard recovery_start against wrap.
	MaxIdleTimeout time.Duration
}

// InitialWindow returns the congestion window's starting value and its
// floor, both equal to 2x the max datagram size.
func (tp TransportParameters) InitialWindow() ByteCount {
	return 2 * tp.MaxUDPPayloadSize
}

// DefaultTransportParameters returns reasonable values for a freshly
// constructed connection, used by tests and by callers that haven't yet
// completed transport parameter negotiation.
func DefaultTransportParameters() TransportParameters {
	return TransportParameters{
		MaxUDPPayloadSize: 1252,
		MaxAckDelay:       25 * time.Millisecond,
		AckDelayExponent:  3,
		MaxIdleTimeout:    30 * time.Second,
	}
}
