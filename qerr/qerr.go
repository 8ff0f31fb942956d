// Package qerr defines the error taxonomy the engine surfaces to its
// caller: a typed error code plus a constructor, carrying the
// frame-type and reason context RFC 9000 associates with a
// CONNECTION_CLOSE.
package qerr

import "fmt"

// ErrorCode is a QUIC transport error code (RFC 9000 §20.1).
type ErrorCode uint64

const (
	// NoError indicates graceful termination, never returned by this engine.
	NoError ErrorCode = 0x0
	// FrameEncodingErrorCode is returned when an ACK frame's ranges fail
	// validation.
	FrameEncodingErrorCode ErrorCode = 0x7
	// ProtocolViolationCode is returned when the peer acknowledges a
	// packet number this endpoint never sent.
	ProtocolViolationCode ErrorCode = 0xa
)

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "NO_ERROR"
	case FrameEncodingErrorCode:
		return "FRAME_ENCODING_ERROR"
	case ProtocolViolationCode:
		return "PROTOCOL_VIOLATION"
	default:
		return fmt.Sprintf("ERROR_CODE(0x%x)", uint64(c))
	}
}

// TransportError is the error type the engine returns from its inbound
// API (OnPacketReceived, OnAckFrame, OnTimerFired). A non-nil
// TransportError always means the caller must close the connection.
type TransportError struct {
	ErrorCode ErrorCode
	// FrameType names the frame kind that triggered the error, using the
	// frame's String() form (e.g. "ACK"), empty if not applicable.
	FrameType string
	Reason    string
}

func (e *TransportError) Error() string {
	if e.FrameType != "" {
		return fmt.Sprintf("%s (frame %s): %s", e.ErrorCode, e.FrameType, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Reason)
}

// FrameEncodingError builds the error returned for an ACK-range
// validation failure.
func FrameEncodingError(reason string) *TransportError {
	return &TransportError{ErrorCode: FrameEncodingErrorCode, FrameType: "ACK", Reason: reason}
}

// ProtocolViolation builds the "unknown packet number" error returned
// when an ACK covers a packet number we never sent.
func ProtocolViolation(frameType, reason string) *TransportError {
	return &TransportError{ErrorCode: ProtocolViolationCode, FrameType: frameType, Reason: reason}
}

// IsTransportError reports whether err is a *TransportError, and returns it.
func IsTransportError(err error) (*TransportError, bool) {
	te, ok := err.(*TransportError)
	return te, ok
}
