package utils

import "github.com/lucas-clemente/quic-recovery/internal/protocol"

// MaxByteCount returns the larger of two byte counts.
func MaxByteCount(a, b protocol.ByteCount) protocol.ByteCount {
	if a > b {
		return a
	}
	return b
}

// MinByteCount returns the smaller of two byte counts.
func MinByteCount(a, b protocol.ByteCount) protocol.ByteCount {
	if a < b {
		return a
	}
	return b
}

// MaxPacketNumber returns the larger of two packet numbers.
func MaxPacketNumber(a, b protocol.PacketNumber) protocol.PacketNumber {
	if a > b {
		return a
	}
	return b
}
