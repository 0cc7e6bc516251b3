package sport

import "errors"

var (
	// ErrSensorCount indicates Begin was called with a sensor count
	// outside the table capacity.
	ErrSensorCount = errors.New("sensor count out of range")
	// ErrConfigured indicates Begin was called more than once.
	ErrConfigured = errors.New("device already configured")
	// ErrPacketSize indicates a raw packet of the wrong length.
	ErrPacketSize = errors.New("bad packet size")
	// ErrChecksum indicates a packet whose checksum does not verify.
	ErrChecksum = errors.New("bad checksum")
)
