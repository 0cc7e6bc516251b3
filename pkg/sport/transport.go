package sport

// Transport is the bus access a Device runs over: byte writes with a
// drain, a readiness check, byte reads and the half-duplex direction
// toggle. Package serialport implements it over a serial port; tests
// implement it in memory.
type Transport interface {
	// WriteByte queues one byte for transmission.
	WriteByte(b byte) error
	// Flush blocks until every queued byte has left the device.
	Flush() error
	// Available reports whether ReadByte can return without
	// blocking.
	Available() bool
	// ReadByte returns the next inbound byte. Implementations may
	// block; a timeout surfaced as an error must satisfy
	// os.IsTimeout so the device can treat it as an idle tick.
	ReadByte() (byte, error)
	// SetTransmit asserts (true) or releases (false) the transmit
	// direction of the shared line. It must be asserted before the
	// first byte of an answer is written and released only after
	// Flush returns.
	SetTransmit(on bool) error
}
