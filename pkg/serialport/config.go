package serialport

import "time"

// Defaults for Config fields left zero.
const (
	// DefaultBaud is the Smart Port line rate.
	DefaultBaud = 57600
	// DefaultReadTimeout paces the reader wakeups and the blocking
	// read granularity.
	DefaultReadTimeout = 100 * time.Millisecond
)

// Config describes a serial device to open. The zero value of every
// field except Device is usable.
type Config struct {
	// Device is the serial device path, e.g. /dev/ttyUSB0.
	Device string
	// Baud is the line rate. Zero means DefaultBaud.
	Baud int
	// ReadTimeout bounds a single blocking read. Zero means
	// DefaultReadTimeout.
	ReadTimeout time.Duration
	// RTSDirection drives the RTS line as the transmit direction
	// toggle, for RS485 style drivers.
	RTSDirection bool
	// DiscardEcho drops input collected while transmitting, for
	// single-wire setups where the device hears its own bytes.
	DiscardEcho bool
}

func (c Config) withDefaults() Config {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}
