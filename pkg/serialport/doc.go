// Package serialport adapts a serial port to the sport.Transport
// interface.
package serialport

// A Port owns one serial device. A background reader moves inbound
// bytes into a buffered channel so the polling loop can check
// readiness without blocking, the way the protocol's busy waits need.
// Writes are buffered in memory and hit the wire in one burst on
// Flush, followed by a drain, so the transmit direction can be
// released at a safe time.
//
// The optional RTS mode drives the direction toggle of an external
// RS485 style driver. The optional echo discard clears input that
// accumulated while transmitting, for single-wire setups where the
// device hears itself.
