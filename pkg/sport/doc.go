// Package sport implements the sensor side of the Frsky Smart Port
// telemetry protocol.
package sport

// Smart Port is a half-duplex, single-wire, polled protocol. The radio
// receiver owns the bus: it sends a frame head byte followed by the
// physical ID of one sensor, and the sensor carrying that ID answers
// with a single 8-byte packet holding the next entry of its sensor
// table in round-robin order.
//
// This package is protocol logic only: the fold-carry checksum, the
// packet codec with byte stuffing, the sensor table and the per-byte
// poll dispatcher. All bus access goes through the Transport interface;
// package serialport provides the serial port implementation.
//
// Producer: sensor device (this package)
// Consumer: radio receiver
