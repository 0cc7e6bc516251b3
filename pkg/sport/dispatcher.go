package sport

// State describes where the dispatcher is inside a poll frame.
type State int

const (
	// StateSeekFrame discards bytes until a frame head arrives.
	StateSeekFrame State = iota
	// StateAwaitID saw a frame head; the next byte is the polled
	// physical sensor ID.
	StateAwaitID
)

// ParseResult is the outcome of consuming one byte.
type ParseResult struct {
	// State after the byte was consumed.
	State State
	// Polled is true when the byte completed a poll addressed to
	// this dispatcher's sensor ID.
	Polled bool
}

// Dispatcher watches the inbound byte stream for polls addressed to
// one physical sensor ID. It is a pure state machine: Parse consumes
// exactly one byte and reports what the byte meant. Blocking and bus
// I/O live in Device.
type Dispatcher struct {
	// SensorID is the physical ID answered by this device.
	SensorID byte

	state State
}

// State gets the current state.
func (d *Dispatcher) State() State {
	return d.state
}

// Reset returns the dispatcher to seeking a frame head, dropping a
// half-read frame.
func (d *Dispatcher) Reset() ParseResult {
	d.state = StateSeekFrame
	return ParseResult{State: d.state}
}

// Parse consumes one byte from the bus.
//
// A frame head inside StateAwaitID is treated as the ID candidate, not
// as a new head. Physical IDs never equal the head byte, so the
// dispatcher falls back to seeking, which matches how the bus behaves
// on a torn frame.
func (d *Dispatcher) Parse(b byte) ParseResult {
	switch d.state {
	case StateSeekFrame:
		if b == FrameBegin {
			d.state = StateAwaitID
		}
	case StateAwaitID:
		d.state = StateSeekFrame
		return ParseResult{State: d.state, Polled: b == d.SensorID}
	}
	return ParseResult{State: d.state}
}
