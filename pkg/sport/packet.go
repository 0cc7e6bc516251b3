package sport

// Protocol bytes, fixed by the Smart Port framing.
const (
	// FrameBegin marks the start of a poll frame on the bus.
	FrameBegin byte = 0x7E
	// StuffMarker escapes a reserved byte inside packet payloads.
	StuffMarker byte = 0x7D
	// StuffMask is XORed with an escaped byte to restore it.
	StuffMask byte = 0x20

	// DataFrame is the frame type of an ordinary telemetry answer.
	DataFrame byte = 0x10

	// PacketSize is the unstuffed wire size of every packet.
	PacketSize = 8
)

// Packet is one Smart Port telemetry packet: a frame type, a logical
// sensor ID and a 32-bit value. Both multi-byte fields travel in
// little-endian order.
type Packet struct {
	Type  byte
	ID    uint16
	Value int32
}

// Bytes returns the 8 raw (unstuffed) wire bytes including the
// checksum.
func (p Packet) Bytes() []byte {
	b := make([]byte, PacketSize)
	b[0] = p.Type
	b[1] = byte(p.ID)
	b[2] = byte(p.ID >> 8)
	v := uint32(p.Value)
	b[3] = byte(v)
	b[4] = byte(v >> 8)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 24)
	// The checksum byte itself counts as zero, so the first 7 bytes
	// suffice.
	b[7] = Checksum(b[:7])
	return b
}

// AppendStuffed appends the packet's stuffed wire bytes to dst and
// returns the extended slice. Answers carry no frame head of their
// own; the head on the bus belongs to the poll.
func (p Packet) AppendStuffed(dst []byte) []byte {
	for _, b := range p.Bytes() {
		dst = AppendStuffedByte(dst, b)
	}
	return dst
}

// AppendStuffedByte appends b to dst, escaping the two reserved
// values. Stuffing keeps FrameBegin out of payloads, so a device
// hearing its own transmission can never mistake it for a poll.
func AppendStuffedByte(dst []byte, b byte) []byte {
	if b == FrameBegin || b == StuffMarker {
		return append(dst, StuffMarker, b^StuffMask)
	}
	return append(dst, b)
}

// ParsePacket decodes 8 raw packet bytes and verifies the checksum.
func ParsePacket(raw []byte) (Packet, error) {
	if len(raw) != PacketSize {
		return Packet{}, ErrPacketSize
	}
	if Checksum(raw) != 0 {
		return Packet{}, ErrChecksum
	}
	return Packet{
		Type:  raw[0],
		ID:    uint16(raw[1]) | uint16(raw[2])<<8,
		Value: int32(uint32(raw[3]) | uint32(raw[4])<<8 | uint32(raw[5])<<16 | uint32(raw[6])<<24),
	}, nil
}

// Unstuffer undoes byte stuffing one byte at a time.
type Unstuffer struct {
	esc bool
}

// Feed consumes one wire byte. ok is false when b opened an escape and
// produced no output byte.
func (u *Unstuffer) Feed(b byte) (out byte, ok bool) {
	if u.esc {
		u.esc = false
		return b ^ StuffMask, true
	}
	if b == StuffMarker {
		u.esc = true
		return 0, false
	}
	return b, true
}

// Reset drops a pending escape.
func (u *Unstuffer) Reset() {
	u.esc = false
}
