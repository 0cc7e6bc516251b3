package sport

// Checksum computes the Smart Port checksum over p.
//
// The accumulator is 16 bits wide. After each byte the carry is folded
// back into the low 8 bits twice, because the first fold can itself
// carry into bit 8. The result is the complement of the low 8 bits.
// A well-formed 8-byte packet sums to 0xFF before the complement, so
// feeding all 8 bytes of one yields 0.
func Checksum(p []byte) byte {
	var crc uint16
	for _, b := range p {
		crc += uint16(b) // up to 0x1FF
		crc += crc >> 8  // up to 0x100
		crc &= 0x00ff
		crc += crc >> 8
		crc &= 0x00ff
	}
	return ^byte(crc)
}

// Verify reports whether raw is a full packet with a correct checksum
// byte.
func Verify(raw []byte) bool {
	return len(raw) == PacketSize && Checksum(raw) == 0
}
