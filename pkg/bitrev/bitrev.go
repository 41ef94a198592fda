// Package bitrev reverses the bit order of bytes.
//
// The console's flash controller shifts bits least-significant first, while
// the host SPI peripheral shifts most-significant first. Every byte crossing
// the link is therefore mirrored on the way out and on the way back in.
package bitrev

// nibbles holds the mirrored value of every 4-bit input.
var nibbles = [16]byte{
	0x0, 0x8, 0x4, 0xc, 0x2, 0xa, 0x6, 0xe,
	0x1, 0x9, 0x5, 0xd, 0x3, 0xb, 0x7, 0xf,
}

// Reverse returns b with its bit order mirrored (0x01 becomes 0x80).
func Reverse(b byte) byte {
	return nibbles[b&0x0f]<<4 | nibbles[b>>4]
}

// ReverseBuffer mirrors every byte of buf in place.
func ReverseBuffer(buf []byte) {
	for i, b := range buf {
		buf[i] = Reverse(b)
	}
}

// ReverseInto writes the mirrored bytes of src into dst. Both slices must have
// the same length.
func ReverseInto(dst, src []byte) {
	if len(dst) != len(src) {
		panic("bitrev: length mismatch")
	}
	for i, b := range src {
		dst[i] = Reverse(b)
	}
}
