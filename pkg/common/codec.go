package common

import "encoding/binary"

// PutUint16 writes v at buf[0:2] in network byte order.
func PutUint16(buf []byte, v uint16) {
	binary.BigEndian.PutUint16(buf, v)
}

// PutUint32 writes v at buf[0:4] in network byte order.
func PutUint32(buf []byte, v uint32) {
	binary.BigEndian.PutUint32(buf, v)
}

// PutUint24 writes the low 24 bits of v at buf[0:3] in network byte order.
func PutUint24(buf []byte, v uint32) {
	buf[0] = byte(v >> 16)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v)
}

// Uint24 reads a 24-bit big-endian unsigned integer from buf[0:3].
func Uint24(buf []byte) uint32 {
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
}

// PutUint48 writes the low 48 bits of v at buf[0:6] in network byte order.
func PutUint48(buf []byte, v uint64) {
	buf[0] = byte(v >> 40)
	buf[1] = byte(v >> 32)
	buf[2] = byte(v >> 24)
	buf[3] = byte(v >> 16)
	buf[4] = byte(v >> 8)
	buf[5] = byte(v)
}

// Uint48 reads a 48-bit big-endian unsigned integer from buf[0:6].
func Uint48(buf []byte) uint64 {
	return uint64(buf[0])<<40 | uint64(buf[1])<<32 | uint64(buf[2])<<24 |
		uint64(buf[3])<<16 | uint64(buf[4])<<8 | uint64(buf[5])
}

// PutUint128 writes a 128-bit value, given as two big-endian halves, at buf[0:16].
func PutUint128(buf []byte, hi, lo uint64) {
	binary.BigEndian.PutUint64(buf[0:8], hi)
	binary.BigEndian.PutUint64(buf[8:16], lo)
}

// Uint128 reads a 128-bit value from buf[0:16] as two big-endian halves.
func Uint128(buf []byte) (hi, lo uint64) {
	return binary.BigEndian.Uint64(buf[0:8]), binary.BigEndian.Uint64(buf[8:16])
}
