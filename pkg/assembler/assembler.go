// Package assembler defines the capability interface that every outbound
// protocol header type implements, so that carried-packet composition
// (IPv4 carrying ICMP, IPv6 carrying a fragment header carrying TCP, ...)
// works by interface dispatch instead of a runtime type-switch per layer.
package assembler

// Assembler is implemented by every outbound protocol header/assembler
// type (ARP, IPv4, IPv6, ICMP, ICMPv6, UDP, TCP). A carrier layer composes
// with its carried payload purely through this interface: it asks the
// carried Assembler for its wire length and next-header value to fill its
// own header fields, and for its pseudo-header contribution (for L4
// payloads) before writing its own bytes and then asking the carried
// Assembler to write its own.
type Assembler interface {
	// Length returns the number of bytes AssembleInto will write. It must
	// be computable from fields alone, without writing anything.
	Length() int

	// NextProto returns the IP protocol number or next-header value the
	// carrier should record to identify this payload (e.g. 6 for TCP, 58
	// for ICMPv6). Leaf payloads that carry no inner protocol (Raw) return 0.
	NextProto() uint8

	// PseudoHeaderSum returns this assembler's contribution to the
	// Internet checksum given the addresses of the surrounding IP layer's
	// source/destination. Layers with no checksum of their own (IPv4
	// header, Ethernet) return 0. src and dst are raw 4- or 16-byte
	// address bytes; callers that need the IPv4/IPv6 pseudo-header sum
	// itself use common.IPv4PseudoHeaderSum / common.IPv6PseudoHeaderSum
	// and pass the accumulator down from there.
	PseudoHeaderSum(src, dst []byte) uint32

	// AssembleInto writes the wire representation into buf, which must be
	// at least Length() bytes, and folds pshdrSum into any checksum field
	// this layer owns. It writes nothing beyond Length() bytes and does
	// not retain buf.
	AssembleInto(buf []byte, pshdrSum uint32)
}

// Raw adapts a plain byte slice to the Assembler interface as an opaque
// leaf payload — the carried bytes are copied verbatim with no header of
// their own, no next-protocol value, and no checksum contribution beyond
// the bytes themselves folding into the carrier's pseudo-header sum.
type Raw []byte

// Length returns len(r).
func (r Raw) Length() int { return len(r) }

// NextProto returns 0: a raw leaf carries no inner protocol.
func (r Raw) NextProto() uint8 { return 0 }

// PseudoHeaderSum folds the raw bytes into a one's-complement partial sum
// so a carrying L4 header's checksum covers this payload.
func (r Raw) PseudoHeaderSum(_, _ []byte) uint32 {
	var sum uint32
	n := len(r)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(r[i])<<8 | uint32(r[i+1])
	}
	if n%2 == 1 {
		sum += uint32(r[n-1]) << 8
	}
	return sum
}

// AssembleInto copies the raw bytes into buf.
func (r Raw) AssembleInto(buf []byte, _ uint32) {
	copy(buf, r)
}
