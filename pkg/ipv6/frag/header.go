// Package frag implements the IPv6 Fragment extension header (RFC 2460
// §4.5): splitting an oversized outbound datagram into data_mtu-sized
// fragments, and reassembling inbound fragments back into a single
// datagram with RFC 5722 overlap-poisoning semantics.
package frag

import (
	"encoding/binary"

	"github.com/lambdafunc/usertcpip/pkg/common"
)

// HeaderLength is the fixed size of the IPv6 Fragment extension header.
const HeaderLength = 8

// Header is the IPv6 Fragment extension header carried ahead of a
// fragment's data slice.
type Header struct {
	NextHeader     common.Protocol // upper-layer protocol of the original, unfragmented payload
	FragmentOffset uint16          // in 8-byte units, per RFC 2460
	MoreFragments  bool
	Identification uint32 // constant across all fragments of one datagram

	Data []byte // this fragment's slice of the original payload
}

// ParseHeader parses a Fragment extension header and returns it along
// with the fragment's payload slice (everything after the 8-byte header).
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderLength {
		return nil, common.NewParseError("ipv6-frag", common.TooShort, "fragment header truncated")
	}
	offsetFlags := binary.BigEndian.Uint16(data[2:4])
	h := &Header{
		NextHeader:     common.Protocol(data[0]),
		FragmentOffset: offsetFlags >> 3,
		MoreFragments:  offsetFlags&0x1 != 0,
		Identification: binary.BigEndian.Uint32(data[4:8]),
	}
	h.Data = data[HeaderLength:]
	return h, nil
}

// ByteOffset returns the fragment's offset into the original payload in
// bytes (FragmentOffset is carried on the wire in 8-byte units).
func (h *Header) ByteOffset() uint32 { return uint32(h.FragmentOffset) * 8 }

// Length implements assembler.Assembler.
func (h *Header) Length() int { return HeaderLength + len(h.Data) }

// NextProto implements assembler.Assembler, returning the IPv6 Fragment
// extension header's own next-header code (44) so a carrying IPv6 base
// header points at this extension rather than the original protocol.
func (h *Header) NextProto() uint8 { return uint8(common.ProtocolIPv6Frag) }

// PseudoHeaderSum implements assembler.Assembler. The fragment header
// itself carries no checksum.
func (h *Header) PseudoHeaderSum(_, _ []byte) uint32 { return 0 }

// AssembleInto implements assembler.Assembler, writing the fragment
// header followed by its data slice into buf.
func (h *Header) AssembleInto(buf []byte, _ uint32) {
	buf[0] = uint8(h.NextHeader)
	buf[1] = 0
	offsetFlags := (h.FragmentOffset << 3)
	if h.MoreFragments {
		offsetFlags |= 0x1
	}
	binary.BigEndian.PutUint16(buf[2:4], offsetFlags)
	binary.BigEndian.PutUint32(buf[4:8], h.Identification)
	copy(buf[HeaderLength:], h.Data)
}
