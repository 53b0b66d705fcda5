// Package icmp6 implements the Internet Control Message Protocol for
// IPv6 (ICMPv6) as defined in RFC 4443. Unlike ICMPv4, its checksum
// covers an IPv6 pseudo-header, so messages are assembled the same way
// as UDP/TCP: via the pshdr_sum contract passed down from the IPv6 layer.
package icmp6

import (
	"encoding/binary"
	"fmt"

	"github.com/lambdafunc/usertcpip/pkg/common"
)

// Type represents an ICMPv6 message type.
type Type uint8

// Message types used outside Neighbor Discovery (RFC 4861 types live in
// pkg/ndp).
const (
	TypeDestinationUnreachable Type = 1
	TypePacketTooBig           Type = 2
	TypeTimeExceeded           Type = 3
	TypeParameterProblem       Type = 4
	TypeEchoRequest            Type = 128
	TypeEchoReply              Type = 129
)

func (t Type) String() string {
	switch t {
	case TypeDestinationUnreachable:
		return "DestinationUnreachable"
	case TypePacketTooBig:
		return "PacketTooBig"
	case TypeTimeExceeded:
		return "TimeExceeded"
	case TypeParameterProblem:
		return "ParameterProblem"
	case TypeEchoRequest:
		return "EchoRequest"
	case TypeEchoReply:
		return "EchoReply"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Code represents an ICMPv6 message code.
type Code uint8

// Time Exceeded codes.
const (
	CodeHopLimitExceeded       Code = 0
	CodeFragmentReassemblyTime Code = 1
)

// Destination Unreachable codes.
const (
	CodeNoRouteToDestination Code = 0
	CodeAdminProhibited      Code = 1
	CodeAddressUnreachable   Code = 3
	CodePortUnreachable      Code = 4
)

// MinHeaderLength is the fixed ICMPv6 header length before the
// type-specific body (type, code, checksum).
const MinHeaderLength = 4

// Message is a generic ICMPv6 message: fixed 4-byte header, 4 bytes of
// type-specific fields, and a variable body. Echo messages use the
// 4-byte field as identifier+sequence; error messages use it as an
// unused/reserved word followed by as much of the offending packet as
// fits.
type Message struct {
	Type     Type
	Code     Code
	Checksum uint16

	// ID and Sequence are used by Echo Request/Reply; ignored otherwise.
	ID       uint16
	Sequence uint16

	// Data holds the echoed payload (Echo) or the quoted offending
	// packet (error messages).
	Data []byte
}

// Parse parses an ICMPv6 message from raw bytes (the bytes following the
// IPv6 header/extension chain, i.e. the next-header=58 payload).
func Parse(data []byte) (*Message, error) {
	if len(data) < MinHeaderLength+4 {
		return nil, common.NewParseError("icmpv6", common.TooShort, "message truncated")
	}
	m := &Message{
		Type:     Type(data[0]),
		Code:     Code(data[1]),
		Checksum: binary.BigEndian.Uint16(data[2:4]),
		ID:       binary.BigEndian.Uint16(data[4:6]),
		Sequence: binary.BigEndian.Uint16(data[6:8]),
	}
	if len(data) > 8 {
		m.Data = make([]byte, len(data)-8)
		copy(m.Data, data[8:])
	}
	return m, nil
}

// Length implements assembler.Assembler.
func (m *Message) Length() int { return 8 + len(m.Data) }

// NextProto implements assembler.Assembler. ICMPv6 carries an opaque
// payload, not a further dispatched protocol.
func (m *Message) NextProto() uint8 { return 0 }

// PseudoHeaderSum implements assembler.Assembler. Unlike ICMPv4, ICMPv6's
// checksum covers the IPv6 pseudo-header (RFC 4443 §2.3), so this
// delegates to the shared IPv6 pseudo-header contract.
func (m *Message) PseudoHeaderSum(src, dst []byte) uint32 {
	if len(src) != 16 || len(dst) != 16 {
		return 0
	}
	var s, d common.IPv6Address
	copy(s[:], src)
	copy(d[:], dst)
	return common.IPv6PseudoHeaderSum(s, d, common.ProtocolICMPv6, uint32(m.Length()))
}

// AssembleInto implements assembler.Assembler, writing the message with
// the checksum field zeroed, then folding pshdrSum into the final
// checksum.
func (m *Message) AssembleInto(buf []byte, pshdrSum uint32) {
	buf[0] = uint8(m.Type)
	buf[1] = uint8(m.Code)
	buf[2] = 0
	buf[3] = 0
	binary.BigEndian.PutUint16(buf[4:6], m.ID)
	binary.BigEndian.PutUint16(buf[6:8], m.Sequence)
	copy(buf[8:], m.Data)

	checksum := common.ChecksumWithPseudoSum(buf[:m.Length()], pshdrSum)
	m.Checksum = checksum
	binary.BigEndian.PutUint16(buf[2:4], checksum)
}

// NewEchoRequest creates an ICMPv6 Echo Request message (RFC 4443 §4.1).
func NewEchoRequest(id, sequence uint16, data []byte) *Message {
	return &Message{Type: TypeEchoRequest, ID: id, Sequence: sequence, Data: data}
}

// NewEchoReply creates an ICMPv6 Echo Reply message (RFC 4443 §4.2).
func NewEchoReply(id, sequence uint16, data []byte) *Message {
	return &Message{Type: TypeEchoReply, ID: id, Sequence: sequence, Data: data}
}

// NewTimeExceeded creates an ICMPv6 Time Exceeded message (RFC 4443 §3.3),
// quoting as much of the offending datagram as fits. code is normally
// CodeFragmentReassemblyTime when emitted by the reassembly engine's
// timeout sweep.
func NewTimeExceeded(code Code, offending []byte) *Message {
	return &Message{Type: TypeTimeExceeded, Code: code, Data: offending}
}

// IsEchoRequest returns true if this is an Echo Request message.
func (m *Message) IsEchoRequest() bool { return m.Type == TypeEchoRequest }

// IsEchoReply returns true if this is an Echo Reply message.
func (m *Message) IsEchoReply() bool { return m.Type == TypeEchoReply }
