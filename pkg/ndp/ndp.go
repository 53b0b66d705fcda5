// Package ndp implements IPv6 Neighbor Discovery (RFC 4861) Neighbor
// Solicitation and Advertisement messages, and a neighbor cache with the
// same hit/miss/negative shape as pkg/arp's ARP cache — the IPv6 half of
// the Neighbor Resolution Gate (spec component C8).
package ndp

import (
	"encoding/binary"
	"fmt"

	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/icmp6"
)

// ICMPv6 message types used by Neighbor Discovery (RFC 4861 §4).
const (
	TypeRouterSolicitation    icmp6.Type = 133
	TypeRouterAdvertisement   icmp6.Type = 134
	TypeNeighborSolicitation  icmp6.Type = 135
	TypeNeighborAdvertisement icmp6.Type = 136
	TypeRedirect              icmp6.Type = 137
)

// Option types (RFC 4861 §4.6).
const (
	OptionSourceLinkLayerAddress = 1
	OptionTargetLinkLayerAddress = 2
)

// flagRouter, flagSolicited and flagOverride are the high bits of a Neighbor
// Advertisement's reserved+flags word (RFC 4861 §4.4).
const (
	flagRouter    = 1 << 31
	flagSolicited = 1 << 30
	flagOverride  = 1 << 29
)

// NeighborSolicitation is an ICMPv6 Neighbor Solicitation message
// (type 135): "who has TargetAddress?"
type NeighborSolicitation struct {
	TargetAddress  common.IPv6Address
	SourceLinkAddr common.MACAddress // zero if the Source Link-Layer Address option is absent
	HasSourceLink  bool
}

// Length implements assembler.Assembler.
func (ns *NeighborSolicitation) Length() int {
	n := icmp6.MinHeaderLength + 4 + 16 // type/code/checksum + reserved + target
	if ns.HasSourceLink {
		n += 8 // option type(1)+len(1)+mac(6)
	}
	return n
}

// NextProto implements assembler.Assembler.
func (ns *NeighborSolicitation) NextProto() uint8 { return 0 }

// PseudoHeaderSum implements assembler.Assembler, delegating to the
// IPv6 pseudo-header contract shared with the rest of ICMPv6.
func (ns *NeighborSolicitation) PseudoHeaderSum(src, dst []byte) uint32 {
	if len(src) != 16 || len(dst) != 16 {
		return 0
	}
	var s, d common.IPv6Address
	copy(s[:], src)
	copy(d[:], dst)
	return common.IPv6PseudoHeaderSum(s, d, common.ProtocolICMPv6, uint32(ns.Length()))
}

// AssembleInto implements assembler.Assembler.
func (ns *NeighborSolicitation) AssembleInto(buf []byte, pshdrSum uint32) {
	buf[0] = uint8(TypeNeighborSolicitation)
	buf[1] = 0
	buf[2], buf[3] = 0, 0
	binary.BigEndian.PutUint32(buf[4:8], 0) // reserved
	copy(buf[8:24], ns.TargetAddress[:])
	if ns.HasSourceLink {
		buf[24] = OptionSourceLinkLayerAddress
		buf[25] = 1 // length in units of 8 octets
		copy(buf[26:32], ns.SourceLinkAddr[:])
	}
	checksum := common.ChecksumWithPseudoSum(buf[:ns.Length()], pshdrSum)
	binary.BigEndian.PutUint16(buf[2:4], checksum)
}

// ParseNeighborSolicitation parses an ICMPv6 Neighbor Solicitation body
// (the bytes after the IPv6 header, including the ICMPv6 type/code/
// checksum).
func ParseNeighborSolicitation(data []byte) (*NeighborSolicitation, error) {
	if len(data) < 24 {
		return nil, common.NewParseError("ndp", common.TooShort, "neighbor solicitation truncated")
	}
	if icmp6.Type(data[0]) != TypeNeighborSolicitation {
		return nil, common.NewParseError("ndp", common.BadVersion, "not a neighbor solicitation")
	}
	ns := &NeighborSolicitation{}
	copy(ns.TargetAddress[:], data[8:24])
	if len(data) >= 32 && data[24] == OptionSourceLinkLayerAddress {
		ns.HasSourceLink = true
		copy(ns.SourceLinkAddr[:], data[26:32])
	}
	return ns, nil
}

// NeighborAdvertisement is an ICMPv6 Neighbor Advertisement message
// (type 136): "TargetAddress is at TargetLinkAddr."
type NeighborAdvertisement struct {
	Router         bool
	Solicited      bool
	Override       bool
	TargetAddress  common.IPv6Address
	TargetLinkAddr common.MACAddress
}

// Length implements assembler.Assembler.
func (na *NeighborAdvertisement) Length() int {
	return icmp6.MinHeaderLength + 4 + 16 + 8
}

// NextProto implements assembler.Assembler.
func (na *NeighborAdvertisement) NextProto() uint8 { return 0 }

// PseudoHeaderSum implements assembler.Assembler.
func (na *NeighborAdvertisement) PseudoHeaderSum(src, dst []byte) uint32 {
	if len(src) != 16 || len(dst) != 16 {
		return 0
	}
	var s, d common.IPv6Address
	copy(s[:], src)
	copy(d[:], dst)
	return common.IPv6PseudoHeaderSum(s, d, common.ProtocolICMPv6, uint32(na.Length()))
}

// AssembleInto implements assembler.Assembler.
func (na *NeighborAdvertisement) AssembleInto(buf []byte, pshdrSum uint32) {
	buf[0] = uint8(TypeNeighborAdvertisement)
	buf[1] = 0
	buf[2], buf[3] = 0, 0

	var flags uint32
	if na.Router {
		flags |= flagRouter
	}
	if na.Solicited {
		flags |= flagSolicited
	}
	if na.Override {
		flags |= flagOverride
	}
	binary.BigEndian.PutUint32(buf[4:8], flags)
	copy(buf[8:24], na.TargetAddress[:])
	buf[24] = OptionTargetLinkLayerAddress
	buf[25] = 1
	copy(buf[26:32], na.TargetLinkAddr[:])

	checksum := common.ChecksumWithPseudoSum(buf[:na.Length()], pshdrSum)
	binary.BigEndian.PutUint16(buf[2:4], checksum)
}

// ParseNeighborAdvertisement parses an ICMPv6 Neighbor Advertisement body.
func ParseNeighborAdvertisement(data []byte) (*NeighborAdvertisement, error) {
	if len(data) < 24 {
		return nil, common.NewParseError("ndp", common.TooShort, "neighbor advertisement truncated")
	}
	if icmp6.Type(data[0]) != TypeNeighborAdvertisement {
		return nil, common.NewParseError("ndp", common.BadVersion, "not a neighbor advertisement")
	}
	flags := binary.BigEndian.Uint32(data[4:8])
	na := &NeighborAdvertisement{
		Router:    flags&flagRouter != 0,
		Solicited: flags&flagSolicited != 0,
		Override:  flags&flagOverride != 0,
	}
	copy(na.TargetAddress[:], data[8:24])
	if len(data) >= 32 && data[24] == OptionTargetLinkLayerAddress {
		copy(na.TargetLinkAddr[:], data[26:32])
	}
	return na, nil
}

func (ns *NeighborSolicitation) String() string {
	return fmt.Sprintf("NS{Target=%s}", ns.TargetAddress)
}

func (na *NeighborAdvertisement) String() string {
	return fmt.Sprintf("NA{Target=%s, LinkAddr=%s, Solicited=%v}", na.TargetAddress, na.TargetLinkAddr, na.Solicited)
}
