package dispatch

import (
	"github.com/lambdafunc/usertcpip/pkg/arp"
	"github.com/lambdafunc/usertcpip/pkg/assembler"
	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/ethernet"
	"github.com/lambdafunc/usertcpip/pkg/icmp"
	"github.com/lambdafunc/usertcpip/pkg/icmp6"
	"github.com/lambdafunc/usertcpip/pkg/ip"
	"github.com/lambdafunc/usertcpip/pkg/ipv6"
	"github.com/lambdafunc/usertcpip/pkg/ndp"
	"github.com/lambdafunc/usertcpip/pkg/stack"
	"github.com/lambdafunc/usertcpip/pkg/tracker"
)

// LinkMTU is the default Ethernet payload MTU used to decide whether an
// outbound IPv6 datagram needs fragmenting.
const LinkMTU = 1500

// materialize runs an assembler's own checksum/length contract and
// returns the finished wire bytes, folding pshdrSum when the assembler has
// a checksum that covers a pseudo-header (UDP, TCP, ICMPv6); asm itself
// computed that value via PseudoHeaderSum.
func materialize(asm assembler.Assembler, srcIP, dstIP []byte) []byte {
	pshdr := asm.PseudoHeaderSum(srcIP, dstIP)
	buf := make([]byte, asm.Length())
	asm.AssembleInto(buf, pshdr)
	return buf
}

// sendEthernet wraps payload in an Ethernet II frame addressed to dstMAC
// and hands it to the TX ring.
func (d *Dispatcher) sendEthernet(dstMAC common.MACAddress, etherType common.EtherType, payload assembler.Assembler, tr tracker.ID) {
	frame := ethernet.NewFrameFromAssembler(dstMAC, d.cfg.LocalMAC, etherType, payload)
	d.tx.Enqueue(stack.NewTxFrame(frame.Serialize(), tr))
}

// SendIPv4 composes proto's payload, resolves dst's next-hop L2 address
// via the ARP gate, and queues the resulting frame, per the dispatcher's
// outbound chain phtx_{icmp,udp,tcp} → phtx_ip4 → phtx_ether.
func (d *Dispatcher) SendIPv4(dst common.IPv4Address, proto common.Protocol, asm assembler.Assembler, tr tracker.ID) arp.TxOutcome {
	payload := materialize(asm, d.cfg.LocalIPv4[:], dst[:])
	pkt := ip.NewPacket(d.cfg.LocalIPv4, dst, proto, payload)

	mac, outcome := d.arpGate.Resolve(dst)
	if outcome != arp.PassedToTxRing {
		d.recordTxOutcome(outcome)
		return outcome
	}

	d.sendEthernet(mac, common.EtherTypeIPv4, pkt, tr)
	return arp.PassedToTxRing
}

func (d *Dispatcher) sendICMPv4(src, dst common.IPv4Address, msg *icmp.Message, tr tracker.ID) arp.TxOutcome {
	return d.SendIPv4(dst, common.ProtocolICMP, msg, tr)
}

// SendIPv6 composes proto's payload and queues it to dst, splitting into
// fragments via the IPv6 fragmentation engine first if the assembled
// datagram would exceed LinkMTU. Neighbor resolution for IPv6 is left to
// a future pkg/ndp-backed gate; until then this assumes the destination's
// link-layer address is already known via the neighbor cache populated by
// inbound NS/NA traffic (sendNeighborSolicitation triggers discovery on a
// miss).
func (d *Dispatcher) SendIPv6(dst common.IPv6Address, proto common.Protocol, asm assembler.Assembler, tr tracker.ID) arp.TxOutcome {
	payload := materialize(asm, d.cfg.LocalIPv6[:], dst[:])

	if ipv6.HeaderLength+len(payload) <= LinkMTU {
		pkt := ipv6.NewPacket(d.cfg.LocalIPv6, dst, proto, payload)
		return d.sendIPv6Packet(dst, pkt, tr)
	}

	fragments := d.frag.Split(d.cfg.LocalIPv6, dst, proto, assembler.Raw(payload), LinkMTU)
	outcomes := make([]arp.TxOutcome, 0, len(fragments))
	for _, f := range fragments {
		outcomes = append(outcomes, d.sendIPv6Packet(dst, f, tr))
	}
	return arp.WorstOf(outcomes...)
}

func (d *Dispatcher) sendIPv6Packet(dst common.IPv6Address, pkt *ipv6.Packet, tr tracker.ID) arp.TxOutcome {
	if dst.IsMulticast() {
		d.sendEthernet(ipv6MulticastMAC(dst), common.EtherTypeIPv6, pkt, tr)
		return arp.PassedToTxRing
	}

	mac, ok := d.ndpCache.Get(dst)
	if !ok {
		if !d.ndpCache.IsNegativelyCached(dst) {
			d.sendNeighborSolicitation(dst)
		}
		d.recordTxOutcome(arp.DroppedEtherCacheFail)
		return arp.DroppedEtherCacheFail
	}
	d.sendEthernet(mac, common.EtherTypeIPv6, pkt, tr)
	return arp.PassedToTxRing
}

// ipv6MulticastMAC derives the Ethernet multicast address for an IPv6
// multicast destination per RFC 2464 §7: 33:33 followed by the address's
// low 32 bits, requiring no neighbor resolution at all.
func ipv6MulticastMAC(addr common.IPv6Address) common.MACAddress {
	return common.MACAddress{0x33, 0x33, addr[12], addr[13], addr[14], addr[15]}
}

func (d *Dispatcher) sendICMPv6(src, dst common.IPv6Address, msg assembler.Assembler, tr tracker.ID) arp.TxOutcome {
	return d.SendIPv6(dst, common.ProtocolICMPv6, msg, tr)
}

func (d *Dispatcher) sendNeighborSolicitation(target common.IPv6Address) {
	ns := &ndp.NeighborSolicitation{
		TargetAddress:  target,
		SourceLinkAddr: d.cfg.LocalMAC,
		HasSourceLink:  true,
	}
	solicited := target.SolicitedNodeMulticast()
	d.SendIPv6(solicited, common.ProtocolICMPv6, ns, tracker.Zero)
}

func (d *Dispatcher) sendNeighborAdvertisement(dst common.IPv6Address, tr tracker.ID) {
	na := &ndp.NeighborAdvertisement{
		Solicited:      true,
		Override:       true,
		TargetAddress:  d.cfg.LocalIPv6,
		TargetLinkAddr: d.cfg.LocalMAC,
	}
	d.SendIPv6(dst, common.ProtocolICMPv6, na, tr)
}

func (d *Dispatcher) recordTxOutcome(o arp.TxOutcome) {
	switch o {
	case arp.DroppedEtherNoGateway:
		d.metrics.TxNoGateway.Add(1)
	case arp.DroppedEtherResolutionFail, arp.DroppedEtherCacheFail, arp.DroppedEtherGatewayCacheFail:
		d.metrics.TxNeighborUnresolved.Add(1)
	}
	d.log.WithField("outcome", o.String()).Trace("tx outcome")
}
