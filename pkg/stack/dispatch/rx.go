package dispatch

import (
	"net"

	"github.com/lambdafunc/usertcpip/pkg/arp"
	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/icmp"
	"github.com/lambdafunc/usertcpip/pkg/icmp6"
	"github.com/lambdafunc/usertcpip/pkg/ip"
	"github.com/lambdafunc/usertcpip/pkg/ipv6"
	"github.com/lambdafunc/usertcpip/pkg/ipv6/frag"
	"github.com/lambdafunc/usertcpip/pkg/multicast"
	"github.com/lambdafunc/usertcpip/pkg/ndp"
	"github.com/lambdafunc/usertcpip/pkg/tracker"

	"github.com/lambdafunc/usertcpip/pkg/ethernet"
)

// handleARP implements phrx_arp: answer requests for our own address and
// opportunistically learn the sender's mapping either way, the "ARP-table
// update" local-delivery decision named in spec.md §4.6.
func (d *Dispatcher) handleARP(frame *ethernet.Frame, tr tracker.ID) {
	pkt, err := arp.Parse(frame.Payload)
	if err != nil {
		d.metrics.ParseTooShort.Add(1)
		d.log.WithError(err).Debug("dropping malformed ARP packet")
		return
	}

	if pkt.SenderIP != (common.IPv4Address{}) {
		d.arpCache.Add(pkt.SenderIP, pkt.SenderMAC)
	}

	if pkt.Operation == arp.OperationRequest && pkt.TargetIP == d.cfg.LocalIPv4 {
		d.sendARPReply(pkt.SenderMAC, pkt.SenderIP)
	}
}

func (d *Dispatcher) sendARPRequest(target common.IPv4Address) {
	pkt := &arp.Packet{
		HardwareType:   arp.HardwareTypeEthernet,
		ProtocolType:   arp.ProtocolTypeIPv4,
		HardwareLength: 6,
		ProtocolLength: 4,
		Operation:      arp.OperationRequest,
		SenderMAC:      d.cfg.LocalMAC,
		SenderIP:       d.cfg.LocalIPv4,
		TargetMAC:      common.MACAddress{},
		TargetIP:       target,
	}
	broadcast := common.MACAddress{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	d.sendEthernet(broadcast, common.EtherTypeARP, pkt, tracker.Zero)
}

func (d *Dispatcher) sendARPReply(targetMAC common.MACAddress, targetIP common.IPv4Address) {
	pkt := &arp.Packet{
		HardwareType:   arp.HardwareTypeEthernet,
		ProtocolType:   arp.ProtocolTypeIPv4,
		HardwareLength: 6,
		ProtocolLength: 4,
		Operation:      arp.OperationReply,
		SenderMAC:      d.cfg.LocalMAC,
		SenderIP:       d.cfg.LocalIPv4,
		TargetMAC:      targetMAC,
		TargetIP:       targetIP,
	}
	d.sendEthernet(targetMAC, common.EtherTypeARP, pkt, tracker.Zero)
}

// handleIPv4 implements phrx_ip4: accept datagrams addressed to us, the
// IPv4 broadcast address, or any IPv4 multicast destination (see
// isLocalOrJoinedIPv4), drop everything else (no forwarding, per the
// single-default-gateway Non-goal).
func (d *Dispatcher) handleIPv4(frame *ethernet.Frame, tr tracker.ID) {
	pkt, err := ip.Parse(frame.Payload)
	if err != nil {
		d.metrics.ParseTooShort.Add(1)
		d.log.WithError(err).Debug("dropping malformed IPv4 packet")
		return
	}

	if !d.isLocalOrJoinedIPv4(pkt.Destination) {
		d.log.WithField("dst", pkt.Destination.String()).Trace("dropping IPv4 packet not addressed to us")
		return
	}

	switch pkt.Protocol {
	case common.ProtocolICMP:
		d.handleICMPv4(pkt.Source, pkt.Payload, tr)
	case common.ProtocolIGMP:
		d.handleIGMP(pkt.Payload)
	case common.ProtocolUDP, common.ProtocolTCP:
		if d.deliver != nil {
			d.deliver(net.IP(pkt.Source[:]), net.IP(pkt.Destination[:]), uint8(pkt.Protocol), pkt.Payload, tr)
		}
	default:
		d.log.WithField("proto", pkt.Protocol.String()).Trace("dropping unhandled IPv4 protocol")
	}
}

// isLocalOrJoinedIPv4 accepts datagrams addressed to us, the broadcast
// address, or any IPv4 multicast destination. Unlike isLocalOrJoinedIPv6,
// this does not gate multicast on prior Manager membership: IGMP reports
// are themselves sent to the group address being reported (or to
// 224.0.0.22 for IGMPv3), so gating on GetGroup would drop the very
// packets handleIGMP needs to populate the membership table. Downstream,
// a multicast datagram reaches whatever UDP socket is bound to its
// destination port; group membership is not checked there either.
func (d *Dispatcher) isLocalOrJoinedIPv4(dst common.IPv4Address) bool {
	if dst == d.cfg.LocalIPv4 {
		return true
	}
	if dst == (common.IPv4Address{0xff, 0xff, 0xff, 0xff}) {
		return true
	}
	return multicast.IsMulticastIPv4(dst)
}

// handleIGMP updates multicast.Manager's group table from inbound IGMP
// reports and leaves, in place of a kernel IGMP socket join.
func (d *Dispatcher) handleIGMP(payload []byte) {
	if d.mcast == nil {
		return
	}
	msg, err := multicast.ParseIGMP(payload)
	if err != nil {
		d.metrics.ParseTooShort.Add(1)
		return
	}
	switch msg.Type {
	case multicast.IGMPv1MembershipReport, multicast.IGMPv2MembershipReport, multicast.IGMPv3MembershipReport:
		if err := d.mcast.JoinFromIGMPReport(msg.GroupAddress, 0); err != nil {
			d.log.WithError(err).Debug("dropping IGMP membership report")
		}
	case multicast.IGMPv2LeaveGroup:
		d.mcast.LeaveGroup(msg.GroupAddress)
	}
}

func (d *Dispatcher) handleICMPv4(src common.IPv4Address, payload []byte, tr tracker.ID) {
	msg, err := icmp.Parse(payload)
	if err != nil {
		d.metrics.ParseTooShort.Add(1)
		return
	}
	if !msg.IsEchoRequest() {
		return
	}
	reply := icmp.NewEchoReply(msg.ID, msg.Sequence, msg.Data)
	d.sendICMPv4(d.cfg.LocalIPv4, src, reply, tr)
}

// handleIPv6 implements phrx_ip6, routing through the fragmentation engine
// when the datagram carries a Fragment extension header before continuing
// to phrx_{icmp6,udp,tcp}.
func (d *Dispatcher) handleIPv6(frame *ethernet.Frame, tr tracker.ID) {
	pkt, err := ipv6.Parse(frame.Payload)
	if err != nil {
		d.metrics.ParseTooShort.Add(1)
		d.log.WithError(err).Debug("dropping malformed IPv6 packet")
		return
	}

	if !d.isLocalOrJoinedIPv6(pkt.Destination) {
		d.log.WithField("dst", pkt.Destination.String()).Trace("dropping IPv6 packet not addressed to us")
		return
	}

	if pkt.NextHeader == common.ProtocolIPv6Frag {
		fh, err := frag.ParseHeader(pkt.Payload)
		if err != nil {
			d.metrics.ParseTooShort.Add(1)
			return
		}
		full, err := d.frag.Reassemble(pkt.Source, pkt.Destination, fh, tr)
		if err != nil {
			if re, ok := err.(*frag.ReassemblyError); ok && re.Kind == frag.ResourceLimit {
				d.metrics.ReassemblyResource.Add(1)
			} else {
				d.metrics.ReassemblyOverlap.Add(1)
			}
			d.log.WithError(err).Debug("dropping fragment")
			return
		}
		if full == nil {
			return // still buffering
		}
		d.handleIPv6Payload(full.Source, full.Destination, full.NextHeader, full.Payload, tr)
		return
	}

	d.handleIPv6Payload(pkt.Source, pkt.Destination, pkt.NextHeader, pkt.Payload, tr)
}

func (d *Dispatcher) isLocalOrJoinedIPv6(dst common.IPv6Address) bool {
	if dst == d.cfg.LocalIPv6 {
		return true
	}
	if dst.IsMulticast() {
		if d.mcast == nil {
			return true
		}
		_, err := d.mcast.GetGroup(dst)
		return err == nil
	}
	return false
}

func (d *Dispatcher) handleIPv6Payload(src, dst common.IPv6Address, proto common.Protocol, payload []byte, tr tracker.ID) {
	switch proto {
	case common.ProtocolICMPv6:
		d.handleICMPv6(src, dst, payload, tr)
	case common.ProtocolUDP, common.ProtocolTCP:
		if d.deliver != nil {
			d.deliver(net.IP(src[:]), net.IP(dst[:]), uint8(proto), payload, tr)
		}
	default:
		d.log.WithField("proto", proto.String()).Trace("dropping unhandled IPv6 next header")
	}
}

func (d *Dispatcher) handleICMPv6(src, dst common.IPv6Address, payload []byte, tr tracker.ID) {
	if len(payload) < 1 {
		return
	}

	switch icmp6.Type(payload[0]) {
	case ndp.TypeNeighborSolicitation:
		ns, err := ndp.ParseNeighborSolicitation(payload)
		if err != nil {
			d.metrics.ParseTooShort.Add(1)
			return
		}
		if ns.HasSourceLink {
			d.ndpCache.Add(src, ns.SourceLinkAddr)
		}
		if ns.TargetAddress == d.cfg.LocalIPv6 {
			d.sendNeighborAdvertisement(src, tr)
		}
		return
	case ndp.TypeNeighborAdvertisement:
		na, err := ndp.ParseNeighborAdvertisement(payload)
		if err != nil {
			d.metrics.ParseTooShort.Add(1)
			return
		}
		d.ndpCache.Add(na.TargetAddress, na.TargetLinkAddr)
		return
	case icmp6.Type(multicast.MLDReport), icmp6.Type(multicast.MLDv2Report), icmp6.Type(multicast.MLDDone):
		d.handleMLD(payload)
		return
	}

	msg, err := icmp6.Parse(payload)
	if err != nil {
		d.metrics.ParseTooShort.Add(1)
		return
	}
	if msg.IsEchoRequest() {
		reply := icmp6.NewEchoReply(msg.ID, msg.Sequence, msg.Data)
		d.sendICMPv6(d.cfg.LocalIPv6, src, reply, tr)
	}
}

// handleMLD is handleIGMP's IPv6 counterpart: MLD Reports update the local
// group table, MLD Done leaves it, in place of a kernel MLD socket join.
func (d *Dispatcher) handleMLD(payload []byte) {
	if d.mcast == nil {
		return
	}
	msg, err := multicast.ParseMLD(payload)
	if err != nil {
		d.metrics.ParseTooShort.Add(1)
		return
	}
	switch msg.Type {
	case multicast.MLDReport, multicast.MLDv2Report:
		if err := d.mcast.JoinFromMLDReport(msg.MulticastAddress, 0); err != nil {
			d.log.WithError(err).Debug("dropping MLD report")
		}
	case multicast.MLDDone:
		d.mcast.LeaveGroup(msg.MulticastAddress)
	}
}
