package udp

import (
	"fmt"
	"net"

	"github.com/lambdafunc/usertcpip/pkg/arp"
	"github.com/lambdafunc/usertcpip/pkg/assembler"
	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/stackmetrics"
	"github.com/lambdafunc/usertcpip/pkg/tracker"
)

// sender is the subset of *dispatch.Dispatcher a Manager needs to push a
// composed datagram onto the wire. Declared locally, rather than importing
// pkg/stack/dispatch, so this package stays usable from dispatch's own
// tests without an import cycle.
type sender interface {
	SendIPv4(dst common.IPv4Address, proto common.Protocol, asm assembler.Assembler, tr tracker.ID) arp.TxOutcome
}

// Manager is the piece Socket and Demultiplexer leave abstract: the I/O
// boundary. Inbound datagrams reach it through Deliver, which a caller
// wires as the dispatcher's DeliveryFunc for proto 17; outbound datagrams
// are materialized by SendTo and pushed through the dispatcher's
// phtx_udp -> phtx_ip4 -> phtx_ether chain instead of a kernel socket.
type Manager struct {
	dispatch sender
	demux    *Demultiplexer
	localIP  common.IPv4Address
	metrics  *stackmetrics.Counters
}

// NewManager constructs a Manager bound to localIP, the address Listen uses
// when registering a newly bound Socket's local endpoint. metrics may be
// nil, in which case no-listener drops simply aren't counted.
func NewManager(d sender, localIP common.IPv4Address, metrics *stackmetrics.Counters) *Manager {
	return &Manager{
		dispatch: d,
		demux:    NewDemultiplexer(),
		localIP:  localIP,
		metrics:  metrics,
	}
}

// Listen creates a socket and binds it to port, assigning an ephemeral port
// when port is 0.
func (m *Manager) Listen(port uint16) (*Socket, uint16, error) {
	sock := NewSocket()
	bound, err := m.demux.Bind(sock, port)
	if err != nil {
		return nil, 0, err
	}
	if err := sock.Bind(Address{IP: m.localIP, Port: bound}); err != nil {
		m.demux.Unbind(bound)
		return nil, 0, err
	}
	return sock, bound, nil
}

// Close unbinds sock from the demultiplexer and closes it.
func (m *Manager) Close(sock *Socket) error {
	if addr, err := sock.LocalAddr(); err == nil {
		m.demux.Unbind(addr.Port)
	}
	return sock.Close()
}

// SendTo materializes data as a UDP datagram from sock's bound port to to
// and queues it through the dispatcher.
func (m *Manager) SendTo(sock *Socket, data []byte, to Address, tr tracker.ID) error {
	pkt, err := sock.SendTo(data, to)
	if err != nil {
		return err
	}
	outcome := m.dispatch.SendIPv4(to.IP, common.ProtocolUDP, Assembler{pkt}, tr)
	if outcome != arp.PassedToTxRing {
		return fmt.Errorf("udp: send to %s failed: %s", to, outcome)
	}
	return nil
}

// Deliver implements the dispatcher's demux contract for inbound UDP: parse
// the datagram and hand it to whatever socket is bound to its destination
// port, dropping it silently (per the Non-goal ruling out ICMP Port
// Unreachable generation) when nothing is listening.
func (m *Manager) Deliver(l3Src, l3Dst net.IP, view []byte, tr tracker.ID) {
	pkt, err := Parse(view)
	if err != nil {
		return
	}
	var src common.IPv4Address
	copy(src[:], l3Src.To4())
	if err := m.demux.Deliver(pkt, Address{IP: src, Port: pkt.SourcePort}); err != nil && m.metrics != nil {
		m.demux.mu.RLock()
		_, bound := m.demux.sockets[pkt.DestinationPort]
		m.demux.mu.RUnlock()
		if !bound {
			m.metrics.UDPNoListener.Add(1)
		}
	}
}
