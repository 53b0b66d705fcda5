package tcp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lambdafunc/usertcpip/pkg/arp"
	"github.com/lambdafunc/usertcpip/pkg/assembler"
	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/stackmetrics"
	"github.com/lambdafunc/usertcpip/pkg/tracker"
)

// sender is the subset of *dispatch.Dispatcher a Manager needs to push a
// composed segment onto the wire. Declared locally, rather than importing
// pkg/stack/dispatch, so this package stays free of a dependency on the
// dispatcher's own test helpers.
type sender interface {
	SendIPv4(dst common.IPv4Address, proto common.Protocol, asm assembler.Assembler, tr tracker.ID) arp.TxOutcome
}

// Manager is the I/O boundary Socket and Connection leave abstract via
// sendFunc/HandleIncomingSegment: it demultiplexes inbound segments by
// local port to a bound Socket, and gives every Socket it creates a
// sendFunc that pushes segments through the dispatcher's
// phtx_tcp -> phtx_ip4 -> phtx_ether chain instead of a kernel socket.
type Manager struct {
	dispatch sender
	localIP  common.IPv4Address
	metrics  *stackmetrics.Counters

	mu      sync.RWMutex
	byPort  map[uint16]*Socket
	nextEph uint16
}

const (
	ephemeralPortStart = 49152
	ephemeralPortEnd   = 65535
)

// NewManager constructs a Manager bound to localIP.
func NewManager(d sender, localIP common.IPv4Address, metrics *stackmetrics.Counters) *Manager {
	return &Manager{
		dispatch: d,
		localIP:  localIP,
		metrics:  metrics,
		byPort:   make(map[uint16]*Socket),
		nextEph:  ephemeralPortStart,
	}
}

func (m *Manager) send(seg *Segment, src, dst common.IPv4Address, tr tracker.ID) error {
	outcome := m.dispatch.SendIPv4(dst, common.ProtocolTCP, seg, tr)
	if outcome != arp.PassedToTxRing {
		return fmt.Errorf("tcp: send to %s failed: %s", dst, outcome)
	}
	return nil
}

// Listen creates a listening socket bound to port, assigning an ephemeral
// port when port is 0, and registers it for inbound demux.
func (m *Manager) Listen(port uint16, backlog int) (*Socket, uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if port == 0 {
		p, err := m.allocateEphemeralPort()
		if err != nil {
			return nil, 0, err
		}
		port = p
	} else if _, exists := m.byPort[port]; exists {
		return nil, 0, fmt.Errorf("tcp: port %d already in use", port)
	}

	sock := NewSocket(m.localIP, port)
	sock.SetSendFunc(m.send)
	sock.SetMetrics(m.metrics)
	if err := sock.Listen(backlog); err != nil {
		return nil, 0, err
	}

	m.byPort[port] = sock
	return sock, port, nil
}

// Dial creates a socket, connects it to remoteAddr:remotePort, and
// registers it under its own ephemeral local port.
func (m *Manager) Dial(remoteAddr common.IPv4Address, remotePort uint16) (*Socket, error) {
	m.mu.Lock()
	port, err := m.allocateEphemeralPort()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	sock := NewSocket(m.localIP, port)
	sock.SetSendFunc(m.send)
	sock.SetMetrics(m.metrics)
	m.byPort[port] = sock
	m.mu.Unlock()

	if err := sock.Connect(remoteAddr, remotePort); err != nil {
		m.Close(sock)
		return nil, err
	}
	return sock, nil
}

// Close unregisters sock and closes it.
func (m *Manager) Close(sock *Socket) error {
	m.mu.Lock()
	delete(m.byPort, sock.GetLocalPort())
	m.mu.Unlock()
	return sock.Close()
}

func (m *Manager) allocateEphemeralPort() (uint16, error) {
	start := m.nextEph
	for {
		if _, exists := m.byPort[m.nextEph]; !exists {
			port := m.nextEph
			m.advanceEphemeral()
			return port, nil
		}
		m.advanceEphemeral()
		if m.nextEph == start {
			return 0, fmt.Errorf("tcp: no ephemeral ports available")
		}
	}
}

func (m *Manager) advanceEphemeral() {
	m.nextEph++
	if m.nextEph > ephemeralPortEnd {
		m.nextEph = ephemeralPortStart
	}
}

// Deliver implements the dispatcher's demux contract for inbound TCP:
// parse the segment and hand it to whatever socket is bound to its
// destination port, sending a RST through that reply path only when a
// socket exists to own the reply; an unbound port is silently dropped.
func (m *Manager) Deliver(l3Src, l3Dst net.IP, view []byte, tr tracker.ID) {
	seg, err := Parse(view)
	if err != nil {
		return
	}

	m.mu.RLock()
	sock, ok := m.byPort[seg.DestinationPort]
	m.mu.RUnlock()
	if !ok {
		return
	}

	var src, dst common.IPv4Address
	copy(src[:], l3Src.To4())
	copy(dst[:], l3Dst.To4())
	sock.HandleIncomingSegment(seg, src, dst, tr)
}

// Sweep drives RTO-based retransmission for every connection this Manager
// owns. It is invoked by the same dispatcher/timer goroutine that calls
// Dispatcher.Sweep, so TCP gains periodic housekeeping without a timer
// goroutine of its own.
func (m *Manager) Sweep(now time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sock := range m.byPort {
		if conn := sock.conn; conn != nil {
			conn.RetransmitExpired(now)
		}
		sock.pendingConnsMu.Lock()
		for _, conn := range sock.pendingConns {
			conn.RetransmitExpired(now)
		}
		sock.pendingConnsMu.Unlock()
	}
}
