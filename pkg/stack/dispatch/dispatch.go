// Package dispatch implements the per-layer handler chain (spec component
// C6) that demultiplexes inbound frames down to delivered payloads and
// composes outbound payloads back into frames, per spec.md §4.6: each
// handler consumes the previous layer's parsed view, performs local
// validation and local-delivery decisions, and either drops with a reason
// or forwards to the next layer.
package dispatch

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lambdafunc/usertcpip/pkg/arp"
	"github.com/lambdafunc/usertcpip/pkg/assembler"
	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/ethernet"
	"github.com/lambdafunc/usertcpip/pkg/icmp"
	"github.com/lambdafunc/usertcpip/pkg/icmp6"
	"github.com/lambdafunc/usertcpip/pkg/ip"
	"github.com/lambdafunc/usertcpip/pkg/ipv6"
	"github.com/lambdafunc/usertcpip/pkg/ipv6/frag"
	"github.com/lambdafunc/usertcpip/pkg/multicast"
	"github.com/lambdafunc/usertcpip/pkg/ndp"
	"github.com/lambdafunc/usertcpip/pkg/stack"
	"github.com/lambdafunc/usertcpip/pkg/stackmetrics"
	"github.com/lambdafunc/usertcpip/pkg/tracker"
)

// DeliveryFunc is invoked once a UDP or TCP payload has been demultiplexed
// down to its transport view, for an application-level socket layer to
// consume. proto is the IP protocol number (6 or 17).
type DeliveryFunc func(l3Src, l3Dst net.IP, proto uint8, view []byte, tr tracker.ID)

// Config is the dispatcher's local identity: the addresses that make an
// inbound datagram "for us" rather than something to silently drop, per
// the Non-goal that rules out forwarding beyond the one-default-gateway
// floor.
type Config struct {
	LocalMAC  common.MACAddress
	LocalIPv4 common.IPv4Address
	LocalIPv6 common.IPv6Address
}

// Dispatcher wires together the neighbor resolution gates, the IPv6
// fragmentation engine, multicast membership, the TX ring, and the
// delivery callback into the handler chain spec.md §4.6 describes.
type Dispatcher struct {
	cfg Config

	routes   *ip.RoutingTable
	arpCache *arp.Cache
	arpGate  *arp.Gate
	ndpCache *ndp.Cache
	frag     *frag.Engine
	mcast    *multicast.Manager

	tx      txQueue
	deliver DeliveryFunc
	log     *logrus.Entry
	metrics *stackmetrics.Counters
}

// txQueue is the subset of txring.Ring the dispatcher needs; kept as an
// interface so tests can substitute a fake without a real tap.
type txQueue interface {
	Enqueue(stack.TxFrame) bool
}

// New constructs a Dispatcher. Its ARP gate is given the dispatcher's own
// sendARPRequest as the Request hook, invoked on a cache miss to emit an
// ARP request frame, because the gate itself has no TX-ring access.
func New(cfg Config, routes *ip.RoutingTable, arpCache *arp.Cache, ndpCache *ndp.Cache, fragEngine *frag.Engine, mcast *multicast.Manager, tx txQueue, deliver DeliveryFunc, log *logrus.Entry, metrics *stackmetrics.Counters) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if metrics == nil {
		metrics = &stackmetrics.Counters{}
	}
	d := &Dispatcher{
		cfg:      cfg,
		routes:   routes,
		arpCache: arpCache,
		ndpCache: ndpCache,
		frag:     fragEngine,
		mcast:    mcast,
		tx:       tx,
		deliver:  deliver,
		log:      log.WithField("component", "dispatch"),
		metrics:  metrics,
	}
	d.arpGate = &arp.Gate{Routes: routes, Cache: arpCache, Request: d.sendARPRequest}
	return d
}

// HandleFrame is the inbound entry point: phrx_ether.
func (d *Dispatcher) HandleFrame(f stack.RxFrame) {
	frame, err := ethernet.Parse(f.Raw)
	if err != nil {
		d.metrics.ParseTooShort.Add(1)
		d.log.WithError(err).Debug("dropping malformed ethernet frame")
		return
	}

	switch frame.EtherType {
	case common.EtherTypeARP:
		d.handleARP(frame, f.Tracker)
	case common.EtherTypeIPv4:
		d.handleIPv4(frame, f.Tracker)
	case common.EtherTypeIPv6:
		d.handleIPv6(frame, f.Tracker)
	default:
		d.log.WithField("ethertype", frame.EtherType.String()).Trace("dropping unhandled ethertype")
	}
}

// Sweep runs the periodic housekeeping the dispatcher/timer goroutine is
// responsible for: IPv6 reassembly timeouts (emitting ICMPv6 Time
// Exceeded for entries that saw their first fragment) and neighbor-cache
// expiry. It is never run from a goroutine this package owns, preserving
// the stack's fixed three-goroutine budget (RX reader, TX writer,
// dispatcher/timer).
func (d *Dispatcher) Sweep(now time.Time) {
	for _, te := range d.frag.Sweep(now) {
		d.metrics.ReassemblyTimeout.Add(1)
		if !te.SawFirstFrag {
			continue
		}
		msg := icmp6.NewTimeExceeded(icmp6.CodeFragmentReassemblyTime, te.FirstFragment)
		d.sendICMPv6(d.cfg.LocalIPv6, te.Key.Source, msg, tracker.Zero)
	}
	d.arpCache.Cleanup()
	d.ndpCache.Cleanup()
}
