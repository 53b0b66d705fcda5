package arp

import (
	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/ip"
)

// Gate is the IPv4 neighbor resolution gate (spec component C8): given a
// destination address and the routing table's on-link/gateway decision,
// it resolves a next-hop L2 address from the ARP cache and reports which
// of the TxOutcome cases applies, triggering an ARP request on a cache
// miss via the supplied requester.
type Gate struct {
	Routes *ip.RoutingTable
	Cache  *Cache

	// Request is invoked to send an ARP request for nextHop when the
	// cache has no entry for it. It is the gate's only side effect; the
	// gate itself never touches the TX ring.
	Request func(nextHop common.IPv4Address)
}

// Resolve determines the next-hop L2 address for an outbound datagram
// addressed to dst, per spec.md §4.6: on-link destinations are resolved
// directly, off-link destinations resolve the configured default gateway.
func (g *Gate) Resolve(dst common.IPv4Address) (common.MACAddress, TxOutcome) {
	route, nextHop, err := g.Routes.Lookup(dst)
	if err != nil || route == nil {
		return common.MACAddress{}, DroppedEtherNoGateway
	}

	isGatewayHop := route.Gateway != (common.IPv4Address{}) && nextHop == route.Gateway

	if g.Cache.IsNegativelyCached(nextHop) {
		return common.MACAddress{}, DroppedEtherResolutionFail
	}

	mac, ok := g.Cache.Get(nextHop)
	if ok {
		return mac, PassedToTxRing
	}

	if g.Request != nil {
		g.Request(nextHop)
	}
	if isGatewayHop {
		return common.MACAddress{}, DroppedEtherGatewayCacheFail
	}
	return common.MACAddress{}, DroppedEtherCacheFail
}
