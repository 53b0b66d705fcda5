package arp

import (
	"testing"

	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/ip"
)

func mustIPv4(t *testing.T, s string) common.IPv4Address {
	t.Helper()
	ipv4, err := common.ParseIPv4(s)
	if err != nil {
		t.Fatalf("ParseIPv4(%q): %v", s, err)
	}
	return ipv4
}

func newGateFixture(t *testing.T) (*Gate, common.IPv4Address, common.IPv4Address) {
	t.Helper()
	routes := ip.NewRoutingTable()
	onLink := mustIPv4(t, "192.168.1.50")
	offLink := mustIPv4(t, "8.8.8.8")
	gateway := mustIPv4(t, "192.168.1.1")

	if err := routes.AddRoute(&ip.Route{
		Destination: mustIPv4(t, "192.168.1.0"),
		Netmask:     mustIPv4(t, "255.255.255.0"),
		Gateway:     common.IPv4Address{},
	}); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}
	if err := routes.SetDefaultGateway(gateway, "tap0"); err != nil {
		t.Fatalf("SetDefaultGateway: %v", err)
	}

	gate := &Gate{Routes: routes, Cache: NewDefaultCache()}
	return gate, onLink, offLink
}

func TestGateResolveCacheHit(t *testing.T) {
	gate, onLink, _ := newGateFixture(t)
	mac := common.MACAddress{1, 2, 3, 4, 5, 6}
	gate.Cache.Add(onLink, mac)

	got, outcome := gate.Resolve(onLink)
	if outcome != PassedToTxRing {
		t.Fatalf("outcome = %v, want PassedToTxRing", outcome)
	}
	if got != mac {
		t.Errorf("resolved MAC = %s, want %s", got, mac)
	}
}

func TestGateResolveOnLinkCacheMissTriggersRequest(t *testing.T) {
	gate, onLink, _ := newGateFixture(t)
	requested := common.IPv4Address{}
	gate.Request = func(nextHop common.IPv4Address) { requested = nextHop }

	_, outcome := gate.Resolve(onLink)
	if outcome != DroppedEtherCacheFail {
		t.Fatalf("outcome = %v, want DroppedEtherCacheFail", outcome)
	}
	if requested != onLink {
		t.Errorf("requested %s, want %s", requested, onLink)
	}
}

func TestGateResolveOffLinkCacheMissIsGatewayCacheFail(t *testing.T) {
	gate, _, offLink := newGateFixture(t)
	_, outcome := gate.Resolve(offLink)
	if outcome != DroppedEtherGatewayCacheFail {
		t.Fatalf("outcome = %v, want DroppedEtherGatewayCacheFail", outcome)
	}
}

func TestGateResolveNegativeCache(t *testing.T) {
	gate, onLink, _ := newGateFixture(t)
	gate.Cache.MarkResolutionFailed(onLink)

	_, outcome := gate.Resolve(onLink)
	if outcome != DroppedEtherResolutionFail {
		t.Fatalf("outcome = %v, want DroppedEtherResolutionFail", outcome)
	}
}

func TestGateResolveNoRoute(t *testing.T) {
	gate := &Gate{Routes: ip.NewRoutingTable(), Cache: NewDefaultCache()}
	_, outcome := gate.Resolve(mustIPv4(t, "10.0.0.1"))
	if outcome != DroppedEtherNoGateway {
		t.Fatalf("outcome = %v, want DroppedEtherNoGateway", outcome)
	}
}

func TestWorstOfAggregatesSeverity(t *testing.T) {
	got := WorstOf(PassedToTxRing, PassedToTxRing, DroppedEtherCacheFail)
	if got != DroppedEtherCacheFail {
		t.Errorf("WorstOf = %v, want DroppedEtherCacheFail", got)
	}
}

func TestWorstOfEmptyIsPassed(t *testing.T) {
	if got := WorstOf(); got != PassedToTxRing {
		t.Errorf("WorstOf() = %v, want PassedToTxRing", got)
	}
}
