package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lambdafunc/usertcpip/pkg/arp"
	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/ethernet"
	"github.com/lambdafunc/usertcpip/pkg/icmp"
	"github.com/lambdafunc/usertcpip/pkg/ip"
	"github.com/lambdafunc/usertcpip/pkg/ipv6/frag"
	"github.com/lambdafunc/usertcpip/pkg/multicast"
	"github.com/lambdafunc/usertcpip/pkg/ndp"
	"github.com/lambdafunc/usertcpip/pkg/stack"
	"github.com/lambdafunc/usertcpip/pkg/tracker"
)

type fakeTx struct {
	frames []stack.TxFrame
}

func (f *fakeTx) Enqueue(tf stack.TxFrame) bool {
	f.frames = append(f.frames, tf)
	return true
}

func newTestDispatcher(tx *fakeTx) *Dispatcher {
	cfg := Config{
		LocalMAC:  common.MACAddress{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		LocalIPv4: common.IPv4Address{10, 0, 0, 1},
	}
	ip6, _ := common.ParseIPv6("fe80::1")
	cfg.LocalIPv6 = ip6

	routes := ip.NewRoutingTable()
	return New(cfg, routes, arp.NewDefaultCache(), ndp.NewDefaultCache(), frag.NewDefaultEngine(), multicast.NewManager(), tx, nil, nil, nil)
}

func TestHandleARPRequestSendsReply(t *testing.T) {
	tx := &fakeTx{}
	d := newTestDispatcher(tx)

	peerMAC := common.MACAddress{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	peerIP := common.IPv4Address{10, 0, 0, 2}

	req := &arp.Packet{
		HardwareType:   arp.HardwareTypeEthernet,
		ProtocolType:   arp.ProtocolTypeIPv4,
		HardwareLength: 6,
		ProtocolLength: 4,
		Operation:      arp.OperationRequest,
		SenderMAC:      peerMAC,
		SenderIP:       peerIP,
		TargetIP:       d.cfg.LocalIPv4,
	}
	frame := ethernet.NewFrame(d.cfg.LocalMAC, peerMAC, common.EtherTypeARP, req.Serialize())
	d.HandleFrame(stack.NewRxFrame(frame.Serialize()))

	require.Len(t, tx.frames, 1)
	got, err := ethernet.Parse(tx.frames[0].Raw)
	require.NoError(t, err)
	reply, err := arp.Parse(got.Payload)
	require.NoError(t, err)
	require.Equal(t, arp.OperationReply, reply.Operation)
	require.Equal(t, d.cfg.LocalIPv4, reply.SenderIP)
	require.Equal(t, peerIP, reply.TargetIP)

	mac, ok := d.arpCache.Get(peerIP)
	require.True(t, ok)
	require.Equal(t, peerMAC, mac)
}

func TestSendIPv4WithCachedNeighborReachesTxRing(t *testing.T) {
	tx := &fakeTx{}
	d := newTestDispatcher(tx)

	dst := common.IPv4Address{10, 0, 0, 2}
	dstMAC := common.MACAddress{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	d.arpCache.Add(dst, dstMAC)
	require.NoError(t, d.routes.AddRoute(&ip.Route{
		Destination: common.IPv4Address{10, 0, 0, 0},
		Netmask:     common.IPv4Address{255, 255, 255, 0},
		Interface:   "tap0",
	}))

	msg := icmp.NewEchoRequest(1, 1, []byte("ping"))
	outcome := d.SendIPv4(dst, common.ProtocolICMP, msg, tracker.Zero)
	require.Equal(t, arp.PassedToTxRing, outcome)
	require.Len(t, tx.frames, 1)
}

func TestSendIPv4WithUncachedNeighborFails(t *testing.T) {
	tx := &fakeTx{}
	d := newTestDispatcher(tx)
	require.NoError(t, d.routes.AddRoute(&ip.Route{
		Destination: common.IPv4Address{10, 0, 0, 0},
		Netmask:     common.IPv4Address{255, 255, 255, 0},
		Interface:   "tap0",
	}))

	msg := icmp.NewEchoRequest(1, 1, []byte("ping"))
	outcome := d.SendIPv4(common.IPv4Address{10, 0, 0, 9}, common.ProtocolICMP, msg, tracker.Zero)
	require.Equal(t, arp.DroppedEtherCacheFail, outcome)
	require.Empty(t, tx.frames)
}
