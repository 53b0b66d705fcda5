// Command tapdemo captures frames off a live interface with gopacket's
// AF_PACKET backend and prints a one-line summary per frame. It exists to
// demonstrate the external tap-acquisition path spec.md keeps outside the
// core: gopacket/afpacket is never used to decode a frame that reaches
// pkg/stack/dispatch, only to pull bytes off the wire for this standalone
// tool, grounded on firestige-Otus/otus-packet/pkg/capture's afpacketHandle.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
)

func main() {
	iface := flag.String("i", "eth0", "interface to capture on")
	count := flag.Int("c", 10, "number of frames to print before exiting (0 = unbounded)")
	flag.Parse()

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(*iface),
		afpacket.OptFrameSize(4096),
		afpacket.OptBlockSize(4096*128),
		afpacket.OptNumBlocks(8),
		afpacket.OptPollTimeout(time.Second),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *iface, err)
		os.Exit(1)
	}
	defer tp.Close()

	for n := 0; *count == 0 || n < *count; n++ {
		data, ci, err := tp.ZeroCopyReadPacketData()
		if err != nil {
			fmt.Fprintf(os.Stderr, "read: %v\n", err)
			continue
		}
		pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
		fmt.Printf("%s %5dB %s\n", ci.Timestamp.Format(time.RFC3339Nano), ci.CaptureLength, summarize(pkt))
	}
}

func summarize(pkt gopacket.Packet) string {
	if l := pkt.NetworkLayer(); l != nil {
		if t := pkt.TransportLayer(); t != nil {
			return fmt.Sprintf("%s %s -> %s (%s)", t.LayerType(), l.NetworkFlow().Src(), l.NetworkFlow().Dst(), t.TransportFlow())
		}
		return fmt.Sprintf("%s %s -> %s", l.LayerType(), l.NetworkFlow().Src(), l.NetworkFlow().Dst())
	}
	return pkt.LinkLayer().LayerType().String()
}
