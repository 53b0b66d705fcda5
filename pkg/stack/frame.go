// Package stack ties the ring buffers, dispatcher, and protocol packages
// together into a runnable user-space network stack over a single tap.
package stack

import (
	"github.com/lambdafunc/usertcpip/pkg/tracker"
)

// RxFrame is one inbound Ethernet frame as it travels from the RX ring to
// the dispatcher: the raw bytes it was read into plus the correlation ID
// assigned at ingest. The dispatcher carves per-layer views out of Raw as
// it parses deeper into the frame rather than copying at each layer.
type RxFrame struct {
	Raw     []byte
	Tracker tracker.ID
}

// NewRxFrame wraps a just-read frame with a freshly minted RX tracker ID.
func NewRxFrame(raw []byte) RxFrame {
	return RxFrame{Raw: raw, Tracker: tracker.New(tracker.RX)}
}

// TxFrame is one outbound Ethernet frame queued for the TX ring, carrying
// the tracker ID of the RX frame (or internally generated event) that
// caused it, if any.
type TxFrame struct {
	Raw     []byte
	Tracker tracker.ID
}

// NewTxFrame mints a TX tracker, optionally recording the causing ID as its
// parent.
func NewTxFrame(raw []byte, cause tracker.ID) TxFrame {
	id := tracker.New(tracker.TX)
	if cause != tracker.Zero {
		id = id.WithParent(cause)
	}
	return TxFrame{Raw: raw, Tracker: id}
}
