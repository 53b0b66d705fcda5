// Package stackmetrics keeps the atomic error/drop counters named in
// spec.md §7, exposed as plain fields rather than through a metrics
// backend: spec.md keeps observability plumbing beyond counters/logs out
// of the core's scope, so this stays a stdlib sync/atomic struct instead
// of wiring a Prometheus/expvar exporter.
package stackmetrics

import "sync/atomic"

// Counters collects the error kinds the core emits (spec.md §7). The
// dispatcher increments the parse, reassembly and TX-resolution fields,
// and the TCP and UDP managers increment the TCP* and UDPNoListener
// fields, at the point a condition occurs. ParseBadChecksum,
// ParseBadVersion, ParseUnsupported, TxRingFull and RxRingFull are not
// incremented anywhere in this module. Nothing here interprets or exports
// them beyond the Snapshot method.
type Counters struct {
	ParseTooShort        atomic.Uint64
	ParseBadChecksum     atomic.Uint64
	ParseBadVersion      atomic.Uint64
	ParseUnsupported     atomic.Uint64
	ReassemblyOverlap    atomic.Uint64
	ReassemblyTimeout    atomic.Uint64
	ReassemblyResource   atomic.Uint64
	TxNeighborUnresolved atomic.Uint64
	TxNoGateway          atomic.Uint64
	TxRingFull           atomic.Uint64
	RxRingFull           atomic.Uint64
	TCPRetransmit        atomic.Uint64
	TCPFastRetransmit    atomic.Uint64
	TCPReset             atomic.Uint64
	UDPNoListener        atomic.Uint64
}

// Snapshot is a point-in-time copy of Counters suitable for logging or a
// status command, since the atomic.Uint64 fields themselves can't be
// copied while live.
type Snapshot struct {
	ParseTooShort        uint64
	ParseBadChecksum     uint64
	ParseBadVersion      uint64
	ParseUnsupported     uint64
	ReassemblyOverlap    uint64
	ReassemblyTimeout    uint64
	ReassemblyResource   uint64
	TxNeighborUnresolved uint64
	TxNoGateway          uint64
	TxRingFull           uint64
	RxRingFull           uint64
	TCPRetransmit        uint64
	TCPFastRetransmit    uint64
	TCPReset             uint64
	UDPNoListener        uint64
}

// Snapshot reads every counter's current value.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		ParseTooShort:        c.ParseTooShort.Load(),
		ParseBadChecksum:     c.ParseBadChecksum.Load(),
		ParseBadVersion:      c.ParseBadVersion.Load(),
		ParseUnsupported:     c.ParseUnsupported.Load(),
		ReassemblyOverlap:    c.ReassemblyOverlap.Load(),
		ReassemblyTimeout:    c.ReassemblyTimeout.Load(),
		ReassemblyResource:   c.ReassemblyResource.Load(),
		TxNeighborUnresolved: c.TxNeighborUnresolved.Load(),
		TxNoGateway:          c.TxNoGateway.Load(),
		TxRingFull:           c.TxRingFull.Load(),
		RxRingFull:           c.RxRingFull.Load(),
		TCPRetransmit:        c.TCPRetransmit.Load(),
		TCPFastRetransmit:    c.TCPFastRetransmit.Load(),
		TCPReset:             c.TCPReset.Load(),
		UDPNoListener:        c.UDPNoListener.Load(),
	}
}
