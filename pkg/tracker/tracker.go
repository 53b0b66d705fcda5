// Package tracker assigns opaque correlation identifiers to frames and
// assemblers so that a reply generated deep in the stack (an ICMP Echo
// Reply, a fragment reassembly timeout) can be traced back to the request
// or datagram that caused it.
package tracker

import (
	"fmt"
	"sync/atomic"
)

// Prefix tags the origin of an ID: an inbound frame or an outbound
// assembler. It occupies the high 16 bits of an ID's own 48-bit handle.
type Prefix uint16

const (
	// RX tags an ID assigned to a frame at RX-ring enqueue time.
	RX Prefix = iota + 1
	// TX tags an ID assigned to an assembler at creation time.
	TX
)

// String renders the prefix the way it appears in log output ("RX"/"TX").
func (p Prefix) String() string {
	switch p {
	case RX:
		return "RX"
	case TX:
		return "TX"
	default:
		return fmt.Sprintf("P%d", uint16(p))
	}
}

var serials [3]atomic.Uint32 // indexed by Prefix; index 0 unused

// next returns the next process-monotonic serial for prefix.
func next(p Prefix) uint32 {
	return serials[p].Add(1)
}

// ID is an opaque 96-bit correlation identifier: a 16-bit prefix tag, a
// 32-bit monotonic serial unique within that prefix, and an optional
// parent handle recording the ID that caused this one to be created (e.g.
// the Echo Request tracker recorded on an Echo Reply's tracker). The
// parent handle packs the parent's own prefix+serial into 48 bits, so the
// whole value fits the spec's 96-bit budget without indirection.
type ID struct {
	prefix    Prefix
	serial    uint32
	parent    uint64 // packed prefix(16)<<32 | serial(32) of the causing ID, 0 if none
	hasParent bool
}

// New allocates a fresh, parentless ID under the given prefix.
func New(p Prefix) ID {
	return ID{prefix: p, serial: next(p)}
}

// pack encodes this ID's own prefix+serial into the 48-bit handle shape
// used to record it as a parent.
func (id ID) pack() uint64 {
	return uint64(id.prefix)<<32 | uint64(id.serial)
}

// WithParent returns a copy of id recording parent as its causal
// predecessor — used when a layer synthesizes a reply or derived packet
// and wants the reply's tracker to carry the request's tracker along for
// correlation.
func (id ID) WithParent(parent ID) ID {
	id.parent = parent.pack()
	id.hasParent = true
	return id
}

// Parent reports the packed parent handle and whether one is set. The
// handle alone cannot be resolved back to a live ID (the parent's own
// parent, if any, is not retained), but its prefix/serial are enough to
// match it against logged RX/TX trackers.
func (id ID) Parent() (prefix Prefix, serial uint32, ok bool) {
	if !id.hasParent {
		return 0, 0, false
	}
	return Prefix(id.parent >> 32), uint32(id.parent & 0xFFFFFFFF), true
}

// Prefix returns the ID's origin tag.
func (id ID) Prefix() Prefix { return id.prefix }

// Serial returns the ID's monotonic serial within its prefix.
func (id ID) Serial() uint32 { return id.serial }

// String renders the ID as "RX:000001a2" and, if a parent is set,
// appends "<-TX:00000001".
func (id ID) String() string {
	s := fmt.Sprintf("%s:%08x", id.prefix, id.serial)
	if p, n, ok := id.Parent(); ok {
		s += fmt.Sprintf("<-%s:%08x", p, n)
	}
	return s
}

// Zero is the unset ID value, used for code paths not yet wired to
// dispatcher-assigned trackers.
var Zero ID
