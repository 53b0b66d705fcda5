package frag

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lambdafunc/usertcpip/pkg/assembler"
	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/ipv6"
	"github.com/lambdafunc/usertcpip/pkg/tracker"
)

// DefaultMaxEntries bounds the number of concurrent reassembly entries.
const DefaultMaxEntries = 256

// DefaultMaxBytes bounds the total bytes buffered across all entries.
const DefaultMaxBytes = 1 << 20 // 1 MiB

// DefaultTimeout is how long an incomplete entry is kept before it is
// swept and, if its first fragment arrived, reported via ICMPv6 Time
// Exceeded (RFC 2460 §4.5).
const DefaultTimeout = 30 * time.Second

// Key identifies one datagram's worth of fragments.
type Key struct {
	Source            common.IPv6Address
	Destination       common.IPv6Address
	Identification    uint32
	NextHeaderAtFirst common.Protocol
}

type entry struct {
	key        Key
	created    time.Time
	lastSeen   time.Time
	slices     map[uint32][]byte
	totalLen   uint32 // 0 until the last fragment has been seen
	haveLast   bool
	sawOffset0 bool
	poisoned   bool
	byteCount  int
	tr        tracker.ID
	lruElem   *list.Element
}

// Engine implements the IPv6 fragmentation/reassembly state machine
// (spec component C7): Split performs outbound splitting of an oversized
// carried payload, Reassemble folds inbound fragments back into a single
// ipv6.Packet, and Sweep evicts entries that have aged out.
type Engine struct {
	mu         sync.Mutex
	entries    map[Key]*entry
	lru        *list.List // front = most recently touched
	maxEntries int
	maxBytes   int
	totalBytes int
	timeout    time.Duration

	datagramID atomic.Uint32 // stack-wide counter, incremented once per outbound datagram
}

// NewEngine constructs a reassembly engine with the given resource caps
// and entry timeout.
func NewEngine(maxEntries, maxBytes int, timeout time.Duration) *Engine {
	return &Engine{
		entries:    make(map[Key]*entry),
		lru:        list.New(),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		timeout:    timeout,
	}
}

// NewDefaultEngine constructs an Engine with the spec's default caps.
func NewDefaultEngine() *Engine {
	return NewEngine(DefaultMaxEntries, DefaultMaxBytes, DefaultTimeout)
}

// DataMTU computes the maximum per-fragment payload size for a given link
// MTU: the IPv6 base header (40) and fragment extension header (8) are
// subtracted, then the result is rounded down to a multiple of 8 so every
// non-final fragment's length keeps the next fragment's offset aligned.
func DataMTU(linkMTU int) int {
	return (linkMTU - ipv6.HeaderLength - HeaderLength) &^ 7
}

// Split partitions payload into consecutive data_mtu-sized fragments and
// returns one ipv6.Packet per fragment, each carrying a Fragment
// extension header. The caller is responsible for handing each to the
// IPv6 TX handler and aggregating the per-fragment TxOutcome via
// arp.WorstOf. id is shared by every fragment of this datagram; it is
// allocated once here, stack-wide, per outbound datagram (never per
// fragment).
func (e *Engine) Split(src, dst common.IPv6Address, nextHeader common.Protocol, payload assembler.Assembler, linkMTU int) []*ipv6.Packet {
	dataMTU := DataMTU(linkMTU)
	if dataMTU <= 0 {
		return nil
	}

	full := make([]byte, payload.Length())
	payload.AssembleInto(full, 0)

	id := e.datagramID.Add(1)

	var fragments []*ipv6.Packet
	offset := 0
	for offset < len(full) {
		end := offset + dataMTU
		last := false
		if end >= len(full) {
			end = len(full)
			last = true
		}

		fh := &Header{
			NextHeader:     nextHeader,
			FragmentOffset: uint16(offset / 8),
			MoreFragments:  !last,
			Identification: id,
			Data:           full[offset:end],
		}

		pkt := ipv6.NewPacket(src, dst, common.ProtocolIPv6Frag, nil)
		buf := make([]byte, fh.Length())
		fh.AssembleInto(buf, 0)
		pkt.Payload = buf

		fragments = append(fragments, pkt)
		offset = end
	}

	return fragments
}

// getOrCreate moves key's entry to the front of the LRU list, creating it if
// absent, evicting the least-recently-touched entry first if the table is
// at capacity.
func (e *Engine) getOrCreate(key Key, tr tracker.ID) *entry {
	if ent, ok := e.entries[key]; ok {
		e.lru.MoveToFront(ent.lruElem)
		return ent
	}

	if len(e.entries) >= e.maxEntries {
		e.evictOldest()
	}

	ent := &entry{
		key:      key,
		created:  time.Now(),
		lastSeen: time.Now(),
		slices:   make(map[uint32][]byte),
		tr:       tr,
	}
	ent.lruElem = e.lru.PushFront(ent)
	e.entries[key] = ent
	return ent
}

func (e *Engine) evictOldest() {
	oldest := e.lru.Back()
	if oldest == nil {
		return
	}
	ent := oldest.Value.(*entry)
	e.removeLocked(ent)
}

func (e *Engine) removeLocked(ent *entry) {
	e.lru.Remove(ent.lruElem)
	delete(e.entries, ent.key)
	e.totalBytes -= ent.byteCount
}

// overlapsWithDifferentBytes reports whether [offset, offset+len(data)) conflicts with
// already-buffered bytes at a different value, per RFC 5722: any
// overlapping retransmission must match byte-for-byte or the whole
// datagram is discarded.
func overlapsWithDifferentBytes(slices map[uint32][]byte, offset uint32, data []byte) bool {
	newStart, newEnd := offset, offset+uint32(len(data))
	for existingOffset, existingData := range slices {
		existingStart, existingEnd := existingOffset, existingOffset+uint32(len(existingData))
		if newStart >= existingEnd || existingStart >= newEnd {
			continue // no overlap
		}
		overlapStart := newStart
		if existingStart > overlapStart {
			overlapStart = existingStart
		}
		overlapEnd := newEnd
		if existingEnd < overlapEnd {
			overlapEnd = existingEnd
		}
		for o := overlapStart; o < overlapEnd; o++ {
			a := data[o-newStart]
			b := existingData[o-existingStart]
			if a != b {
				return true
			}
		}
	}
	return false
}

// Reassemble folds one inbound fragment into its entry, per spec.md §4.7.
// It returns a completed ipv6.Packet once every fragment has arrived, or
// nil with no error while the datagram is still incomplete. A non-nil
// error means the fragment was rejected (oversized offset, or an
// RFC 5722 overlap poisoning this entry).
func (e *Engine) Reassemble(src, dst common.IPv6Address, h *Header, tr tracker.ID) (*ipv6.Packet, error) {
	if uint64(h.ByteOffset())+uint64(len(h.Data)) > 65535 {
		return nil, newReassemblyError(ResourceLimit, "offset+length exceeds 65535")
	}

	key := Key{Source: src, Destination: dst, Identification: h.Identification, NextHeaderAtFirst: h.NextHeader}

	e.mu.Lock()
	defer e.mu.Unlock()

	ent := e.getOrCreate(key, tr)
	ent.lastSeen = time.Now()

	if ent.poisoned {
		return nil, newReassemblyError(Overlap, "entry poisoned by an earlier overlap")
	}

	offset := h.ByteOffset()
	if overlapsWithDifferentBytes(ent.slices, offset, h.Data) {
		ent.poisoned = true
		return nil, newReassemblyError(Overlap, "conflicting overlap with existing fragment")
	}

	if _, exists := ent.slices[offset]; !exists {
		ent.slices[offset] = h.Data
		ent.byteCount += len(h.Data)
		e.totalBytes += len(h.Data)
		for e.totalBytes > e.maxBytes && e.lru.Len() > 0 {
			e.evictOldest()
		}
	}

	if offset == 0 {
		ent.sawOffset0 = true
	}
	if !h.MoreFragments {
		ent.totalLen = offset + uint32(len(h.Data))
		ent.haveLast = true
	}

	if !ent.haveLast {
		return nil, nil
	}

	var received uint32
	for _, s := range ent.slices {
		received += uint32(len(s))
	}
	if received < ent.totalLen {
		return nil, nil
	}

	payload := make([]byte, ent.totalLen)
	for off, s := range ent.slices {
		copy(payload[off:], s)
	}

	e.removeLocked(ent)

	pkt := ipv6.NewPacket(src, dst, h.NextHeader, payload)
	return pkt, nil
}

// TimedOutEntry describes an entry removed by Sweep so the caller can
// decide whether to emit ICMPv6 Time Exceeded (only when the fragment at
// offset 0 was received, per RFC 2460 §4.5).
type TimedOutEntry struct {
	Key           Key
	SawFirstFrag  bool
	FirstFragment []byte // the offset-0 slice, if SawFirstFrag, for the ICMPv6 error's quoted payload
	Tracker       tracker.ID
}

// Sweep removes every entry whose lastSeen predates now-timeout and
// returns them so the caller (the dispatcher/timer goroutine) can emit
// ICMPv6 Time Exceeded for the ones that had received their first
// fragment.
func (e *Engine) Sweep(now time.Time) []TimedOutEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	var timedOut []TimedOutEntry
	for elem := e.lru.Back(); elem != nil; {
		ent := elem.Value.(*entry)
		prev := elem.Prev()
		if now.Sub(ent.lastSeen) > e.timeout {
			timedOut = append(timedOut, TimedOutEntry{
				Key:           ent.key,
				SawFirstFrag:  ent.sawOffset0,
				FirstFragment: ent.slices[0],
				Tracker:       ent.tr,
			})
			e.removeLocked(ent)
		}
		elem = prev
	}
	return timedOut
}

// EntryCount reports the number of in-flight reassembly entries, for
// observability.
func (e *Engine) EntryCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}
