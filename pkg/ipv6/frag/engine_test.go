package frag

import (
	"testing"
	"time"

	"github.com/lambdafunc/usertcpip/pkg/assembler"
	"github.com/lambdafunc/usertcpip/pkg/common"
	"github.com/lambdafunc/usertcpip/pkg/tracker"
)

var testSrc = common.IPv6Address{0x20, 0x01, 0x0d, 0xb8}
var testDst = common.IPv6Address{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}

func TestDataMTU(t *testing.T) {
	if got := DataMTU(1500); got != 1448 {
		t.Errorf("DataMTU(1500) = %d, want 1448", got)
	}
}

func makePayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

func TestSplitThreeFragments(t *testing.T) {
	e := NewDefaultEngine()
	payload := assembler.Raw(makePayload(3000))

	fragments := e.Split(testSrc, testDst, common.ProtocolTCP, payload, 1500)
	if len(fragments) != 3 {
		t.Fatalf("got %d fragments, want 3", len(fragments))
	}

	wantLens := []int{1448, 1448, 104}
	wantMore := []bool{true, true, false}
	var id uint32
	for i, pkt := range fragments {
		h, err := ParseHeader(pkt.Payload)
		if err != nil {
			t.Fatalf("fragment %d: ParseHeader: %v", i, err)
		}
		if len(h.Data) != wantLens[i] {
			t.Errorf("fragment %d length = %d, want %d", i, len(h.Data), wantLens[i])
		}
		if h.MoreFragments != wantMore[i] {
			t.Errorf("fragment %d MoreFragments = %v, want %v", i, h.MoreFragments, wantMore[i])
		}
		if i == 0 {
			id = h.Identification
		} else if h.Identification != id {
			t.Errorf("fragment %d identification = %d, want %d", i, h.Identification, id)
		}
	}

	if off, err := ParseHeader(fragments[1].Payload); err == nil && off.ByteOffset() != 1448 {
		t.Errorf("fragment 1 offset = %d, want 1448", off.ByteOffset())
	}
	if off, err := ParseHeader(fragments[2].Payload); err == nil && off.ByteOffset() != 2896 {
		t.Errorf("fragment 2 offset = %d, want 2896", off.ByteOffset())
	}
}

func TestReassembleOutOfOrder(t *testing.T) {
	e := NewDefaultEngine()
	payload := makePayload(3000)
	fragments := e.Split(testSrc, testDst, common.ProtocolTCP, assembler.Raw(payload), 1500)
	if len(fragments) != 3 {
		t.Fatalf("got %d fragments, want 3", len(fragments))
	}

	order := []int{2, 0, 1}
	var result []byte
	for _, idx := range order {
		h, err := ParseHeader(fragments[idx].Payload)
		if err != nil {
			t.Fatalf("ParseHeader: %v", err)
		}
		pkt, err := e.Reassemble(testSrc, testDst, h, tracker.New(tracker.RX))
		if err != nil {
			t.Fatalf("Reassemble: %v", err)
		}
		if pkt != nil {
			result = pkt.Payload
		}
	}

	if len(result) != len(payload) {
		t.Fatalf("reassembled length = %d, want %d", len(result), len(payload))
	}
	for i := range payload {
		if result[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %#x want %#x", i, result[i], payload[i])
		}
	}
}

func TestReassembleOverlapPoisons(t *testing.T) {
	e := NewDefaultEngine()
	id := uint32(1)
	h1 := &Header{NextHeader: common.ProtocolTCP, FragmentOffset: 0, MoreFragments: true, Identification: id, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	h2 := &Header{NextHeader: common.ProtocolTCP, FragmentOffset: 0, MoreFragments: false, Identification: id, Data: []byte{9, 9, 9, 9, 9, 9, 9, 9}}

	if _, err := e.Reassemble(testSrc, testDst, h1, tracker.Zero); err != nil {
		t.Fatalf("first fragment: %v", err)
	}
	if _, err := e.Reassemble(testSrc, testDst, h2, tracker.Zero); err == nil {
		t.Fatal("expected overlap error")
	}

	h3 := &Header{NextHeader: common.ProtocolTCP, FragmentOffset: 1, MoreFragments: false, Identification: id, Data: []byte{1, 2, 3, 4}}
	if _, err := e.Reassemble(testSrc, testDst, h3, tracker.Zero); err == nil {
		t.Fatal("expected poisoned entry to keep rejecting fragments")
	}
}

func TestReassembleRejectsOversizedOffset(t *testing.T) {
	e := NewDefaultEngine()
	h := &Header{NextHeader: common.ProtocolTCP, FragmentOffset: 8192, MoreFragments: false, Identification: 1, Data: make([]byte, 100)}
	if _, err := e.Reassemble(testSrc, testDst, h, tracker.Zero); err == nil {
		t.Fatal("expected rejection of oversized offset+length")
	}
}

func TestSweepReportsFirstFragmentOnly(t *testing.T) {
	e := NewEngine(DefaultMaxEntries, DefaultMaxBytes, 10*time.Millisecond)
	h0 := &Header{NextHeader: common.ProtocolTCP, FragmentOffset: 0, MoreFragments: true, Identification: 1, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	h2 := &Header{NextHeader: common.ProtocolTCP, FragmentOffset: 100, MoreFragments: true, Identification: 2, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}

	if _, err := e.Reassemble(testSrc, testDst, h0, tracker.Zero); err != nil {
		t.Fatalf("Reassemble h0: %v", err)
	}
	if _, err := e.Reassemble(testSrc, testDst, h2, tracker.Zero); err != nil {
		t.Fatalf("Reassemble h2: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	timedOut := e.Sweep(time.Now())
	if len(timedOut) != 2 {
		t.Fatalf("got %d timed out entries, want 2", len(timedOut))
	}

	var sawFirstCount int
	for _, to := range timedOut {
		if to.SawFirstFrag {
			sawFirstCount++
		}
	}
	if sawFirstCount != 1 {
		t.Errorf("entries reporting SawFirstFrag = %d, want 1", sawFirstCount)
	}
	if e.EntryCount() != 0 {
		t.Errorf("EntryCount() = %d after sweep, want 0", e.EntryCount())
	}
}

func TestLRUEvictionRespectsMaxEntries(t *testing.T) {
	e := NewEngine(2, DefaultMaxBytes, DefaultTimeout)
	for id := uint32(1); id <= 3; id++ {
		h := &Header{NextHeader: common.ProtocolTCP, FragmentOffset: 0, MoreFragments: true, Identification: id, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
		if _, err := e.Reassemble(testSrc, testDst, h, tracker.Zero); err != nil {
			t.Fatalf("Reassemble id=%d: %v", id, err)
		}
	}
	if e.EntryCount() != 2 {
		t.Errorf("EntryCount() = %d, want 2 after evicting oldest", e.EntryCount())
	}
}
