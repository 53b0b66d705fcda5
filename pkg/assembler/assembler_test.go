package assembler

import "testing"

func TestRawLength(t *testing.T) {
	r := Raw([]byte{1, 2, 3, 4, 5})
	if r.Length() != 5 {
		t.Errorf("Length() = %d, want 5", r.Length())
	}
}

func TestRawNextProtoIsZero(t *testing.T) {
	r := Raw([]byte{1, 2, 3})
	if r.NextProto() != 0 {
		t.Errorf("NextProto() = %d, want 0", r.NextProto())
	}
}

func TestRawAssembleIntoCopiesBytes(t *testing.T) {
	r := Raw([]byte{0xde, 0xad, 0xbe, 0xef})
	buf := make([]byte, 4)
	r.AssembleInto(buf, 0)
	for i, b := range r {
		if buf[i] != b {
			t.Errorf("buf[%d] = %#x, want %#x", i, buf[i], b)
		}
	}
}

func TestRawPseudoHeaderSumEvenLength(t *testing.T) {
	r := Raw([]byte{0x12, 0x34, 0x56, 0x78})
	got := r.PseudoHeaderSum(nil, nil)
	want := uint32(0x1234) + uint32(0x5678)
	if got != want {
		t.Errorf("PseudoHeaderSum() = %#x, want %#x", got, want)
	}
}

func TestRawPseudoHeaderSumOddLength(t *testing.T) {
	r := Raw([]byte{0x12, 0x34, 0x56})
	got := r.PseudoHeaderSum(nil, nil)
	want := uint32(0x1234) + uint32(0x5600)
	if got != want {
		t.Errorf("PseudoHeaderSum() = %#x, want %#x", got, want)
	}
}

var _ Assembler = Raw(nil)
