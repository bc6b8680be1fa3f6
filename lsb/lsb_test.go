package lsb_test

import (
	"bytes"
	"testing"

	"github.com/nosmog/rohc/lsb"
)

func TestFits16Window(t *testing.T) {
	// k=4, p=3: interval is [ref-3, ref+12].
	const ref = 1000
	for v := uint16(ref - 3); v != ref+13; v++ {
		if !lsb.Fits16(v, ref, 4, 3) {
			t.Errorf("v=%d should fit in (4,3) window around %d", v, ref)
		}
	}
	if lsb.Fits16(ref-4, ref, 4, 3) {
		t.Error("below the window should not fit")
	}
	if lsb.Fits16(ref+13, ref, 4, 3) {
		t.Error("above the window should not fit")
	}
}

func TestFits16Wraparound(t *testing.T) {
	// The window must wrap modulo 2^16.
	if !lsb.Fits16(2, 0xFFFF, 4, 3) {
		t.Error("wrapped value should fit")
	}
	if !lsb.Fits16(0xFFFE, 1, 4, 3) {
		t.Error("negative-delta value inside p should fit")
	}
}

func TestFits32FullWidth(t *testing.T) {
	if !lsb.Fits32(0xDEADBEEF, 0, 32, 0) {
		t.Error("k=32 always fits")
	}
}

func TestVarLen32(t *testing.T) {
	tests := []struct {
		v, ref    uint32
		indicator uint8
		bytes     int
	}{
		{100, 100, lsb.VarLenNone, 0},
		{101, 100, lsb.VarLen8, 1},
		{100 + 300, 100, lsb.VarLen16, 2},
		{100 + 20000, 100, lsb.VarLen16, 2},
		{0x10000000, 100, lsb.VarLenFull, 4},
	}
	for _, tt := range tests {
		out, ind := lsb.AppendVarLen32(nil, tt.v, tt.ref)
		if ind != tt.indicator || len(out) != tt.bytes {
			t.Errorf("AppendVarLen32(%#x, %#x) = ind %d len %d, want %d/%d",
				tt.v, tt.ref, ind, len(out), tt.indicator, tt.bytes)
		}
	}
}

func TestAppendTSDiscriminators(t *testing.T) {
	const ref = 0x01020304
	tests := []struct {
		ts    uint32
		n     int
		first byte // discriminator bits of the first byte
		ok    bool
	}{
		{ref + 5, 1, 0x00, true},
		{ref + 300, 2, 0x80, true},
		{ref + 70000, 3, 0xC0, true},
		{ref + 3000000, 4, 0xE0, true},
		{ref + 0x40000000, 4, 0xE0, false}, // outside even the 29-bit window
	}
	for _, tt := range tests {
		out, ok := lsb.AppendTS(nil, tt.ts, ref)
		if len(out) != tt.n || ok != tt.ok {
			t.Errorf("AppendTS(%#x) = len %d ok %v, want %d/%v", tt.ts, len(out), ok, tt.n, tt.ok)
			continue
		}
		mask := byte(0x80)
		switch tt.n {
		case 1:
			mask = 0x80
		case 2:
			mask = 0xC0
		case 3, 4:
			mask = 0xE0
		}
		if out[0]&mask != tt.first {
			t.Errorf("AppendTS(%#x) first byte %#x, want discriminator %#x", tt.ts, out[0], tt.first)
		}
	}
}

func TestAppendSACKField(t *testing.T) {
	const base = 5000
	tests := []struct {
		v  uint32
		n  int
		ok bool
	}{
		{base + 100, 2, true},
		{base + 0x7FFF, 2, true},
		{base + 0x8000, 3, true},
		{base + 0x3FFFFF, 3, true},
		{base + 0x400000, 4, true},
		{base + 0x40000000, 0, false},
	}
	for _, tt := range tests {
		out, ok := lsb.AppendSACKField(nil, tt.v, base)
		if len(out) != tt.n || ok != tt.ok {
			t.Errorf("AppendSACKField(%d) = len %d ok %v, want %d/%v", tt.v, len(out), ok, tt.n, tt.ok)
		}
	}
}

func TestAppend7or31(t *testing.T) {
	if out := lsb.Append7or31(nil, 105, 100); len(out) != 1 || out[0]&0x80 != 0 {
		t.Errorf("small delta should use the 1-byte form, got % x", out)
	}
	out := lsb.Append7or31(nil, 100+1000, 100)
	if len(out) != 4 || out[0]&0x80 == 0 {
		t.Errorf("large delta should use the 4-byte form, got % x", out)
	}
}

func TestAppendUint(t *testing.T) {
	if got := lsb.AppendUint16(nil, 0x1234); !bytes.Equal(got, []byte{0x12, 0x34}) {
		t.Errorf("AppendUint16 = % x", got)
	}
	if got := lsb.AppendUint32(nil, 0x01020304); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("AppendUint32 = % x", got)
	}
}

func TestScale(t *testing.T) {
	s, r := lsb.Scale(1448*3+7, 1448)
	if s != 3 || r != 7 {
		t.Errorf("Scale = %d, %d", s, r)
	}
}

func TestSwap16(t *testing.T) {
	if lsb.Swap16(0x0102) != 0x0201 {
		t.Error("Swap16 failed")
	}
}
