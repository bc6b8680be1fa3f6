package tcpopt_test

import (
	"testing"

	"github.com/nosmog/rohc/tcpip"
	"github.com/nosmog/rohc/tcpopt"
)

func mss(v uint16) tcpip.Option {
	return tcpip.Option{Kind: tcpopt.KindMSS, Data: []byte{byte(v >> 8), byte(v)}}
}

func ws(v uint8) tcpip.Option {
	return tcpip.Option{Kind: tcpopt.KindWS, Data: []byte{v}}
}

func ts(val, ecr uint32) tcpip.Option {
	return tcpip.Option{Kind: tcpopt.KindTS, Data: []byte{
		byte(val >> 24), byte(val >> 16), byte(val >> 8), byte(val),
		byte(ecr >> 24), byte(ecr >> 16), byte(ecr >> 8), byte(ecr),
	}}
}

func sack(edges ...uint32) tcpip.Option {
	var d []byte
	for _, e := range edges {
		d = append(d, byte(e>>24), byte(e>>16), byte(e>>8), byte(e))
	}
	return tcpip.Option{Kind: tcpopt.KindSACK, Data: d}
}

var nop = tcpip.Option{Kind: tcpopt.KindNOP}
var sackPerm = tcpip.Option{Kind: tcpopt.KindSACKPermitted}

func TestReservedIndices(t *testing.T) {
	tbl := tcpopt.NewTable()
	opts := []tcpip.Option{mss(1460), nop, ws(7), sackPerm, ts(100, 0)}
	p := tbl.Plan(opts, 0)
	if !p.Changed {
		t.Error("first packet must report a changed list")
	}
	want := []uint8{tcpopt.IndexMSS, tcpopt.IndexNOP, tcpopt.IndexWS, tcpopt.IndexSACKPermitted, tcpopt.IndexTS}
	for i, item := range p.Items {
		if item.Index != want[i] {
			t.Errorf("item %d got index %d, want %d", i, item.Index, want[i])
		}
	}
}

func TestStableListIsReuseOnly(t *testing.T) {
	tbl := tcpopt.NewTable()
	opts := []tcpip.Option{mss(1460), ws(7), sackPerm}
	tbl.Commit(tbl.Plan(opts, 0))

	p := tbl.Plan(opts, 0)
	if p.Changed {
		t.Error("stable option set should not need a list")
	}
	for _, item := range p.Items {
		if item.Present || item.Establish {
			t.Errorf("index %d should be pure reuse", item.Index)
		}
	}
}

func TestTimestampAlwaysCarriesValue(t *testing.T) {
	tbl := tcpopt.NewTable()
	tbl.Commit(tbl.Plan([]tcpip.Option{ts(100, 50)}, 0))

	p := tbl.Plan([]tcpip.Option{ts(101, 50)}, 0)
	if p.Changed {
		t.Error("a ticking timestamp alone should not force a list")
	}
	if !p.Items[0].Present {
		t.Error("timestamp item must always carry its value")
	}
}

func TestValueChangeForcesList(t *testing.T) {
	tbl := tcpopt.NewTable()
	tbl.Commit(tbl.Plan([]tcpip.Option{mss(1460)}, 0))

	p := tbl.Plan([]tcpip.Option{mss(1400)}, 0)
	if !p.Changed || !p.Items[0].Establish {
		t.Error("an MSS change must re-establish the slot")
	}
}

func TestStructureChangeForcesList(t *testing.T) {
	tbl := tcpopt.NewTable()
	tbl.Commit(tbl.Plan([]tcpip.Option{mss(1460), ws(7)}, 0))

	p := tbl.Plan([]tcpip.Option{ws(7), mss(1460)}, 0)
	if !p.Changed {
		t.Error("reordered options must force a list")
	}
}

func TestSACKChange(t *testing.T) {
	tbl := tcpopt.NewTable()
	const ack = 1000
	tbl.Commit(tbl.Plan([]tcpip.Option{sack(ack+100, ack+200)}, ack))

	// Same blocks: value still travels but the list is not forced.
	p := tbl.Plan([]tcpip.Option{sack(ack+100, ack+200)}, ack)
	if p.Changed {
		t.Error("unchanged SACK blocks should not force a list")
	}
	if !p.Items[0].Present {
		t.Error("SACK item must always carry its value")
	}

	// New blocks force a list.
	p = tbl.Plan([]tcpip.Option{sack(ack+300, ack+400)}, ack)
	if !p.Changed {
		t.Error("changed SACK blocks must force a list")
	}
}

func TestSACKTooFarForcesIR(t *testing.T) {
	tbl := tcpopt.NewTable()
	p := tbl.Plan([]tcpip.Option{sack(0xF0000000, 0xF0000010)}, 1)
	if !p.ForceIR {
		t.Error("an unencodable SACK delta must force IR")
	}
}

func TestGenericAllocationAndReuse(t *testing.T) {
	tbl := tcpopt.NewTable()
	unknown := tcpip.Option{Kind: 99, Data: []byte{1, 2, 3}}
	p := tbl.Plan([]tcpip.Option{unknown}, 0)
	if p.Items[0].Index != 7 || !p.Items[0].Establish {
		t.Fatalf("first generic option should establish slot 7, got %+v", p.Items[0])
	}
	tbl.Commit(p)

	p = tbl.Plan([]tcpip.Option{unknown}, 0)
	if p.Items[0].Establish || p.Items[0].Present {
		t.Error("unchanged generic option should be index reuse")
	}

	other := tcpip.Option{Kind: 100, Data: []byte{9}}
	p = tbl.Plan([]tcpip.Option{other}, 0)
	if p.Items[0].Index != 9 {
		t.Errorf("second generic kind should take slot 9, got %d", p.Items[0].Index)
	}
}

func TestTableFullDropsOption(t *testing.T) {
	tbl := tcpopt.NewTable()
	// Fill all eight dynamic slots.
	for i := 0; i < 8; i++ {
		opt := tcpip.Option{Kind: uint8(60 + i), Data: []byte{byte(i)}}
		tbl.Commit(tbl.Plan([]tcpip.Option{opt}, 0))
	}
	p := tbl.Plan([]tcpip.Option{{Kind: 200, Data: []byte{1}}}, 0)
	if p.Dropped != 1 || len(p.Items) != 0 {
		t.Errorf("ninth generic kind should be dropped, got %+v", p)
	}
}

func TestArenaExhaustion(t *testing.T) {
	tbl := tcpopt.NewTable()
	big := make([]byte, 120)
	tbl.Commit(tbl.Plan([]tcpip.Option{{Kind: 77, Data: big}}, 0))

	p := tbl.Plan([]tcpip.Option{{Kind: 78, Data: make([]byte, 20)}}, 0)
	if p.Dropped != 1 {
		t.Errorf("option exceeding the arena should be dropped, got %+v", p)
	}
}

func TestAppendListEncoding(t *testing.T) {
	tbl := tcpopt.NewTable()
	opts := []tcpip.Option{mss(1460), nop}
	p := tbl.Plan(opts, 0)
	out := tbl.AppendList(nil, p, 0, true)

	if out[0] != 0x10|2 {
		t.Fatalf("list header = %#x, want PS=1 m=2", out[0])
	}
	if out[1] != 0x80|tcpopt.IndexMSS {
		t.Errorf("first XI = %#x, want present MSS index", out[1])
	}
	if out[2] != tcpopt.IndexNOP {
		t.Errorf("second XI = %#x, want bare NOP index", out[2])
	}
	if out[3] != 0x05 || out[4] != 0xB4 {
		t.Errorf("MSS item bytes = % x", out[3:])
	}
	if len(out) != 5 {
		t.Errorf("list length = %d, want 5", len(out))
	}
}

func TestIrregularTimestamp(t *testing.T) {
	tbl := tcpopt.NewTable()
	tbl.Commit(tbl.Plan([]tcpip.Option{ts(1000, 500)}, 0))

	p := tbl.Plan([]tcpip.Option{ts(1010, 500)}, 0)
	out := tbl.AppendIrregular(nil, p, false)
	// Both deltas are within the 7-bit window: one byte each.
	if len(out) != 2 {
		t.Errorf("irregular TS should be 2 bytes, got % x", out)
	}
	if out := tbl.AppendIrregular(nil, p, true); len(out) != 0 {
		t.Error("irregular TS must be suppressed when the list was sent")
	}
}
