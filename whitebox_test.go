package rohc

import (
	"testing"

	"github.com/nosmog/rohc/flow"
	"github.com/nosmog/rohc/tcpip"
)

// rawV4TCP hand-assembles a minimal IPv4+TCP packet so the chain builders
// can be exercised without a full compressor.
func rawV4TCP(id uint16, seq, ack uint32) []byte {
	b := make([]byte, 40)
	b[0] = 0x45
	b[1] = 0x48 // DSCP 18
	b[2], b[3] = 0, 40
	b[4], b[5] = byte(id>>8), byte(id)
	b[6] = 0x40 // DF
	b[8] = 64
	b[9] = tcpip.ProtoTCP
	copy(b[12:16], []byte{192, 0, 2, 1})
	copy(b[16:20], []byte{198, 51, 100, 2})
	// TCP
	t := b[20:]
	t[0], t[1] = 0x13, 0x89 // 5001
	t[2], t[3] = 0xAC, 0x44 // 44100
	t[4], t[5], t[6], t[7] = byte(seq>>24), byte(seq>>16), byte(seq>>8), byte(seq)
	t[8], t[9], t[10], t[11] = byte(ack>>24), byte(ack>>16), byte(ack>>8), byte(ack)
	t[12] = 5 << 4
	t[13] = 0x18 // PSH|ACK
	t[14], t[15] = 0x10, 0x00
	return b
}

func TestStaticChainIPv4Layout(t *testing.T) {
	pkt, err := tcpip.Parse(rawV4TCP(7, 100, 200))
	if err != nil {
		t.Fatal(err)
	}
	out := appendStaticChain(nil, pkt)
	// 10 bytes of IPv4 static part plus the 4-byte port pair.
	if len(out) != 14 {
		t.Fatalf("static chain length = %d, want 14", len(out))
	}
	if out[0] != 0x00 || out[1] != tcpip.ProtoTCP {
		t.Errorf("IPv4 static prefix = % x", out[:2])
	}
	if out[2] != 192 || out[6] != 198 {
		t.Errorf("addresses misplaced: % x", out[2:10])
	}
	if out[10] != 0x13 || out[11] != 0x89 || out[12] != 0xAC || out[13] != 0x44 {
		t.Errorf("port pair misplaced: % x", out[10:])
	}
}

func TestSeq1Layout(t *testing.T) {
	pkt, err := tcpip.Parse(rawV4TCP(300, 0x01020304, 200))
	if err != nil {
		t.Fatal(err)
	}
	a := &analysis{
		pkt:       pkt,
		msn:       260,
		behaviors: []flow.IPIDBehavior{flow.IPIDSequential},
	}
	out, slot := appendSeq1(nil, a)
	if len(out) != 4 {
		t.Fatalf("seq_1 base header length = %d, want 4", len(out))
	}
	if out[0]>>4 != 0x0A {
		t.Errorf("seq_1 discriminator = %#x, want 1010 in the top nibble", out[0])
	}
	// ip_id offset = 300 - 260 = 40; low 4 bits are 8.
	if out[0]&0x0F != 8 {
		t.Errorf("ip_id bits = %#x, want 8", out[0]&0x0F)
	}
	if out[1] != 0x03 || out[2] != 0x04 {
		t.Errorf("seq LSBs = % x, want 03 04", out[1:3])
	}
	// msn 260 & 0xF = 4 in the high nibble, PSH set.
	if out[3] != 4<<4|0x08 {
		t.Errorf("trailer octet = %#x", out[3])
	}
	if slot.pos != 3 || slot.crc7 {
		t.Errorf("crc slot = %+v", slot)
	}
}

func TestRnd8Layout(t *testing.T) {
	pkt, err := tcpip.Parse(rawV4TCP(300, 0x01020304, 0x0A0B0C0D))
	if err != nil {
		t.Fatal(err)
	}
	a := &analysis{
		pkt:       pkt,
		msn:       0x1F,
		behaviors: []flow.IPIDBehavior{flow.IPIDRandom},
	}
	out, slot := appendRnd8(nil, a, true)
	if len(out) != 7 {
		t.Fatalf("rnd_8 base header length = %d, want 7", len(out))
	}
	if out[0]>>3 != 0x16 {
		t.Errorf("rnd_8 discriminator = %#x, want 10110 in the top bits", out[0])
	}
	if out[0]&0x01 != 1 {
		t.Error("list_present bit should be set")
	}
	if slot.pos != 1 || !slot.crc7 || slot.shift != 1 {
		t.Errorf("crc slot = %+v", slot)
	}
	// seq and ack 16-bit LSBs.
	if out[3] != 0x03 || out[4] != 0x04 || out[5] != 0x0C || out[6] != 0x0D {
		t.Errorf("seq/ack LSBs = % x", out[3:])
	}
}

func TestIPv4DynamicLayout(t *testing.T) {
	pkt, err := tcpip.Parse(rawV4TCP(0x0102, 100, 200))
	if err != nil {
		t.Fatal(err)
	}
	h := &pkt.IP[0]

	out := appendIPDynamic(nil, h, flow.IPIDSequential)
	if len(out) != 5 {
		t.Fatalf("sequential dynamic part = %d bytes, want 5", len(out))
	}
	if out[0] != 0x04|byte(flow.IPIDSequential) {
		t.Errorf("behavior octet = %#x", out[0])
	}
	if out[1] != 18<<2 || out[2] != 64 {
		t.Errorf("dscp/ttl octets = % x", out[1:3])
	}
	if out[3] != 0x01 || out[4] != 0x02 {
		t.Errorf("ip-id bytes = % x", out[3:])
	}

	// Zero behavior omits the IP-ID.
	out = appendIPDynamic(nil, h, flow.IPIDZero)
	if len(out) != 3 {
		t.Errorf("zero-behavior dynamic part = %d bytes, want 3", len(out))
	}
}

func TestTCPDynamicLayout(t *testing.T) {
	c := NewCompressor()
	pkt, err := tcpip.Parse(rawV4TCP(9, 0x01020304, 0x0A0B0C0D))
	if err != nil {
		t.Fatal(err)
	}
	c.ctx = flow.New(pkt, 100)
	a := &analysis{pkt: pkt, msn: 101}

	out := c.appendTCPDynamic(nil, a)
	// flags(2) + msn(2) + seq(4) + ack(4) + window(2) + checksum(2) +
	// empty option list header(1).
	if len(out) != 17 {
		t.Fatalf("tcp dynamic part = %d bytes, want 17", len(out))
	}
	if out[0]&0x20 != 0 {
		t.Error("ack_zero must be clear for a non-zero ack")
	}
	if out[0]&0x10 == 0 {
		t.Error("urp_zero must be set for a zero urgent pointer")
	}
	if out[1]&0x10 == 0 || out[1]&0x08 == 0 {
		t.Errorf("ack/psh flags missing: %#x", out[1])
	}
	if out[2] != 0 || out[3] != 101 {
		t.Errorf("msn bytes = % x", out[2:4])
	}
	if out[4] != 0x01 || out[7] != 0x04 {
		t.Errorf("seq bytes = % x", out[4:8])
	}
	if out[16] != 0x10 {
		t.Errorf("empty list header = %#x, want 0x10", out[16])
	}
}

func TestTCPCRCHelpers(t *testing.T) {
	pkt, err := tcpip.Parse(rawV4TCP(1, 2, 3))
	if err != nil {
		t.Fatal(err)
	}
	if StaticTCPCRC(pkt.TCP) == 0 && DynamicTCPCRC(pkt.TCP) == 0 {
		t.Error("CRC helpers should not both be zero for this header")
	}
	other, _ := tcpip.Parse(rawV4TCP(1, 9999, 3))
	if StaticTCPCRC(pkt.TCP) != StaticTCPCRC(other.TCP) {
		t.Error("static TCP CRC must ignore changing fields")
	}
	if DynamicTCPCRC(pkt.TCP) == DynamicTCPCRC(other.TCP) {
		t.Error("dynamic TCP CRC must cover the sequence number")
	}
}

func TestOldTCPView(t *testing.T) {
	c := NewCompressor()
	pkt, err := tcpip.Parse(rawV4TCP(5, 100, 200))
	if err != nil {
		t.Fatal(err)
	}
	c.ctx = flow.New(pkt, 0)
	c.ctx.TCP.OldHeader = pkt.TCP.Base()
	if c.oldTCP().SeqNum() != 100 || c.oldTCP().Window() != 0x1000 {
		t.Error("old header view mismatch")
	}
	if c.ctx.Options == nil {
		t.Fatal("context must own an option table")
	}
}
