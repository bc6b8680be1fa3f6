package rohc

import (
	"github.com/nosmog/rohc/flow"
	"github.com/nosmog/rohc/lsb"
)

// appendCoCommon emits the co_common base header: five fixed octets of
// flags and indicators followed by the variable items the indicators
// announce.  It can describe any combination the rnd/seq formats cannot,
// short of a structural context change.
func (c *Compressor) appendCoCommon(dst []byte, a *analysis) ([]byte, crcSlot) {
	t := a.pkt.TCP
	flags := t.Flags()
	ctx := &c.ctx.TCP
	inner := a.pkt.Innermost()
	innerCtx := &c.ctx.IP[len(c.ctx.IP)-1]

	b0 := byte(0xFA)
	if a.ttlIrregular {
		b0 |= 0x01
	}
	dst = append(dst, b0)

	b1 := byte(a.msn & 0x0F)
	if flags.ACK() {
		b1 |= 0x80
	}
	if flags.PSH() {
		b1 |= 0x40
	}
	b1 |= rsfIndex(flags.RSF()) << 4
	dst = append(dst, b1)

	// Assemble the variable items first; their lengths feed the
	// indicator bits.
	var items []byte
	items, seqInd := lsb.AppendVarLen32(items, t.SeqNum(), ctx.SeqNum)
	items, ackInd := lsb.AppendVarLen32(items, t.AckNum(), ctx.AckNum)

	strideInd := byte(0)
	if a.stride != ctx.ConveyedAckStride {
		strideInd = 1
		items = lsb.AppendUint16(items, a.stride)
	}
	winInd := byte(0)
	if a.winChanged {
		winInd = 1
		items = lsb.AppendUint16(items, t.Window())
	}
	ipInd := byte(0)
	behavior := a.innermostBehavior()
	if inner.Version == 4 && behavior.IsSequential() {
		off := a.ipIDOffset()
		if lsb.Fits16(off, c.refIPIDOffset(a), 8, 3) {
			items = append(items, byte(off))
		} else {
			ipInd = 1
			items = lsb.AppendUint16(items, inner.V4().ID())
		}
	}
	urgInd := byte(0)
	if flags.URG() {
		urgInd = 1
		items = lsb.AppendUint16(items, t.UrgentPtr())
	}
	dscpPresent := inner.DSCP() != innerCtx.DSCP()
	if dscpPresent {
		items = append(items, inner.DSCP()<<2)
	}
	ttlPresent := inner.TTL() != innerCtx.TTL()
	if ttlPresent {
		items = append(items, inner.TTL())
	}

	b2 := seqInd<<6 | ackInd<<4 | strideInd<<3 | winInd<<2 | ipInd<<1 | urgInd
	dst = append(dst, b2)

	b3 := (byte(behavior) & 0x03) << 1
	if a.ecnUsed {
		b3 |= 0x40
	}
	if dscpPresent {
		b3 |= 0x20
	}
	if ttlPresent {
		b3 |= 0x10
	}
	if a.plan.Changed {
		b3 |= 0x08
	}
	if flags.URG() {
		b3 |= 0x01
	}
	dst = append(dst, b3)

	b4 := byte(0)
	if inner.Version == 4 && inner.V4().DF() {
		b4 |= 0x80
	}
	dst = append(dst, b4)
	slot := crcSlot{pos: len(dst) - 1, crc7: true}

	return append(dst, items...), slot
}

// innermostBehavior returns the tentative IP-ID behavior of the innermost
// header; for IPv6 the wire value is random, whose CO encodings carry no
// IP-ID at all.
func (a *analysis) innermostBehavior() flow.IPIDBehavior {
	if a.pkt.Innermost().Version != 4 {
		return flow.IPIDRandom
	}
	return a.behaviors[len(a.behaviors)-1]
}
