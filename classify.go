package rohc

import (
	"github.com/nosmog/rohc/flow"
	"github.com/nosmog/rohc/lsb"
)

// ipIDOffset returns the innermost IP-ID expressed as an offset from the
// packet's MSN, byte-swapped first under sequential-swapped behavior.
func (a *analysis) ipIDOffset() uint16 {
	id := a.pkt.Innermost().V4().ID()
	if a.innermostBehavior() == flow.IPIDSequentialSwapped {
		id = lsb.Swap16(id)
	}
	return id - a.msn
}

// refIPIDOffset returns the decompressor's reference for the IP-ID
// offset: the last committed IP-ID against the last committed MSN.
func (c *Compressor) refIPIDOffset(a *analysis) uint16 {
	v4 := &c.ctx.IP[len(c.ctx.IP)-1].V4
	id := v4.LastIPID
	if a.innermostBehavior() == flow.IPIDSequentialSwapped {
		id = lsb.Swap16(id)
	}
	return id - c.ctx.MSN
}

// ipOffsetFits checks the innermost IP-ID offset against a format's LSB
// window.
func (c *Compressor) ipOffsetFits(a *analysis, k uint, p int16) bool {
	return lsb.Fits16(a.ipIDOffset(), c.refIPIDOffset(a), k, p)
}

// seqScaledOK reports whether the scaled sequence encoding is usable: the
// payload size must repeat the committed scaling factor, the residue must
// be unchanged, and the scaled value must fit its 4-bit window.
func (c *Compressor) seqScaledOK(a *analysis) bool {
	t := &c.ctx.TCP
	if a.payloadLen < 2 || t.SeqFactor != a.payloadLen {
		return false
	}
	seq := a.pkt.TCP.SeqNum()
	if seq%a.payloadLen != t.SeqResidue {
		return false
	}
	return lsb.Fits32(a.seqScaled, t.SeqScaled, 4, 7)
}

// ackScaledOK reports whether the scaled ack encoding is usable: the
// stride must be engaged and already conveyed, and residue and window
// must line up.
func (c *Compressor) ackScaledOK(a *analysis) bool {
	t := &c.ctx.TCP
	stride := uint32(t.AckStride)
	if stride == 0 || t.AckStride != t.ConveyedAckStride {
		return false
	}
	ack := a.pkt.TCP.AckNum()
	if ack%stride != t.AckResidue {
		return false
	}
	return lsb.Fits32(a.ackScaled, t.AckScaled, 4, 3)
}

func (c *Compressor) seqFits(a *analysis, k uint, p int32) bool {
	return lsb.Fits32(a.pkt.TCP.SeqNum(), c.ctx.TCP.SeqNum, k, p)
}

func (c *Compressor) ackFits(a *analysis, k uint, p int32) bool {
	return lsb.Fits32(a.pkt.TCP.AckNum(), c.ctx.TCP.AckNum, k, p)
}

// classify picks the CO format for a packet that needs no context
// resynchronization.  The checks mirror the field widths of each format;
// any miss falls through, ultimately to co_common.
func (c *Compressor) classify(a *analysis) Format {
	if a.forceCoCommon {
		return FormatCoCommon
	}

	seqFamily := a.pkt.Innermost().Version == 4 && a.innermostBehavior().IsSequential()

	// Options, RST/SYN/FIN, or an innermost TTL change need the _8
	// formats or co_common.
	if a.plan.Changed || a.pkt.TCP.Flags().RSF() != 0 || a.innerTTLChanged {
		ttl := a.pkt.Innermost().TTL()
		ttlFits := lsb.Fits16(uint16(ttl), uint16(c.ctx.IP[len(c.ctx.IP)-1].TTL()), 3, 3)
		if seqFamily {
			if ttlFits && c.seqFits(a, 14, 8191) && c.ackFits(a, 15, 8191) && c.ipOffsetFits(a, 4, 3) {
				return FormatSeq8
			}
		} else {
			if ttlFits && c.seqFits(a, 16, 65535) && c.ackFits(a, 16, 16383) {
				return FormatRnd8
			}
		}
		return FormatCoCommon
	}

	if seqFamily {
		return c.classifySeq(a)
	}
	return c.classifyRnd(a)
}

func (c *Compressor) classifySeq(a *analysis) Format {
	switch {
	case a.winChanged:
		if !a.seqChanged &&
			lsb.Fits16(a.pkt.TCP.Window(), c.oldTCP().Window(), 15, 16383) &&
			c.ackFits(a, 16, 32767) && c.ipOffsetFits(a, 5, 3) {
			return FormatSeq7
		}
	case a.seqChanged && !a.ackChanged:
		if c.seqScaledOK(a) && c.ipOffsetFits(a, 7, 3) {
			return FormatSeq2
		}
		if c.seqFits(a, 16, 32767) && c.ipOffsetFits(a, 4, 3) {
			return FormatSeq1
		}
		if c.seqScaledOK(a) && c.ackFits(a, 16, 16383) && c.ipOffsetFits(a, 7, 3) {
			return FormatSeq6
		}
		if c.seqFits(a, 16, 32767) && c.ackFits(a, 16, 16383) && c.ipOffsetFits(a, 4, 3) {
			return FormatSeq5
		}
	case a.ackChanged && !a.seqChanged:
		if c.ackScaledOK(a) && c.ipOffsetFits(a, 3, 1) {
			return FormatSeq4
		}
		if c.ackFits(a, 16, 16383) && c.ipOffsetFits(a, 4, 3) {
			return FormatSeq3
		}
	case a.seqChanged && a.ackChanged:
		if c.seqScaledOK(a) && c.ackFits(a, 16, 16383) && c.ipOffsetFits(a, 7, 3) {
			return FormatSeq6
		}
		if c.seqFits(a, 16, 32767) && c.ackFits(a, 16, 16383) && c.ipOffsetFits(a, 4, 3) {
			return FormatSeq5
		}
	default:
		// Only the IP-ID and MSN moved.
		if c.ackScaledOK(a) && c.ipOffsetFits(a, 3, 1) {
			return FormatSeq4
		}
		if c.ipOffsetFits(a, 4, 3) {
			return FormatSeq1
		}
	}
	return FormatCoCommon
}

func (c *Compressor) classifyRnd(a *analysis) Format {
	switch {
	case a.winChanged:
		if !a.seqChanged && c.ackFits(a, 18, 65535) {
			return FormatRnd7
		}
	case a.seqChanged && !a.ackChanged:
		if c.seqScaledOK(a) {
			return FormatRnd2
		}
		if c.seqFits(a, 18, 65535) {
			return FormatRnd1
		}
	case a.ackChanged && !a.seqChanged:
		if c.ackScaledOK(a) {
			return FormatRnd4
		}
		if c.ackFits(a, 15, 8191) {
			return FormatRnd3
		}
	case a.seqChanged && a.ackChanged:
		if c.seqScaledOK(a) && c.ackFits(a, 16, 16383) {
			return FormatRnd6
		}
		if c.seqFits(a, 14, 8191) && c.ackFits(a, 15, 8191) {
			return FormatRnd5
		}
	default:
		if c.ackScaledOK(a) {
			return FormatRnd4
		}
		return FormatRnd1
	}
	return FormatCoCommon
}
