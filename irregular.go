package rohc

import (
	"github.com/nosmog/rohc/flow"
	"github.com/nosmog/rohc/lsb"
	"github.com/nosmog/rohc/tcpip"
)

// Irregular chain.  Appended to every CO packet: the per-packet fields the
// base header cannot recover.  The innermost header contributes only its
// IP-ID, when that is random; its TTL travels in the base header and its
// ECN bits in the TCP irregular part.

func (c *Compressor) appendIrregularChain(dst []byte, a *analysis, listSent bool) []byte {
	last := len(a.pkt.IP) - 1
	for i := range a.pkt.IP {
		dst = c.appendIPIrregular(dst, a, i, i == last)
	}
	dst = c.appendTCPIrregular(dst, a)
	return c.ctx.Options.AppendIrregular(dst, a.plan, listSent)
}

func (c *Compressor) appendIPIrregular(dst []byte, a *analysis, i int, innermost bool) []byte {
	h := &a.pkt.IP[i]
	if h.Version == 4 && a.behaviors[i] == flow.IPIDRandom {
		dst = lsb.AppendUint16(dst, h.V4().ID())
	}
	if !innermost {
		if a.ecnUsed {
			dst = append(dst, h.DSCP()<<2|h.ECN())
		}
		if a.ttlIrregular {
			dst = append(dst, h.TTL())
		}
	}
	if h.Version == 6 {
		for j := range h.Exts {
			dst = c.appendExtIrregular(dst, &c.ctx.IP[i].V6.Exts[j], &h.Exts[j])
		}
	}
	return dst
}

func (c *Compressor) appendExtIrregular(dst []byte, ec *flow.ExtensionContext, ext *tcpip.Extension) []byte {
	switch ext.Proto {
	case tcpip.ProtoGRE:
		if ext.GREHasChecksum() {
			dst = lsb.AppendUint16(dst, ext.GREChecksum())
		}
		if ext.GREHasSeq() {
			dst = lsb.Append7or31(dst, ext.GRESeq(), ec.Seq)
		}
		return dst
	case tcpip.ProtoAH:
		return lsb.Append7or31(dst, ext.AHSeq(), ec.Seq)
	default:
		return dst
	}
}

// appendTCPIrregular emits the TCP fields every CO packet carries in
// full: the ECN octet while ECN is in use, and the checksum.
func (c *Compressor) appendTCPIrregular(dst []byte, a *analysis) []byte {
	t := a.pkt.TCP
	if a.ecnUsed {
		inner := a.pkt.Innermost()
		dst = append(dst, inner.ECN()<<6|t.Reserved()<<2|t.Flags().ECN())
	}
	return lsb.AppendUint16(dst, t.Checksum())
}
