package rohc

import (
	"github.com/nosmog/rohc/crc"
	"github.com/nosmog/rohc/flow"
	"github.com/nosmog/rohc/lsb"
	"github.com/nosmog/rohc/tcpip"
)

// StaticTCPCRC is the decompressor's consistency check over the TCP part
// of the static chain: the port pair.
func StaticTCPCRC(t tcpip.TCP) byte { return crc.CRC8(t[0:4]) }

// DynamicTCPCRC covers the TCP fields subject to change.
func DynamicTCPCRC(t tcpip.TCP) byte { return crc.CRC8(t[4:tcpip.TCPHeaderLen]) }

// Static chain.  Emitted by IR packets only: the fields that identify the
// flow and never change while the context lives.

func appendStaticChain(dst []byte, pkt *tcpip.Packet) []byte {
	for i := range pkt.IP {
		dst = appendIPStatic(dst, &pkt.IP[i])
	}
	// TCP static part: the port pair.
	dst = lsb.AppendUint16(dst, pkt.TCP.SrcPort())
	dst = lsb.AppendUint16(dst, pkt.TCP.DstPort())
	return dst
}

func appendIPStatic(dst []byte, h *tcpip.IPHeader) []byte {
	if h.Version == 4 {
		v4 := h.V4()
		dst = append(dst, 0x00, v4.Protocol())
		src, d := v4.SrcAddr(), v4.DstAddr()
		dst = append(dst, src[:]...)
		return append(dst, d[:]...)
	}
	v6 := h.V6()
	// The first octet discriminates the zero-flow-label short form from
	// the long form carrying the 20-bit label.
	if fl := v6.FlowLabel(); fl == 0 {
		dst = append(dst, 0x80, v6.NextHeader())
	} else {
		dst = append(dst, 0x90|byte(fl>>16&0x0F), byte(fl>>8), byte(fl), v6.NextHeader())
	}
	src, d := v6.SrcAddr(), v6.DstAddr()
	dst = append(dst, src[:]...)
	dst = append(dst, d[:]...)
	for i := range h.Exts {
		dst = appendExtStatic(dst, &h.Exts[i])
	}
	return dst
}

func appendExtStatic(dst []byte, ext *tcpip.Extension) []byte {
	switch ext.Proto {
	case tcpip.ProtoGRE:
		flags := byte(0)
		if ext.GREHasChecksum() {
			flags |= 0x04
		}
		if ext.GREHasKey() {
			flags |= 0x02
		}
		if ext.GREHasSeq() {
			flags |= 0x01
		}
		dst = append(dst, ext.Proto, flags, ext.Raw[2], ext.Raw[3])
		if ext.GREHasKey() {
			dst = lsb.AppendUint32(dst, ext.GREKey())
		}
		return dst
	case tcpip.ProtoAH:
		dst = append(dst, ext.Proto, uint8(len(ext.Raw)))
		return lsb.AppendUint32(dst, ext.AHSPI())
	default:
		// Hop-by-hop, routing, destination options, and minimal
		// encapsulation are carried opaquely.
		dst = append(dst, ext.Proto, uint8(len(ext.Raw)))
		return append(dst, ext.Raw...)
	}
}

// Dynamic chain.  Emitted by IR and IR-DYN packets: the slowly changing
// fields, including the full TCP dynamic part and the option list.

func (c *Compressor) appendDynamicChain(dst []byte, a *analysis) []byte {
	for i := range a.pkt.IP {
		dst = appendIPDynamic(dst, &a.pkt.IP[i], a.behaviors[i])
	}
	return c.appendTCPDynamic(dst, a)
}

func appendIPDynamic(dst []byte, h *tcpip.IPHeader, behavior flow.IPIDBehavior) []byte {
	if h.Version == 4 {
		v4 := h.V4()
		b := byte(behavior) & 0x03
		if v4.DF() {
			b |= 0x04
		}
		dst = append(dst, b, v4.DSCP()<<2|v4.ECN(), v4.TTL())
		if behavior != flow.IPIDZero {
			dst = lsb.AppendUint16(dst, v4.ID())
		}
		return dst
	}
	v6 := h.V6()
	dst = append(dst, v6.DSCP()<<2|v6.ECN(), v6.HopLimit())
	for i := range h.Exts {
		dst = appendExtDynamic(dst, &h.Exts[i])
	}
	return dst
}

func appendExtDynamic(dst []byte, ext *tcpip.Extension) []byte {
	switch ext.Proto {
	case tcpip.ProtoGRE:
		if ext.GREHasChecksum() {
			dst = lsb.AppendUint16(dst, ext.GREChecksum())
		}
		if ext.GREHasSeq() {
			dst = lsb.AppendUint32(dst, ext.GRESeq())
		}
		return dst
	case tcpip.ProtoAH:
		return lsb.AppendUint32(dst, ext.AHSeq())
	default:
		return dst
	}
}

// appendTCPDynamic emits the TCP dynamic part: flag state, MSN, sequence
// numbers, window, checksum, the conditional fields, and the full option
// list so the decompressor's option table is seeded exactly.
func (c *Compressor) appendTCPDynamic(dst []byte, a *analysis) []byte {
	t := a.pkt.TCP
	flags := t.Flags()
	ack := t.AckNum()
	urgPtr := t.UrgentPtr()

	b0 := t.Reserved()
	if a.ecnUsed {
		b0 |= 0x80
	}
	if a.stride != 0 {
		b0 |= 0x40
	}
	if ack == 0 {
		b0 |= 0x20
	}
	if urgPtr == 0 {
		b0 |= 0x10
	}
	b1 := flags.ECN()<<6 | flags.RSF()
	if flags.URG() {
		b1 |= 0x20
	}
	if flags.ACK() {
		b1 |= 0x10
	}
	if flags.PSH() {
		b1 |= 0x08
	}
	dst = append(dst, b0, b1)
	dst = lsb.AppendUint16(dst, a.msn)
	dst = lsb.AppendUint32(dst, t.SeqNum())
	if ack != 0 {
		dst = lsb.AppendUint32(dst, ack)
	}
	dst = lsb.AppendUint16(dst, t.Window())
	dst = lsb.AppendUint16(dst, t.Checksum())
	if urgPtr != 0 {
		dst = lsb.AppendUint16(dst, urgPtr)
	}
	if a.stride != 0 {
		dst = lsb.AppendUint16(dst, a.stride)
	}
	return c.ctx.Options.AppendList(dst, a.plan, ack, true)
}
