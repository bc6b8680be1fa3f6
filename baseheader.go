package rohc

import (
	"github.com/nosmog/rohc/crc"
	"github.com/nosmog/rohc/lsb"
)

// crcSlot records where a base header's CRC bits live so they can be
// patched once the whole compressed header has been assembled.
type crcSlot struct {
	pos   int
	crc7  bool
	shift uint8
}

// patchCRC computes the header CRC over buf[start:] (the CRC bits are
// still zero) and writes it in place.
func patchCRC(buf []byte, start int, slot crcSlot) {
	if slot.crc7 {
		buf[slot.pos] |= crc.CRC7(buf[start:]) << slot.shift
	} else {
		buf[slot.pos] |= crc.CRC3(buf[start:]) << slot.shift
	}
}

// msnPSH packs the trailing msn/psh_flag/crc3 octet shared by most small
// formats, leaving the CRC bits zero.
func msnPSH(a *analysis) byte {
	b := byte(a.msn&0x0F) << 4
	if a.pkt.TCP.Flags().PSH() {
		b |= 0x08
	}
	return b
}

// rsfIndex encodes the RST/SYN/FIN flags as the 2-bit rsf index.  Only one
// flag may be set; the classifier guarantees that.
func rsfIndex(f uint8) byte {
	switch {
	case f&0x04 != 0:
		return 1 // RST
	case f&0x02 != 0:
		return 2 // SYN
	case f&0x01 != 0:
		return 3 // FIN
	}
	return 0
}

// Base header emitters.  Each returns the extended slice and the location
// of its CRC bits.  Field widths and discriminators follow RFC 6846
// section 7.3.

func appendSeq1(dst []byte, a *analysis) ([]byte, crcSlot) {
	seq := a.pkt.TCP.SeqNum()
	dst = append(dst, 0xA0|byte(a.ipIDOffset()&0x0F))
	dst = lsb.AppendUint16(dst, uint16(seq))
	dst = append(dst, msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendSeq2(dst []byte, a *analysis) ([]byte, crcSlot) {
	off := a.ipIDOffset()
	dst = append(dst,
		0xD0|byte(off>>4&0x07),
		byte(off&0x0F)<<4|byte(a.seqScaled&0x0F),
		msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendSeq3(dst []byte, a *analysis) ([]byte, crcSlot) {
	dst = append(dst, 0x90|byte(a.ipIDOffset()&0x0F))
	dst = lsb.AppendUint16(dst, uint16(a.pkt.TCP.AckNum()))
	dst = append(dst, msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendSeq4(dst []byte, a *analysis) ([]byte, crcSlot) {
	dst = append(dst,
		byte(a.ackScaled&0x0F)<<3|byte(a.ipIDOffset()&0x07),
		msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendSeq5(dst []byte, a *analysis) ([]byte, crcSlot) {
	dst = append(dst, 0x80|byte(a.ipIDOffset()&0x0F))
	dst = lsb.AppendUint16(dst, uint16(a.pkt.TCP.AckNum()))
	dst = lsb.AppendUint16(dst, uint16(a.pkt.TCP.SeqNum()))
	dst = append(dst, msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendSeq6(dst []byte, a *analysis) ([]byte, crcSlot) {
	off := a.ipIDOffset()
	dst = append(dst,
		0xD8|byte(a.seqScaled>>1&0x07),
		byte(a.seqScaled&0x01)<<7|byte(off&0x7F))
	dst = lsb.AppendUint16(dst, uint16(a.pkt.TCP.AckNum()))
	dst = append(dst, msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendSeq7(dst []byte, a *analysis) ([]byte, crcSlot) {
	win := a.pkt.TCP.Window()
	off := a.ipIDOffset()
	dst = append(dst,
		0xC0|byte(win>>11&0x0F),
		byte(win>>3),
		byte(win&0x07)<<5|byte(off&0x1F))
	dst = lsb.AppendUint16(dst, uint16(a.pkt.TCP.AckNum()))
	dst = append(dst, msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendSeq8(dst []byte, a *analysis, listPresent bool) ([]byte, crcSlot) {
	t := a.pkt.TCP
	seq := t.SeqNum()
	ack := t.AckNum()
	ttl := a.pkt.Innermost().TTL()

	dst = append(dst, 0xB0|byte(a.ipIDOffset()&0x0F))
	slot := crcSlot{pos: len(dst), crc7: true}
	b1 := byte(0)
	if listPresent {
		b1 |= 0x80
	}
	dst = append(dst, b1)
	b2 := msnPSH(a) | ttl&0x07
	dst = append(dst, b2)
	b3 := byte(ack >> 8 & 0x7F)
	if a.ecnUsed {
		b3 |= 0x80
	}
	dst = append(dst, b3, byte(ack))
	dst = append(dst,
		rsfIndex(t.Flags().RSF())<<6|byte(seq>>8&0x3F),
		byte(seq))
	return dst, slot
}

func appendRnd1(dst []byte, a *analysis) ([]byte, crcSlot) {
	seq := a.pkt.TCP.SeqNum()
	dst = append(dst, 0xB8|byte(seq>>16&0x03))
	dst = lsb.AppendUint16(dst, uint16(seq))
	dst = append(dst, msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendRnd2(dst []byte, a *analysis) ([]byte, crcSlot) {
	dst = append(dst, 0xC0|byte(a.seqScaled&0x0F), msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendRnd3(dst []byte, a *analysis) ([]byte, crcSlot) {
	ack := a.pkt.TCP.AckNum()
	dst = append(dst, byte(ack>>8&0x7F), byte(ack), msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendRnd4(dst []byte, a *analysis) ([]byte, crcSlot) {
	dst = append(dst, 0xD0|byte(a.ackScaled&0x0F), msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendRnd5(dst []byte, a *analysis) ([]byte, crcSlot) {
	t := a.pkt.TCP
	seq := t.SeqNum()
	ack := t.AckNum()
	b0 := 0x80 | byte(a.msn&0x0F)
	if t.Flags().PSH() {
		b0 |= 0x10
	}
	dst = append(dst, b0)
	slot := crcSlot{pos: len(dst), shift: 5}
	dst = append(dst,
		byte(seq>>9&0x1F), // crc3 goes in the top 3 bits
		byte(seq>>1),
		byte(seq&0x01)<<7|byte(ack>>8&0x7F),
		byte(ack))
	return dst, slot
}

func appendRnd6(dst []byte, a *analysis) ([]byte, crcSlot) {
	t := a.pkt.TCP
	b0 := byte(0xA0)
	if t.Flags().PSH() {
		b0 |= 0x01
	}
	dst = append(dst, b0)
	slot := crcSlot{pos: len(dst) - 1, shift: 1}
	dst = lsb.AppendUint16(dst, uint16(t.AckNum()))
	dst = append(dst, byte(a.msn&0x0F)<<4|byte(a.seqScaled&0x0F))
	return dst, slot
}

func appendRnd7(dst []byte, a *analysis) ([]byte, crcSlot) {
	t := a.pkt.TCP
	ack := t.AckNum()
	dst = append(dst, 0xBC|byte(ack>>16&0x03))
	dst = lsb.AppendUint16(dst, uint16(ack))
	dst = lsb.AppendUint16(dst, t.Window())
	dst = append(dst, msnPSH(a))
	return dst, crcSlot{pos: len(dst) - 1}
}

func appendRnd8(dst []byte, a *analysis, listPresent bool) ([]byte, crcSlot) {
	t := a.pkt.TCP
	ttl := a.pkt.Innermost().TTL()

	b0 := 0xB0 | rsfIndex(t.Flags().RSF())<<1
	if listPresent {
		b0 |= 0x01
	}
	dst = append(dst, b0)
	slot := crcSlot{pos: len(dst), crc7: true, shift: 1}
	dst = append(dst, byte(a.msn>>3&0x01)) // crc7 fills bits 7..1
	b2 := byte(a.msn&0x07) << 5
	if t.Flags().PSH() {
		b2 |= 0x10
	}
	b2 |= (ttl & 0x07) << 1
	if a.ecnUsed {
		b2 |= 0x01
	}
	dst = append(dst, b2)
	dst = lsb.AppendUint16(dst, uint16(t.SeqNum()))
	dst = lsb.AppendUint16(dst, uint16(t.AckNum()))
	return dst, slot
}
